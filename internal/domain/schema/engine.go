package schema

import "github.com/vizflow/vizflow/pkg/models"

// Engine validates a workflow DAG and propagates output schemas through it.
type Engine struct{}

// NewEngine constructs a schema Engine. It holds no state: transforms are
// pure functions over config and input schemas.
func NewEngine() *Engine { return &Engine{} }

// Validate walks g in topological order (Kahn's algorithm), computing each
// node's output schema from its own config and its upstream nodes' output
// schemas. It returns a ValidationError with Kind "cycle" if the graph
// isn't a DAG, Kind "unknown_type" if any node names a type with no
// registered transform, and Kind "invalid_config" if a transform rejects a
// node's config.
func (e *Engine) Validate(g models.Graph) (map[string]models.Schema, error) {
	inbound := g.Inbound()
	nodeByID := g.NodeByID()

	inDegree := make(map[string]int, len(g.Nodes))
	for _, n := range g.Nodes {
		inDegree[n.ID] = 0
	}
	for _, edge := range g.Edges {
		inDegree[edge.Target]++
	}

	outbound := g.Outbound()

	queue := make([]string, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		if inDegree[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}

	output := make(map[string]models.Schema, len(g.Nodes))
	visited := 0

	for len(queue) > 0 {
		nodeID := queue[0]
		queue = queue[1:]
		visited++

		node := nodeByID[nodeID]

		inputSchemas := make([]models.Schema, 0, len(inbound[nodeID]))
		for _, srcID := range inbound[nodeID] {
			inputSchemas = append(inputSchemas, output[srcID])
		}

		transform, ok := transforms[node.Type]
		if !ok {
			return nil, &models.ValidationError{
				Kind:   "unknown_type",
				Detail: "node " + nodeID + " has unknown type " + string(node.Type),
			}
		}

		outSchema, err := transform(node.Data.Config, inputSchemas)
		if err != nil {
			return nil, &models.ValidationError{
				Kind:   "invalid_config",
				Detail: "node " + nodeID + ": " + err.Error(),
			}
		}
		output[nodeID] = outSchema

		for _, targetID := range outbound[nodeID] {
			inDegree[targetID]--
			if inDegree[targetID] == 0 {
				queue = append(queue, targetID)
			}
		}
	}

	if visited != len(g.Nodes) {
		return nil, &models.ValidationError{Kind: "cycle", Detail: "workflow graph contains a cycle"}
	}

	return output, nil
}
