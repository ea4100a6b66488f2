package models

import "encoding/json"

// NodeType is the closed set of node kinds the Schema Engine and Workflow
// Compiler both understand (spec.md §4.1).
type NodeType string

const (
	NodeDataSource  NodeType = "data_source"
	NodeFilter      NodeType = "filter"
	NodeSort        NodeType = "sort"
	NodeSample      NodeType = "sample"
	NodeLimit       NodeType = "limit"
	NodeUnique      NodeType = "unique"
	NodeSelect      NodeType = "select"
	NodeRename      NodeType = "rename"
	NodeJoin        NodeType = "join"
	NodeGroupBy     NodeType = "group_by"
	NodePivot       NodeType = "pivot"
	NodeFormula     NodeType = "formula"
	NodeWindow      NodeType = "window"
	NodeUnion       NodeType = "union"
	NodeChartOutput NodeType = "chart_output"
	NodeTableOutput NodeType = "table_output"
	NodeKPIOutput   NodeType = "kpi_output"
)

// IsTerminal reports whether a node type never has an output schema / is a
// sink (spec.md §4.1, GLOSSARY "Terminal node").
func (t NodeType) IsTerminal() bool {
	switch t {
	case NodeChartOutput, NodeTableOutput, NodeKPIOutput:
		return true
	default:
		return false
	}
}

// NodeData holds the node's config plus any UI-only fields (position,
// selection, drag state) the frontend attaches. Those fields are preserved
// verbatim on export/import round-trips but are never read by the engine,
// and are stripped before cache fingerprinting (spec.md §4.4, §9 "Dynamic
// JSON graph payload").
type NodeData struct {
	Config json.RawMessage            `json:"config"`
	Extra  map[string]json.RawMessage `json:"-"`
}

// UnmarshalJSON tolerantly decodes the node's data bag: "config" is
// extracted into Config, everything else is preserved in Extra.
func (d *NodeData) UnmarshalJSON(b []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if cfg, ok := raw["config"]; ok {
		d.Config = cfg
		delete(raw, "config")
	} else {
		d.Config = json.RawMessage(`{}`)
	}
	if len(raw) > 0 {
		d.Extra = raw
	}
	return nil
}

// MarshalJSON re-merges Config and Extra so unknown UI fields survive a
// decode/encode round-trip unchanged.
func (d NodeData) MarshalJSON() ([]byte, error) {
	out := map[string]json.RawMessage{}
	for k, v := range d.Extra {
		out[k] = v
	}
	cfg := d.Config
	if cfg == nil {
		cfg = json.RawMessage(`{}`)
	}
	out["config"] = cfg
	return json.Marshal(out)
}

// Node is one vertex of a workflow DAG.
type Node struct {
	ID   string   `json:"id"`
	Type NodeType `json:"type"`
	Data NodeData `json:"data"`
}

// Config unmarshals the node's config bag into dst (a pointer to a
// node-type-specific config struct).
func (n Node) Config(dst any) error {
	if len(n.Data.Config) == 0 {
		return nil
	}
	return json.Unmarshal(n.Data.Config, dst)
}

// Edge is a directed connection between two nodes.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Graph is a DAG of nodes and edges as submitted by the canvas editor, or
// loaded from the workflow store.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// NodeByID indexes nodes by id.
func (g Graph) NodeByID() map[string]Node {
	out := make(map[string]Node, len(g.Nodes))
	for _, n := range g.Nodes {
		out[n.ID] = n
	}
	return out
}

// Inbound returns, for each node id, the ordered list of source node ids
// feeding it — order follows the order edges appear in g.Edges, which is
// load-bearing: the Schema Engine gathers input schemas in that order
// (spec.md §4.1).
func (g Graph) Inbound() map[string][]string {
	out := make(map[string][]string, len(g.Nodes))
	for _, e := range g.Edges {
		out[e.Target] = append(out[e.Target], e.Source)
	}
	return out
}

// Outbound returns, for each node id, the list of target node ids it feeds.
func (g Graph) Outbound() map[string][]string {
	out := make(map[string][]string, len(g.Nodes))
	for _, e := range g.Edges {
		out[e.Source] = append(out[e.Source], e.Target)
	}
	return out
}

// Ancestors returns the set of all node ids reachable by walking edges
// backward from target (exclusive of target itself).
func (g Graph) Ancestors(target string) map[string]bool {
	parents := g.Inbound()
	seen := map[string]bool{}
	stack := append([]string{}, parents[target]...)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		stack = append(stack, parents[cur]...)
	}
	return seen
}

// ReassignIDs returns a copy of g with every node and edge endpoint
// replaced by a freshly generated id (newID is called once per distinct
// original node id), preserving topology and node order
// (spec.md §8 "Export(W) then Import" testable property).
func (g Graph) ReassignIDs(newID func() string) Graph {
	mapping := make(map[string]string, len(g.Nodes))
	out := Graph{Nodes: make([]Node, len(g.Nodes)), Edges: make([]Edge, len(g.Edges))}
	for i, n := range g.Nodes {
		fresh := newID()
		mapping[n.ID] = fresh
		n.ID = fresh
		out.Nodes[i] = n
	}
	for i, e := range g.Edges {
		out.Edges[i] = Edge{Source: mapping[e.Source], Target: mapping[e.Target]}
	}
	return out
}

// Subgraph restricts g to the given node-id set (nodes and edges whose
// endpoints are both in the set), used for the preview/widget-data
// "compile_subgraph" path (spec.md §4.2).
func (g Graph) Subgraph(ids map[string]bool) Graph {
	out := Graph{}
	for _, n := range g.Nodes {
		if ids[n.ID] {
			out.Nodes = append(out.Nodes, n)
		}
	}
	for _, e := range g.Edges {
		if ids[e.Source] && ids[e.Target] {
			out.Edges = append(out.Edges, e)
		}
	}
	return out
}
