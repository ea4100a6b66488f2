package cacheexec

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/vizflow/vizflow/pkg/models"
)

// FingerprintLength is how many hex characters of the digest are kept —
// a stable prefix, not the full digest, per the caching invariant that two
// logically identical requests must produce the exact same cache key.
const FingerprintLength = 32

// FingerprintInput is everything that affects a query's result and must
// therefore be baked into its cache key. UI-only fields (node position,
// selection state) are deliberately excluded.
type FingerprintInput struct {
	TenantID        string
	TargetNodeID    string
	Graph           models.Graph
	ConfigOverrides json.RawMessage
	FilterParams    map[string]any
	Offset          int
	Limit           int
}

type canonicalNode struct {
	ID     string          `json:"id"`
	Type   models.NodeType `json:"type"`
	Config json.RawMessage `json:"config"`
}

type canonicalEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

type canonicalPayload struct {
	TenantID        string                 `json:"tenant_id"`
	TargetNodeID    string                 `json:"target_node_id"`
	Nodes           []canonicalNode        `json:"nodes"`
	Edges           []canonicalEdge        `json:"edges"`
	ConfigOverrides json.RawMessage        `json:"config_overrides,omitempty"`
	FilterParams    map[string]any         `json:"filter_params,omitempty"`
	Offset          int                    `json:"offset"`
	Limit           int                    `json:"limit"`
}

// Fingerprint computes a tenant-scoped, deterministic cache key component
// for in. Node UI-only fields are stripped (NodeData.Extra is never
// serialized — only ID/Type/Config), nodes and edges are sorted so
// submission order never changes the key, and map-typed fields
// (config_overrides keys, filter_params) serialize through
// encoding/json's built-in sorted-map-key behavior.
func Fingerprint(in FingerprintInput) string {
	nodes := make([]canonicalNode, len(in.Graph.Nodes))
	for i, n := range in.Graph.Nodes {
		cfg := n.Data.Config
		if cfg == nil {
			cfg = json.RawMessage(`{}`)
		}
		nodes[i] = canonicalNode{ID: n.ID, Type: n.Type, Config: cfg}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	edges := make([]canonicalEdge, len(in.Graph.Edges))
	for i, e := range in.Graph.Edges {
		edges[i] = canonicalEdge{Source: e.Source, Target: e.Target}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		return edges[i].Target < edges[j].Target
	})

	overrides := json.RawMessage(`{}`)
	if in.ConfigOverrides != nil {
		overrides = in.ConfigOverrides
		var decoded any
		if err := json.Unmarshal(in.ConfigOverrides, &decoded); err == nil {
			overrides, _ = json.Marshal(decoded)
		}
	}

	payload := canonicalPayload{
		TenantID:        in.TenantID,
		TargetNodeID:    in.TargetNodeID,
		Nodes:           nodes,
		Edges:           edges,
		ConfigOverrides: overrides,
		FilterParams:    in.FilterParams,
		Offset:          in.Offset,
		Limit:           in.Limit,
	}

	// json.Marshal never fails on these concrete types.
	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])[:FingerprintLength]
}
