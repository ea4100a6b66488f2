package livehub

import "strings"

// Kind is the object category a channel fans out events for
// (spec.md §4.5 "Channel name").
type Kind string

const (
	KindExecution Kind = "execution"
	KindWidget    Kind = "widget"
	KindGeneral   Kind = "general"
	KindBroadcast Kind = "broadcast"
)

// ChannelName builds the canonical `<ns>:<tenant_id>:<kind>:<object_id>`
// name. Every channel a client subscribes to, and every channel a
// publisher writes to, goes through this so the tenant prefix can never be
// omitted (spec.md §3 "Invariants", §4.5).
func ChannelName(ns, tenantID string, kind Kind, objectID string) string {
	return ns + ":" + tenantID + ":" + string(kind) + ":" + objectID
}

// GeneralChannel is the channel every client is attached to on connect.
func GeneralChannel(ns, tenantID string) string {
	return ChannelName(ns, tenantID, KindGeneral, "")
}

// RewriteSuffix takes a client-supplied subscription suffix (anything
// after the tenant prefix the client does not control) and prepends the
// canonical `<ns>:<tenant_id>:` prefix server-side, so a client can never
// subscribe across a tenant boundary even if it tries to supply its own
// prefix (spec.md §3 "Invariants", §4.5 "Client connection lifecycle").
func RewriteSuffix(ns, tenantID, suffix string) string {
	prefix := ns + ":" + tenantID + ":"
	if strings.HasPrefix(suffix, prefix) {
		return suffix
	}
	// Strip any (untrusted) prefix the client attempted and keep only the
	// trailing `<kind>:<object_id>` portion.
	parts := strings.Split(suffix, ":")
	if len(parts) >= 2 {
		last := len(parts)
		// If the caller already passed ns:tenant:kind:id with a foreign
		// tenant, keep only the last two segments (kind:object_id).
		if last > 2 {
			parts = parts[last-2:]
		}
		return prefix + strings.Join(parts, ":")
	}
	return prefix + suffix
}

// Frame is the JSON envelope every server→client message shares a "type"
// discriminator with (spec.md §6 "Wire frames").
type Frame struct {
	Type string `json:"type"`
}

// SubscribedFrame acknowledges a subscribe/unsubscribe control message.
type SubscribedFrame struct {
	Type    string `json:"type"` // "subscribed" | "unsubscribed"
	Channel string `json:"channel"`
}

// ErrorFrame reports a malformed control message or a server-side error.
type ErrorFrame struct {
	Type   string `json:"type"` // "error"
	Detail string `json:"detail"`
}

// PingFrame is the heartbeat frame (spec.md §4.5 "Heartbeat").
type PingFrame struct {
	Type string `json:"type"` // "ping"
}

// ExecutionStatusFrame reports a per-node or whole-workflow status
// transition (spec.md §4.5 "Publishers").
type ExecutionStatusFrame struct {
	Type        string `json:"type"` // "execution_status"
	ExecutionID string `json:"execution_id"`
	NodeID      string `json:"node_id"`
	Status      string `json:"status"`
	Data        any    `json:"data,omitempty"`
}

// LiveDataFrame pushes a changed widget result (spec.md §4.5 "Publishers").
type LiveDataFrame struct {
	Type     string `json:"type"` // "live_data"
	WidgetID string `json:"widget_id"`
	Data     any    `json:"data"`
}

// TableRowsFrame pushes a raw tabular preview tail
// (SPEC_FULL.md §12 "WS table_rows frame").
type TableRowsFrame struct {
	Type    string           `json:"type"` // "table_rows"
	Table   string           `json:"table"`
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

// ClientCommand is a client→server control message
// (spec.md §6 "Wire frames").
type ClientCommand struct {
	Action  string `json:"action"` // "subscribe" | "unsubscribe"
	Channel string `json:"channel"`
}
