package models

import (
	"encoding/json"
	"time"
)

// Workflow is a persisted, versioned DAG owned by exactly one tenant
// (spec.md §3 "Lifecycle").
type Workflow struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	Graph     Graph     `json:"graph"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WorkflowVersion is an immutable snapshot taken before every update,
// enabling rollback (SPEC_FULL.md §12).
type WorkflowVersion struct {
	ID         string    `json:"id"`
	WorkflowID string    `json:"workflow_id"`
	Version    int       `json:"version"`
	Graph      Graph     `json:"graph"`
	CreatedAt  time.Time `json:"created_at"`
}

// Dashboard groups widgets for a tenant.
type Dashboard struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Widget is a named pointer to a specific output node of a specific
// workflow, composed with config overrides (spec.md §3, GLOSSARY).
type Widget struct {
	ID                  string          `json:"id"`
	DashboardID         string          `json:"dashboard_id"`
	SourceWorkflowID     string          `json:"source_workflow_id"`
	SourceNodeID        string          `json:"source_node_id"`
	Layout              json.RawMessage `json:"layout,omitempty"`
	ConfigOverrides     json.RawMessage `json:"config_overrides,omitempty"`
	AutoRefreshInterval *int            `json:"auto_refresh_interval,omitempty"` // -1 == live mode
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// IsLiveMode reports whether the widget polls its source via the Live
// Channel Hub's push model rather than client refresh (spec.md §4.5,
// GLOSSARY "Live mode").
func (w Widget) IsLiveMode() bool {
	return w.AutoRefreshInterval != nil && *w.AutoRefreshInterval == -1
}

// APIKey gates the unauthenticated embed endpoint. Only KeyHash is
// persisted; the raw key is surfaced exactly once, at creation
// (spec.md §3).
type APIKey struct {
	ID               string    `json:"id"`
	TenantID         string    `json:"tenant_id"`
	KeyHash          string    `json:"-"`
	ScopedWidgetIDs  []string  `json:"scoped_widget_ids,omitempty"`
	RateLimit        *int      `json:"rate_limit,omitempty"`
	RevokedAt        *time.Time `json:"revoked_at,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Revoked reports whether the key has been revoked.
func (k APIKey) Revoked() bool { return k.RevokedAt != nil }
