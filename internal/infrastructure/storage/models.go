package storage

import (
	"time"

	"github.com/uptrace/bun"
)

// WorkflowModel is the bun-mapped row for a persisted workflow
// (spec.md §3 "Lifecycle"). Tenant id is a NOT-NULL indexed column on
// every top-level table (spec.md §6 "Relational store").
type WorkflowModel struct {
	bun.BaseModel `bun:"table:workflows,alias:wf"`

	ID        string    `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	TenantID  string    `bun:"tenant_id,notnull"`
	Name      string    `bun:"name,notnull"`
	Graph     RawJSON   `bun:"graph,type:jsonb,notnull"`
	Version   int       `bun:"version,notnull,default:1"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

var _ bun.BeforeAppendModelHook = (*WorkflowModel)(nil)

// BeforeAppendModel stamps timestamps on insert/update, following the
// teacher's workflow_model.go BeforeInsert/BeforeUpdate hook pair.
func (w *WorkflowModel) BeforeAppendModel(ctx any, query bun.Query) error {
	switch query.(type) {
	case *bun.InsertQuery:
		now := time.Now()
		w.CreatedAt = now
		w.UpdatedAt = now
	case *bun.UpdateQuery:
		w.UpdatedAt = time.Now()
	}
	return nil
}

// WorkflowVersionModel is an immutable snapshot taken before every update
// (SPEC_FULL.md §12 "Workflow versioning / rollback").
type WorkflowVersionModel struct {
	bun.BaseModel `bun:"table:workflow_versions,alias:wfv"`

	ID         string    `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	WorkflowID string    `bun:"workflow_id,notnull"`
	Version    int       `bun:"version,notnull"`
	Graph      RawJSON   `bun:"graph,type:jsonb,notnull"`
	CreatedAt  time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// DashboardModel groups widgets for a tenant.
type DashboardModel struct {
	bun.BaseModel `bun:"table:dashboards,alias:db"`

	ID        string    `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	TenantID  string    `bun:"tenant_id,notnull"`
	Name      string    `bun:"name,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

var _ bun.BeforeAppendModelHook = (*DashboardModel)(nil)

func (d *DashboardModel) BeforeAppendModel(ctx any, query bun.Query) error {
	switch query.(type) {
	case *bun.InsertQuery:
		now := time.Now()
		d.CreatedAt = now
		d.UpdatedAt = now
	case *bun.UpdateQuery:
		d.UpdatedAt = time.Now()
	}
	return nil
}

// WidgetModel is a named pointer to a specific output node, inheriting
// tenant scope via its dashboard (spec.md §6 "widgets inherit tenant
// scope via dashboard").
type WidgetModel struct {
	bun.BaseModel `bun:"table:widgets,alias:wg"`

	ID                  string    `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	DashboardID         string    `bun:"dashboard_id,notnull"`
	SourceWorkflowID    string    `bun:"source_workflow_id,notnull"`
	SourceNodeID        string    `bun:"source_node_id,notnull"`
	Layout              RawJSON   `bun:"layout,type:jsonb"`
	ConfigOverrides     RawJSON   `bun:"config_overrides,type:jsonb"`
	AutoRefreshInterval *int      `bun:"auto_refresh_interval"`
	CreatedAt           time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt           time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

var _ bun.BeforeAppendModelHook = (*WidgetModel)(nil)

func (w *WidgetModel) BeforeAppendModel(ctx any, query bun.Query) error {
	switch query.(type) {
	case *bun.InsertQuery:
		now := time.Now()
		w.CreatedAt = now
		w.UpdatedAt = now
	case *bun.UpdateQuery:
		w.UpdatedAt = time.Now()
	}
	return nil
}

// APIKeyModel gates the unauthenticated embed endpoint. Only a hash is
// stored; the raw key is surfaced once, at creation (spec.md §3).
type APIKeyModel struct {
	bun.BaseModel `bun:"table:api_keys,alias:ak"`

	ID              string      `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	TenantID        string      `bun:"tenant_id,notnull"`
	KeyHash         string      `bun:"key_hash,notnull"`
	ScopedWidgetIDs StringArray `bun:"scoped_widget_ids,type:text[]"`
	RateLimit       *int        `bun:"rate_limit"`
	RevokedAt       *time.Time  `bun:"revoked_at"`
	CreatedAt       time.Time   `bun:"created_at,notnull,default:current_timestamp"`
}

var _ bun.BeforeAppendModelHook = (*APIKeyModel)(nil)

func (k *APIKeyModel) BeforeAppendModel(ctx any, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); ok {
		k.CreatedAt = time.Now()
	}
	return nil
}
