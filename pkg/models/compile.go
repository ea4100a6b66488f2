package models

// StoreTarget identifies which backing store a Compiled Segment dispatches
// against (spec.md §3, §4.2).
type StoreTarget string

const (
	StoreAnalytical StoreTarget = "analytical"
	StoreLive       StoreTarget = "live"
	StorePoint      StoreTarget = "point"
)

// Dialect is the SQL variant a segment's SQL is written in.
type Dialect string

const (
	DialectAnalytical Dialect = "analytical_sql"
	DialectLive       Dialect = "live_sql"
)

// CompiledSegment is one SQL statement dispatchable against a single
// store, with its dialect, parameters, and source-node provenance
// (spec.md §3, GLOSSARY).
type CompiledSegment struct {
	SQL           string
	Dialect       Dialect
	TargetStore   StoreTarget
	SourceNodeIDs []string
	Params        map[string]any
	Limit         *int
	Offset        *int
}

// QueryResult is the uniform shape returned by the Query Router regardless
// of which store answered (spec.md §3, §4.3).
type QueryResult struct {
	Columns     []ColumnSchema   `json:"columns"`
	Rows        []map[string]any `json:"rows"`
	TotalRows   int              `json:"total_rows"`
	SourceStore StoreTarget      `json:"source_store"`
	DurationMS  int64            `json:"-"`
}
