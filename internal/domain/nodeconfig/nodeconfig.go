// Package nodeconfig holds the per-node-type config shapes shared by the
// Schema Engine and the Workflow Compiler, so both read the same JSON
// fields the same way (spec.md §3 "Node", §4.1, §4.2).
package nodeconfig

import "github.com/vizflow/vizflow/pkg/models"

// DataSource is the config of a data_source node — authoritative schema,
// not derived from inputs.
type DataSource struct {
	Table      string               `json:"table"`
	Freshness  string               `json:"freshness"` // "realtime" | "analytical" | "point"
	Columns    []models.ColumnSchema `json:"columns"`
}

// Filter is the config of a filter node.
type Filter struct {
	Column   string `json:"column"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

// Sort is the config of a sort node.
type SortKey struct {
	Column     string `json:"column"`
	Descending bool   `json:"descending"`
}

type Sort struct {
	Keys []SortKey `json:"keys"`
}

// Select is the config of a select node.
type Select struct {
	Columns []string `json:"columns"`
}

// Rename is the config of a rename node.
type Rename struct {
	RenameMap map[string]string `json:"rename_map"`
}

// Join is the config of a join node.
type Join struct {
	Type     string   `json:"type"` // INNER | LEFT | RIGHT | FULL
	LeftKeys []string `json:"left_keys"`
	RightKeys []string `json:"right_keys"`
}

// Aggregation is one aggregate expression within a group_by node.
type Aggregation struct {
	Function     string `json:"function"`
	Column       string `json:"column"`
	Alias        string `json:"alias"`
	OutputDtype  string `json:"output_dtype"`
}

// GroupBy is the config of a group_by node.
type GroupBy struct {
	GroupColumns []string      `json:"group_columns"`
	Aggregations []Aggregation `json:"aggregations"`
}

// Pivot is the config of a pivot node.
type Pivot struct {
	RowColumns  []string `json:"row_columns"`
	ValueColumn string   `json:"value_column"`
	Aggregation string   `json:"aggregation"`
}

// Formula is the config of a formula node.
type Formula struct {
	Expression   string `json:"expression"`
	OutputColumn string `json:"output_column"`
	OutputDtype  string `json:"output_dtype"`
}

// Window is the config of a window node.
type Window struct {
	Function     string `json:"function"`
	OutputColumn string `json:"output_column"`
	SourceColumn string `json:"source_column"`
	PartitionBy  []string `json:"partition_by"`
	OrderBy      []SortKey `json:"order_by"`
}

// Limit is the config of a limit node.
type Limit struct {
	Count  int `json:"count"`
	Offset int `json:"offset"`
}

// Sample is the config of a sample node.
type Sample struct {
	Fraction float64 `json:"fraction"`
}

// Output is the config of a terminal output node (chart/table/kpi).
type Output struct {
	MaxRows int `json:"max_rows"`
}

// DefaultMaxRows is applied when an output node omits max_rows
// (spec.md §4.2 "LIMIT application").
const DefaultMaxRows = 10_000
