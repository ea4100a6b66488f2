// Package schema implements the Schema Engine: per-node-type schema
// transforms plus a DAG walker that propagates them in topological order,
// grounded on original_source's services/schema_engine.py and the
// teacher's table-driven DAG-executor style (dag_executor.go).
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/vizflow/vizflow/internal/domain/nodeconfig"
	"github.com/vizflow/vizflow/pkg/models"
)

// TransformFn computes a node's output schema from its config and the
// ordered output schemas of its upstream nodes.
type TransformFn func(config []byte, inputs []models.Schema) (models.Schema, error)

var transforms = map[models.NodeType]TransformFn{
	models.NodeDataSource:  dataSourceTransform,
	models.NodeFilter:      passthroughTransform,
	models.NodeSort:        passthroughTransform,
	models.NodeSample:      passthroughTransform,
	models.NodeLimit:       passthroughTransform,
	models.NodeUnique:      passthroughTransform,
	models.NodeSelect:      selectTransform,
	models.NodeRename:      renameTransform,
	models.NodeJoin:        joinTransform,
	models.NodeGroupBy:     groupByTransform,
	models.NodePivot:       pivotTransform,
	models.NodeFormula:     formulaTransform,
	models.NodeWindow:      windowTransform,
	models.NodeUnion:       unionTransform,
	models.NodeChartOutput: terminalTransform,
	models.NodeTableOutput: terminalTransform,
	models.NodeKPIOutput:   terminalTransform,
}

func decode[T any](config []byte, dst *T) error {
	if len(config) == 0 {
		return nil
	}
	return json.Unmarshal(config, dst)
}

// dataSourceTransform's output schema is authoritative — declared in the
// catalog, never derived from inputs.
func dataSourceTransform(config []byte, _ []models.Schema) (models.Schema, error) {
	var cfg nodeconfig.DataSource
	if err := decode(config, &cfg); err != nil {
		return nil, err
	}
	return models.Schema(cfg.Columns), nil
}

// passthroughTransform covers filter/sort/sample/limit/unique: same
// columns, a different set or order of rows.
func passthroughTransform(_ []byte, inputs []models.Schema) (models.Schema, error) {
	if len(inputs) == 0 {
		return models.Schema{}, nil
	}
	return append(models.Schema{}, inputs[0]...), nil
}

func selectTransform(config []byte, inputs []models.Schema) (models.Schema, error) {
	if len(inputs) == 0 {
		return models.Schema{}, nil
	}
	var cfg nodeconfig.Select
	if err := decode(config, &cfg); err != nil {
		return nil, err
	}
	out := make(models.Schema, 0, len(cfg.Columns))
	for _, name := range cfg.Columns {
		if col, ok := inputs[0].ByName(name); ok {
			out = append(out, col)
		}
	}
	return out, nil
}

func renameTransform(config []byte, inputs []models.Schema) (models.Schema, error) {
	if len(inputs) == 0 {
		return models.Schema{}, nil
	}
	var cfg nodeconfig.Rename
	if err := decode(config, &cfg); err != nil {
		return nil, err
	}
	out := make(models.Schema, len(inputs[0]))
	for i, col := range inputs[0] {
		if newName, ok := cfg.RenameMap[col.Name]; ok {
			col.Name = newName
		}
		out[i] = col
	}
	return out, nil
}

// joinTransform merges both input schemas, left columns first, then any
// right column whose name doesn't already appear on the left.
func joinTransform(_ []byte, inputs []models.Schema) (models.Schema, error) {
	if len(inputs) < 2 {
		if len(inputs) == 1 {
			return append(models.Schema{}, inputs[0]...), nil
		}
		return models.Schema{}, nil
	}
	left, right := inputs[0], inputs[1]
	seen := make(map[string]bool, len(left))
	out := append(models.Schema{}, left...)
	for _, c := range left {
		seen[c.Name] = true
	}
	for _, c := range right {
		if !seen[c.Name] {
			out = append(out, c)
		}
	}
	return out, nil
}

func groupByTransform(config []byte, inputs []models.Schema) (models.Schema, error) {
	if len(inputs) == 0 {
		return models.Schema{}, nil
	}
	var cfg nodeconfig.GroupBy
	if err := decode(config, &cfg); err != nil {
		return nil, err
	}
	out := models.Schema{}
	for _, name := range cfg.GroupColumns {
		if col, ok := inputs[0].ByName(name); ok {
			out = append(out, col)
		}
	}
	for _, agg := range cfg.Aggregations {
		alias := agg.Alias
		if alias == "" {
			fn := agg.Function
			if fn == "" {
				fn = "agg"
			}
			alias = fmt.Sprintf("%s_%s", fn, agg.Column)
		}
		dtype := models.Dtype(agg.OutputDtype)
		if dtype == "" {
			dtype = models.DtypeFloat64
		}
		out = append(out, models.ColumnSchema{Name: alias, Dtype: dtype, Nullable: true})
	}
	return out, nil
}

func pivotTransform(config []byte, inputs []models.Schema) (models.Schema, error) {
	if len(inputs) == 0 {
		return models.Schema{}, nil
	}
	var cfg nodeconfig.Pivot
	if err := decode(config, &cfg); err != nil {
		return nil, err
	}
	out := models.Schema{}
	for _, name := range cfg.RowColumns {
		if col, ok := inputs[0].ByName(name); ok {
			out = append(out, col)
		}
	}
	if cfg.ValueColumn != "" {
		agg := cfg.Aggregation
		if agg == "" {
			agg = "SUM"
		}
		out = append(out, models.ColumnSchema{
			Name:     fmt.Sprintf("%s_%s", cfg.ValueColumn, lower(agg)),
			Dtype:    models.DtypeFloat64,
			Nullable: true,
		})
	}
	return out, nil
}

func formulaTransform(config []byte, inputs []models.Schema) (models.Schema, error) {
	if len(inputs) == 0 {
		return models.Schema{}, nil
	}
	var cfg nodeconfig.Formula
	if err := decode(config, &cfg); err != nil {
		return nil, err
	}
	name := cfg.OutputColumn
	if name == "" {
		name = "calculated"
	}
	dtype := models.Dtype(cfg.OutputDtype)
	if dtype == "" {
		dtype = models.DtypeFloat64
	}
	out := append(models.Schema{}, inputs[0]...)
	out = append(out, models.ColumnSchema{Name: name, Dtype: dtype, Nullable: true})
	return out, nil
}

func windowTransform(config []byte, inputs []models.Schema) (models.Schema, error) {
	if len(inputs) == 0 {
		return models.Schema{}, nil
	}
	var cfg nodeconfig.Window
	if err := decode(config, &cfg); err != nil {
		return nil, err
	}
	name := cfg.OutputColumn
	if name == "" {
		name = "window_result"
	}
	fn := cfg.Function
	if fn == "" {
		fn = "ROW_NUMBER"
	}

	var dtype models.Dtype
	switch fn {
	case "SUM", "AVG", "MIN", "MAX":
		dtype = models.DtypeFloat64
	case "FIRST_VALUE", "LAST_VALUE", "LAG", "LEAD":
		dtype = models.DtypeFloat64
		if col, ok := inputs[0].ByName(cfg.SourceColumn); ok {
			dtype = col.Dtype
		}
	default:
		dtype = models.DtypeInt64
	}

	out := append(models.Schema{}, inputs[0]...)
	out = append(out, models.ColumnSchema{Name: name, Dtype: dtype, Nullable: true})
	return out, nil
}

// unionTransform takes the first branch's schema; compatibility between
// branches is checked by the compiler at compile time, not here
// (SPEC_FULL.md §13, Open Question 3).
func unionTransform(_ []byte, inputs []models.Schema) (models.Schema, error) {
	if len(inputs) == 0 {
		return models.Schema{}, nil
	}
	return append(models.Schema{}, inputs[0]...), nil
}

func terminalTransform(_ []byte, _ []models.Schema) (models.Schema, error) {
	return models.Schema{}, nil
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
