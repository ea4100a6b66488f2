package compiler

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vizflow/vizflow/internal/domain/schema"
	"github.com/vizflow/vizflow/pkg/models"
)

func node(id string, typ models.NodeType, cfg any) models.Node {
	raw, _ := json.Marshal(cfg)
	return models.Node{ID: id, Type: typ, Data: models.NodeData{Config: raw}}
}

func newCompiler() *Compiler {
	return New(schema.NewEngine())
}

func TestCompile_LinearChainMergesIntoOneSegment(t *testing.T) {
	g := models.Graph{
		Nodes: []models.Node{
			node("ds", models.NodeDataSource, map[string]any{
				"table": "orders", "freshness": "analytical",
				"columns": []models.ColumnSchema{
					{Name: "id", Dtype: models.DtypeInt64},
					{Name: "amount", Dtype: models.DtypeFloat64},
				},
			}),
			node("f", models.NodeFilter, map[string]any{"column": "amount", "operator": ">", "value": "10"}),
			node("s", models.NodeSort, map[string]any{"keys": []map[string]any{{"column": "amount", "descending": true}}}),
			node("out", models.NodeTableOutput, map[string]any{"max_rows": 500}),
		},
		Edges: []models.Edge{
			{Source: "ds", Target: "f"},
			{Source: "f", Target: "s"},
			{Source: "s", Target: "out"},
		},
	}

	segs, err := newCompiler().Compile(g)
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Contains(t, segs[0].SQL, `FROM "orders"`)
	assert.Contains(t, segs[0].SQL, "WHERE")
	assert.Contains(t, segs[0].SQL, "ORDER BY")
	assert.Contains(t, segs[0].SQL, "LIMIT 500")
	assert.Equal(t, models.StoreAnalytical, segs[0].TargetStore)
}

func TestCompile_JoinProducesQualifiedColumns(t *testing.T) {
	g := models.Graph{
		Nodes: []models.Node{
			node("left", models.NodeDataSource, map[string]any{
				"table": "orders", "freshness": "analytical",
				"columns": []models.ColumnSchema{{Name: "id", Dtype: models.DtypeInt64}},
			}),
			node("right", models.NodeDataSource, map[string]any{
				"table": "customers", "freshness": "analytical",
				"columns": []models.ColumnSchema{
					{Name: "id", Dtype: models.DtypeInt64},
					{Name: "name", Dtype: models.DtypeString},
				},
			}),
			node("j", models.NodeJoin, map[string]any{
				"type": "INNER", "left_keys": []string{"id"}, "right_keys": []string{"id"},
			}),
			node("out", models.NodeTableOutput, map[string]any{}),
		},
		Edges: []models.Edge{
			{Source: "left", Target: "j"},
			{Source: "right", Target: "j"},
			{Source: "j", Target: "out"},
		},
	}

	segs, err := newCompiler().Compile(g)
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Contains(t, segs[0].SQL, "JOIN")
	assert.Contains(t, segs[0].SQL, `"_left"."id"`)
	assert.Contains(t, segs[0].SQL, `"_right"."name"`)
}

func TestCompile_UnionRejectsMismatchedSchemas(t *testing.T) {
	g := models.Graph{
		Nodes: []models.Node{
			node("left", models.NodeDataSource, map[string]any{
				"table": "a", "freshness": "analytical",
				"columns": []models.ColumnSchema{{Name: "id", Dtype: models.DtypeInt64}},
			}),
			node("right", models.NodeDataSource, map[string]any{
				"table": "b", "freshness": "analytical",
				"columns": []models.ColumnSchema{
					{Name: "id", Dtype: models.DtypeInt64},
					{Name: "extra", Dtype: models.DtypeString},
				},
			}),
			node("u", models.NodeUnion, map[string]any{}),
			node("out", models.NodeTableOutput, map[string]any{}),
		},
		Edges: []models.Edge{
			{Source: "left", Target: "u"},
			{Source: "right", Target: "u"},
			{Source: "u", Target: "out"},
		},
	}

	_, err := newCompiler().Compile(g)
	require.Error(t, err)
	var cerr *models.CompileError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "schema_mismatch", cerr.Kind)
}

func TestCompile_SharedSegmentTakesSmallestLimit(t *testing.T) {
	g := models.Graph{
		Nodes: []models.Node{
			node("ds", models.NodeDataSource, map[string]any{
				"table": "orders", "freshness": "analytical",
				"columns": []models.ColumnSchema{{Name: "id", Dtype: models.DtypeInt64}},
			}),
			node("chart", models.NodeChartOutput, map[string]any{"max_rows": 50}),
			node("table", models.NodeTableOutput, map[string]any{"max_rows": 1000}),
		},
		Edges: []models.Edge{
			{Source: "ds", Target: "chart"},
			{Source: "ds", Target: "table"},
		},
	}

	segs, err := newCompiler().Compile(g)
	require.NoError(t, err)
	require.Len(t, segs, 1)
	require.NotNil(t, segs[0].Limit)
	assert.Equal(t, 50, *segs[0].Limit)
}

func TestCompile_FormulaParseErrorSurfaces(t *testing.T) {
	g := models.Graph{
		Nodes: []models.Node{
			node("ds", models.NodeDataSource, map[string]any{
				"table": "orders", "freshness": "analytical",
				"columns": []models.ColumnSchema{{Name: "amount", Dtype: models.DtypeFloat64}},
			}),
			node("calc", models.NodeFormula, map[string]any{
				"expression": "[amount] + NOTAREALFUNC(1)", "output_column": "total", "output_dtype": "float64",
			}),
			node("out", models.NodeTableOutput, map[string]any{}),
		},
		Edges: []models.Edge{
			{Source: "ds", Target: "calc"},
			{Source: "calc", Target: "out"},
		},
	}

	_, err := newCompiler().Compile(g)
	require.Error(t, err)
	var cerr *models.CompileError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "formula_parse", cerr.Kind)
}

func compileOneFilter(t *testing.T, operator, value string) models.CompiledSegment {
	t.Helper()
	g := models.Graph{
		Nodes: []models.Node{
			node("ds", models.NodeDataSource, map[string]any{
				"table": "orders", "freshness": "analytical",
				"columns": []models.ColumnSchema{
					{Name: "id", Dtype: models.DtypeInt64},
					{Name: "status", Dtype: models.DtypeString},
				},
			}),
			node("f", models.NodeFilter, map[string]any{"column": "status", "operator": operator, "value": value}),
			node("out", models.NodeTableOutput, map[string]any{}),
		},
		Edges: []models.Edge{
			{Source: "ds", Target: "f"},
			{Source: "f", Target: "out"},
		},
	}
	segs, err := newCompiler().Compile(g)
	require.NoError(t, err)
	require.Len(t, segs, 1)
	return segs[0]
}

func TestCompile_FilterContainsWrapsValueInWildcards(t *testing.T) {
	seg := compileOneFilter(t, "contains", "foo")
	assert.Contains(t, seg.SQL, `"status" LIKE :p1`)
	assert.Equal(t, "%foo%", seg.Params["p1"])
}

func TestCompile_FilterStartsWithAppendsWildcard(t *testing.T) {
	seg := compileOneFilter(t, "starts with", "foo")
	assert.Contains(t, seg.SQL, `"status" LIKE :p1`)
	assert.Equal(t, "foo%", seg.Params["p1"])
}

func TestCompile_FilterEndsWithPrependsWildcard(t *testing.T) {
	seg := compileOneFilter(t, "ends with", "foo")
	assert.Contains(t, seg.SQL, `"status" LIKE :p1`)
	assert.Equal(t, "%foo", seg.Params["p1"])
}

func TestCompile_FilterBetweenSplitsIntoTwoBounds(t *testing.T) {
	seg := compileOneFilter(t, "between", "10, 20")
	assert.Contains(t, seg.SQL, `"status" BETWEEN :p1 AND :p2`)
	assert.Equal(t, "10", seg.Params["p1"])
	assert.Equal(t, "20", seg.Params["p2"])
}

func TestCompile_FilterBetweenRejectsMalformedValue(t *testing.T) {
	g := models.Graph{
		Nodes: []models.Node{
			node("ds", models.NodeDataSource, map[string]any{
				"table": "orders", "freshness": "analytical",
				"columns": []models.ColumnSchema{{Name: "status", Dtype: models.DtypeString}},
			}),
			node("f", models.NodeFilter, map[string]any{"column": "status", "operator": "between", "value": "only-one"}),
			node("out", models.NodeTableOutput, map[string]any{}),
		},
		Edges: []models.Edge{
			{Source: "ds", Target: "f"},
			{Source: "f", Target: "out"},
		},
	}
	_, err := newCompiler().Compile(g)
	require.Error(t, err)
	var cerr *models.CompileError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "invalid_config", cerr.Kind)
}

func TestCompile_FilterInExpandsCommaListToInClause(t *testing.T) {
	seg := compileOneFilter(t, "in", "a, b, c")
	assert.Contains(t, seg.SQL, `"status" IN (:p1, :p2, :p3)`)
	assert.Equal(t, "a", seg.Params["p1"])
	assert.Equal(t, "b", seg.Params["p2"])
	assert.Equal(t, "c", seg.Params["p3"])
}

func TestCompile_FilterEqualsNullLiteralRendersIsNull(t *testing.T) {
	seg := compileOneFilter(t, "=", "NULL")
	assert.Contains(t, seg.SQL, `"status" IS NULL`)
	assert.NotContains(t, seg.SQL, ":p1")
}

func TestCompile_FilterNotEqualsNullLiteralRendersIsNotNull(t *testing.T) {
	seg := compileOneFilter(t, "!=", "NULL")
	assert.Contains(t, seg.SQL, `"status" IS NOT NULL`)
	assert.NotContains(t, seg.SQL, ":p1")
}

func TestCompileSubgraph_OnlyCompilesAncestry(t *testing.T) {
	g := models.Graph{
		Nodes: []models.Node{
			node("ds", models.NodeDataSource, map[string]any{
				"table": "orders", "freshness": "analytical",
				"columns": []models.ColumnSchema{{Name: "id", Dtype: models.DtypeInt64}},
			}),
			node("unrelated", models.NodeDataSource, map[string]any{
				"table": "other", "freshness": "analytical",
				"columns": []models.ColumnSchema{{Name: "id", Dtype: models.DtypeInt64}},
			}),
			node("out", models.NodeTableOutput, map[string]any{}),
		},
		Edges: []models.Edge{{Source: "ds", Target: "out"}},
	}

	segs, err := newCompiler().CompileSubgraph(g, "out")
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Contains(t, segs[0].SQL, "orders")
}
