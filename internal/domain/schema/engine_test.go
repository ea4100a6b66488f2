package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vizflow/vizflow/pkg/models"
)

func dataSourceNode(id string, cols ...models.ColumnSchema) models.Node {
	raw, _ := json.Marshal(map[string]any{"columns": cols})
	return models.Node{ID: id, Type: models.NodeDataSource, Data: models.NodeData{Config: raw}}
}

func configNode(id string, t models.NodeType, cfg any) models.Node {
	raw, _ := json.Marshal(cfg)
	return models.Node{ID: id, Type: t, Data: models.NodeData{Config: raw}}
}

func TestEngine_Validate_LinearChain(t *testing.T) {
	g := models.Graph{
		Nodes: []models.Node{
			dataSourceNode("ds1",
				models.ColumnSchema{Name: "id", Dtype: models.DtypeInt64},
				models.ColumnSchema{Name: "amount", Dtype: models.DtypeFloat64},
			),
			configNode("f1", models.NodeFilter, map[string]any{}),
			configNode("sel1", models.NodeSelect, map[string]any{"columns": []string{"id"}}),
		},
		Edges: []models.Edge{
			{Source: "ds1", Target: "f1"},
			{Source: "f1", Target: "sel1"},
		},
	}

	out, err := NewEngine().Validate(g)
	require.NoError(t, err)
	require.Len(t, out["sel1"], 1)
	assert.Equal(t, "id", out["sel1"][0].Name)
	assert.Len(t, out["f1"], 2)
}

func TestEngine_Validate_DetectsCycle(t *testing.T) {
	g := models.Graph{
		Nodes: []models.Node{
			configNode("a", models.NodeFilter, map[string]any{}),
			configNode("b", models.NodeFilter, map[string]any{}),
		},
		Edges: []models.Edge{
			{Source: "a", Target: "b"},
			{Source: "b", Target: "a"},
		},
	}

	_, err := NewEngine().Validate(g)
	require.Error(t, err)
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "cycle", verr.Kind)
}

func TestEngine_Validate_UnknownNodeType(t *testing.T) {
	g := models.Graph{
		Nodes: []models.Node{
			{ID: "x", Type: "not_a_real_type", Data: models.NodeData{Config: json.RawMessage(`{}`)}},
		},
	}

	_, err := NewEngine().Validate(g)
	require.Error(t, err)
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "unknown_type", verr.Kind)
}

func TestEngine_Validate_Join(t *testing.T) {
	g := models.Graph{
		Nodes: []models.Node{
			dataSourceNode("left", models.ColumnSchema{Name: "id", Dtype: models.DtypeInt64}),
			dataSourceNode("right",
				models.ColumnSchema{Name: "id", Dtype: models.DtypeInt64},
				models.ColumnSchema{Name: "label", Dtype: models.DtypeString},
			),
			configNode("j", models.NodeJoin, map[string]any{
				"type": "INNER", "left_keys": []string{"id"}, "right_keys": []string{"id"},
			}),
		},
		Edges: []models.Edge{
			{Source: "left", Target: "j"},
			{Source: "right", Target: "j"},
		},
	}

	out, err := NewEngine().Validate(g)
	require.NoError(t, err)
	names := out["j"].Names()
	assert.Equal(t, []string{"id", "label"}, names)
}

func TestEngine_Validate_GroupByDefaultsAlias(t *testing.T) {
	g := models.Graph{
		Nodes: []models.Node{
			dataSourceNode("ds",
				models.ColumnSchema{Name: "region", Dtype: models.DtypeString},
				models.ColumnSchema{Name: "amount", Dtype: models.DtypeFloat64},
			),
			configNode("g", models.NodeGroupBy, map[string]any{
				"group_columns": []string{"region"},
				"aggregations": []map[string]any{
					{"function": "SUM", "column": "amount"},
				},
			}),
		},
		Edges: []models.Edge{{Source: "ds", Target: "g"}},
	}

	out, err := NewEngine().Validate(g)
	require.NoError(t, err)
	require.Len(t, out["g"], 2)
	assert.Equal(t, "region", out["g"][0].Name)
	assert.Equal(t, "SUM_amount", out["g"][1].Name)
	assert.Equal(t, models.DtypeFloat64, out["g"][1].Dtype)
}

func TestEngine_Validate_TerminalNodeHasEmptySchema(t *testing.T) {
	g := models.Graph{
		Nodes: []models.Node{
			dataSourceNode("ds", models.ColumnSchema{Name: "id", Dtype: models.DtypeInt64}),
			configNode("out", models.NodeTableOutput, map[string]any{}),
		},
		Edges: []models.Edge{{Source: "ds", Target: "out"}},
	}

	out, err := NewEngine().Validate(g)
	require.NoError(t, err)
	assert.Empty(t, out["out"])
}
