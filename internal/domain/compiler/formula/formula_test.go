package formula

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vizflow/vizflow/pkg/models"
)

func TestParse_ArithmeticPrecedence(t *testing.T) {
	expr, err := Parse("[amount] + [tax] * 2")
	require.NoError(t, err)
	assert.Equal(t, `("amount" + ("tax" * 2))`, expr.Render())
}

func TestParse_FunctionCall(t *testing.T) {
	expr, err := Parse("ROUND([amount], 2)")
	require.NoError(t, err)
	assert.Equal(t, `ROUND("amount", 2)`, expr.Render())
}

func TestParse_Parentheses(t *testing.T) {
	expr, err := Parse("([a] + [b]) * [c]")
	require.NoError(t, err)
	assert.Equal(t, `(("a" + "b") * "c")`, expr.Render())
}

func TestParse_UnknownIdentifierRejected(t *testing.T) {
	_, err := Parse("FOOBAR([a])")
	require.Error(t, err)
}

func TestValidateColumns_ReportsMissing(t *testing.T) {
	schema := models.Schema{{Name: "amount", Dtype: models.DtypeFloat64}}
	errs := ValidateColumns("[amount] + [missing]", schema)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "missing")
}

func TestColumnRefs_DistinctInOrder(t *testing.T) {
	refs, err := ColumnRefs("[b] + [a] + [b]")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, refs)
}
