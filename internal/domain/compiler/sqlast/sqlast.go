// Package sqlast is a small dialect-aware SQL AST and renderer. The
// Workflow Compiler builds one of these per query segment and renders it
// to text; predicates carry a bind-parameter name, never the value itself,
// and the only values rendered inline are formula constants (Literal, with
// string literals quote-escaped)
// (original_source's workflow_compiler.py built the same kind of tree with
// SQLGlot; no Go library in the example pack offers an equivalent
// dialect-aware SQL AST, so this package fills that gap — see DESIGN.md).
package sqlast

import (
	"fmt"
	"strings"
)

// Expr is anything that can render to a SQL expression fragment.
type Expr interface {
	Render() string
}

// Raw is an expression fragment that is already valid SQL, used only for
// fragments assembled entirely from fixed keywords and quoted identifiers
// (never from unescaped user input).
type Raw string

func (r Raw) Render() string { return string(r) }

// ColumnRef is a quoted column reference.
type ColumnRef struct{ Name string }

func (c ColumnRef) Render() string { return QuoteIdent(c.Name) }

// QualifiedColumnRef is a column reference qualified by a table/subquery
// alias, used when merging join inputs.
type QualifiedColumnRef struct{ Qualifier, Name string }

func (c QualifiedColumnRef) Render() string {
	return QuoteIdent(c.Qualifier) + "." + QuoteIdent(c.Name)
}

// Aliased wraps an expression with an "AS alias" suffix.
type Aliased struct {
	Expr  Expr
	Alias string
}

func (a Aliased) Render() string { return a.Expr.Render() + " AS " + QuoteIdent(a.Alias) }

// FuncCall renders NAME(arg, arg, ...).
type FuncCall struct {
	Name string
	Args []Expr
}

func (f FuncCall) Render() string {
	parts := make([]string, len(f.Args))
	for i, a := range f.Args {
		parts[i] = a.Render()
	}
	return f.Name + "(" + strings.Join(parts, ", ") + ")"
}

// BinaryOp renders "left op right".
type BinaryOp struct {
	Left, Right Expr
	Op          string
}

func (b BinaryOp) Render() string {
	return "(" + b.Left.Render() + " " + b.Op + " " + b.Right.Render() + ")"
}

// Literal renders a constant. Numbers render bare; strings are quoted.
type Literal struct {
	Value    string
	IsString bool
}

func (l Literal) Render() string {
	if l.IsString {
		return "'" + strings.ReplaceAll(l.Value, "'", "''") + "'"
	}
	return l.Value
}

// Predicate is one WHERE condition. The value is never inlined — it is
// passed as a named bind parameter, recorded separately on the segment's
// Params map. ParamName holds the single bind name for unary-value
// operators; ParamNames holds two names for BETWEEN and N names for IN.
// IS NULL / IS NOT NULL carry no parameter at all.
type Predicate struct {
	Column     Expr
	Operator   string // "=", "!=", ">", ">=", "<", "<=", "LIKE", "NOT LIKE", "IN", "BETWEEN", "IS NULL", "IS NOT NULL"
	ParamName  string
	ParamNames []string
}

func (p Predicate) Render() string {
	switch p.Operator {
	case "IS NULL", "IS NOT NULL":
		return p.Column.Render() + " " + p.Operator
	case "IN":
		parts := make([]string, len(p.ParamNames))
		for i, name := range p.ParamNames {
			parts[i] = ":" + name
		}
		return p.Column.Render() + " IN (" + strings.Join(parts, ", ") + ")"
	case "BETWEEN":
		return p.Column.Render() + " BETWEEN :" + p.ParamNames[0] + " AND :" + p.ParamNames[1]
	default:
		return p.Column.Render() + " " + p.Operator + " :" + p.ParamName
	}
}

// From is a SQL FROM-clause source: a table, a subquery, or a join.
type From interface {
	Render() string
}

// Table is a bare table reference.
type Table struct{ Name string }

func (t Table) Render() string { return QuoteIdent(t.Name) }

// Subquery wraps a nested Select with an alias, as required whenever a
// segment becomes the input to a join, union, or a new aggregation scope.
type Subquery struct {
	Select *Select
	Alias  string
}

func (s Subquery) Render() string {
	return "(" + s.Select.Render() + ") AS " + QuoteIdent(s.Alias)
}

// RawSubquery wraps an already-rendered SQL statement (e.g. a segment the
// compiler has already turned to text) as a FROM source, aliased. Used by
// the Cache-and-Execute Layer's resource-limit wrapper, which must nest a
// compiled segment inside an outer LIMIT/OFFSET without re-parsing it.
type RawSubquery struct {
	SQL   string
	Alias string
}

func (s RawSubquery) Render() string {
	return "(" + s.SQL + ") AS " + QuoteIdent(s.Alias)
}

// JoinCond is one equality condition of a join's ON clause.
type JoinCond struct {
	LeftColumn, RightColumn string
}

// Join combines two aliased sources (conventionally "_left"/"_right").
type Join struct {
	Left, Right       From
	LeftAlias, RightAlias string
	Type              string // INNER | LEFT | RIGHT | FULL
	On                []JoinCond
}

func (j Join) Render() string {
	var b strings.Builder
	b.WriteString(j.Left.Render())
	b.WriteString(" ")
	b.WriteString(j.Type)
	b.WriteString(" JOIN ")
	b.WriteString(j.Right.Render())
	if len(j.On) > 0 {
		b.WriteString(" ON ")
		conds := make([]string, len(j.On))
		for i, c := range j.On {
			conds[i] = fmt.Sprintf("%s.%s = %s.%s",
				QuoteIdent(j.LeftAlias), QuoteIdent(c.LeftColumn),
				QuoteIdent(j.RightAlias), QuoteIdent(c.RightColumn))
		}
		b.WriteString(strings.Join(conds, " AND "))
	}
	return b.String()
}

// WindowCall renders a window function application with its OVER clause.
type WindowCall struct {
	Func        FuncCall
	PartitionBy []string
	OrderBy     []OrderExpr
}

func (w WindowCall) Render() string {
	var over strings.Builder
	if len(w.PartitionBy) > 0 {
		quoted := make([]string, len(w.PartitionBy))
		for i, c := range w.PartitionBy {
			quoted[i] = QuoteIdent(c)
		}
		over.WriteString("PARTITION BY ")
		over.WriteString(strings.Join(quoted, ", "))
	}
	if len(w.OrderBy) > 0 {
		if over.Len() > 0 {
			over.WriteString(" ")
		}
		parts := make([]string, len(w.OrderBy))
		for i, o := range w.OrderBy {
			dir := "ASC"
			if o.Descending {
				dir = "DESC"
			}
			parts[i] = QuoteIdent(o.Column) + " " + dir
		}
		over.WriteString("ORDER BY ")
		over.WriteString(strings.Join(parts, ", "))
	}
	return w.Func.Render() + " OVER (" + over.String() + ")"
}

// OrderExpr is one ORDER BY key.
type OrderExpr struct {
	Column     string
	Descending bool
}

// Select is a single SELECT statement.
type Select struct {
	Distinct bool
	Columns  []Expr
	From     From
	Where    []Predicate
	GroupBy  []string
	OrderBy  []OrderExpr
	Limit    *int
	Offset   *int
}

func (s *Select) Render() string {
	var b strings.Builder
	b.WriteString("SELECT ")
	if s.Distinct {
		b.WriteString("DISTINCT ")
	}
	if len(s.Columns) == 0 {
		b.WriteString("*")
	} else {
		parts := make([]string, len(s.Columns))
		for i, c := range s.Columns {
			parts[i] = c.Render()
		}
		b.WriteString(strings.Join(parts, ", "))
	}
	b.WriteString(" FROM ")
	b.WriteString(s.From.Render())

	if len(s.Where) > 0 {
		b.WriteString(" WHERE ")
		parts := make([]string, len(s.Where))
		for i, p := range s.Where {
			parts[i] = p.Render()
		}
		b.WriteString(strings.Join(parts, " AND "))
	}

	if len(s.GroupBy) > 0 {
		b.WriteString(" GROUP BY ")
		quoted := make([]string, len(s.GroupBy))
		for i, c := range s.GroupBy {
			quoted[i] = QuoteIdent(c)
		}
		b.WriteString(strings.Join(quoted, ", "))
	}

	if len(s.OrderBy) > 0 {
		b.WriteString(" ORDER BY ")
		parts := make([]string, len(s.OrderBy))
		for i, o := range s.OrderBy {
			dir := "ASC"
			if o.Descending {
				dir = "DESC"
			}
			parts[i] = QuoteIdent(o.Column) + " " + dir
		}
		b.WriteString(strings.Join(parts, ", "))
	}

	if s.Limit != nil {
		b.WriteString(fmt.Sprintf(" LIMIT %d", *s.Limit))
	}
	if s.Offset != nil {
		b.WriteString(fmt.Sprintf(" OFFSET %d", *s.Offset))
	}

	return b.String()
}

// UnionAll renders N selects joined by UNION ALL, each parenthesized.
type UnionAll struct {
	Selects []*Select
}

func (u *UnionAll) Render() string {
	parts := make([]string, len(u.Selects))
	for i, s := range u.Selects {
		parts[i] = "(" + s.Render() + ")"
	}
	return strings.Join(parts, " UNION ALL ")
}

// UnionFrom lets a UnionAll be used as a FROM source, so a subsequent
// segment can keep operating on a unioned result.
type UnionFrom struct {
	Union *UnionAll
	Alias string
}

func (u UnionFrom) Render() string {
	return "(" + u.Union.Render() + ") AS " + QuoteIdent(u.Alias)
}

// QuoteIdent double-quotes an identifier, escaping embedded quotes. This is
// ANSI/Postgres-style quoting; the analytical (ClickHouse-shaped) dialect
// accepts the same quoting style in this deployment's wire client.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
