// Package compiler implements the Workflow Compiler: it topologically
// walks a validated workflow DAG, merges adjacent compatible nodes into
// single SQL segments, assigns each segment a target store and dialect,
// and applies LIMIT/OFFSET. Grounded on original_source's
// services/workflow_compiler.py for the step order and merge rules (that
// source left the merge and limit-application logic mostly as a TODO
// placeholder; this package completes it) and the teacher's
// internal/application/engine/dag_executor.go for the Go topological-sort
// idiom.
package compiler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vizflow/vizflow/internal/domain/compiler/formula"
	"github.com/vizflow/vizflow/internal/domain/compiler/sqlast"
	"github.com/vizflow/vizflow/internal/domain/nodeconfig"
	"github.com/vizflow/vizflow/internal/domain/schema"
	"github.com/vizflow/vizflow/pkg/models"
)

// DefaultHardCap is the row limit applied to any terminal segment whose
// output node doesn't specify max_rows.
const DefaultHardCap = nodeconfig.DefaultMaxRows

// Compiler compiles validated workflow graphs into executable query
// segments.
type Compiler struct {
	schemaEngine *schema.Engine
}

// New constructs a Compiler backed by the given schema Engine.
func New(engine *schema.Engine) *Compiler {
	return &Compiler{schemaEngine: engine}
}

// segment is the compiler's in-progress view of a query, before it is
// frozen into a models.CompiledSegment.
type segment struct {
	sel           *sqlast.Select
	target        models.StoreTarget
	dialect       models.Dialect
	sourceNodeIDs []string
	params        map[string]any
	paramSeq      int
}

func (s *segment) newParam(value any) string {
	s.paramSeq++
	name := fmt.Sprintf("p%d", s.paramSeq)
	s.params[name] = value
	return name
}

// Compile validates g and compiles it into a list of query segments ready
// for the Query Router.
func (c *Compiler) Compile(g models.Graph) ([]models.CompiledSegment, error) {
	schemas, err := c.schemaEngine.Validate(g)
	if err != nil {
		kind := "schema_mismatch"
		var verr *models.ValidationError
		if errors.As(err, &verr) && (verr.Kind == "cycle" || verr.Kind == "unknown_type") {
			kind = verr.Kind
		}
		return nil, &models.CompileError{Kind: kind, Detail: err.Error(), Err: err}
	}

	order, err := topologicalSort(g)
	if err != nil {
		return nil, &models.CompileError{Kind: "cycle", Detail: err.Error(), Err: err}
	}

	segs, err := c.buildAndMerge(g, order, schemas)
	if err != nil {
		return nil, err
	}

	return c.applyLimits(g, segs), nil
}

// CompileSubgraph compiles only the ancestry of targetNodeID plus the
// target itself — used by the preview and widget-data request paths so a
// single widget's query doesn't re-run the whole workflow.
func (c *Compiler) CompileSubgraph(g models.Graph, targetNodeID string) ([]models.CompiledSegment, error) {
	ids := g.Ancestors(targetNodeID)
	ids[targetNodeID] = true
	return c.Compile(g.Subgraph(ids))
}

func topologicalSort(g models.Graph) ([]string, error) {
	inDegree := make(map[string]int, len(g.Nodes))
	for _, n := range g.Nodes {
		inDegree[n.ID] = 0
	}
	for _, e := range g.Edges {
		inDegree[e.Target]++
	}
	outbound := g.Outbound()

	queue := make([]string, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		if inDegree[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}

	order := make([]string, 0, len(g.Nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, next := range outbound[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(order) != len(g.Nodes) {
		return nil, fmt.Errorf("workflow graph contains a cycle")
	}
	return order, nil
}

func targetForFreshness(freshness string) (models.StoreTarget, models.Dialect) {
	switch freshness {
	case "realtime":
		return models.StoreLive, models.DialectLive
	case "point":
		return models.StorePoint, models.DialectAnalytical
	default:
		return models.StoreAnalytical, models.DialectAnalytical
	}
}

func defaultAggAlias(function, column string) string {
	if function == "" {
		function = "agg"
	}
	return function + "_" + column
}

// ensureExplicitColumns materializes a bare "SELECT *" into an explicit
// column list, required before appending a computed/aliased expression
// alongside passthrough columns.
func ensureExplicitColumns(sel *sqlast.Select, sch models.Schema) {
	if len(sel.Columns) > 0 {
		return
	}
	for _, col := range sch {
		sel.Columns = append(sel.Columns, sqlast.ColumnRef{Name: col.Name})
	}
}

// buildAndMerge walks nodes in topological order, merging each into the
// upstream segment when it's a simple single-consumer extension, or
// starting a fresh segment when it's a join, union, group_by/pivot
// aggregation boundary, or when the upstream node fans out to more than
// one consumer.
func (c *Compiler) buildAndMerge(g models.Graph, order []string, schemas map[string]models.Schema) ([]*segment, error) {
	nodeByID := g.NodeByID()
	inbound := g.Inbound()
	outbound := g.Outbound()

	state := make(map[string]*segment, len(g.Nodes))
	aliasSeq := 0
	nextAlias := func(prefix string) string {
		aliasSeq++
		return fmt.Sprintf("%s_%d", prefix, aliasSeq)
	}

	// wrapIfShared returns the segment to extend for srcID: the existing
	// segment if srcID has exactly one consumer, or a fresh subquery
	// wrapping it otherwise, so two branches never mutate the same *Select.
	wrapIfShared := func(srcID string) *segment {
		src := state[srcID]
		if len(outbound[srcID]) <= 1 {
			return src
		}
		wrapped := &segment{
			sel: &sqlast.Select{
				From: sqlast.Subquery{Select: src.sel, Alias: nextAlias("seg")},
			},
			target:        src.target,
			dialect:       src.dialect,
			sourceNodeIDs: append([]string{}, src.sourceNodeIDs...),
			params:        cloneParams(src.params),
		}
		return wrapped
	}

	for _, id := range order {
		node := nodeByID[id]

		if node.Type.IsTerminal() {
			continue
		}

		if node.Type == models.NodeDataSource {
			var cfg nodeconfig.DataSource
			if err := node.Config(&cfg); err != nil {
				return nil, &models.CompileError{Kind: "invalid_config", NodeID: id, Err: err}
			}
			target, dialect := targetForFreshness(cfg.Freshness)
			state[id] = &segment{
				sel:           &sqlast.Select{From: sqlast.Table{Name: cfg.Table}},
				target:        target,
				dialect:       dialect,
				sourceNodeIDs: []string{id},
				params:        map[string]any{},
			}
			continue
		}

		srcIDs := inbound[id]

		switch node.Type {
		case models.NodeJoin:
			if len(srcIDs) < 2 {
				return nil, &models.CompileError{Kind: "unresolved_column", NodeID: id, Detail: "join requires two inputs"}
			}
			var cfg nodeconfig.Join
			if err := node.Config(&cfg); err != nil {
				return nil, &models.CompileError{Kind: "invalid_config", NodeID: id, Err: err}
			}
			left := wrapIfShared(srcIDs[0])
			right := wrapIfShared(srcIDs[1])

			joinType := cfg.Type
			if joinType == "" {
				joinType = "INNER"
			}
			on := make([]sqlast.JoinCond, 0, len(cfg.LeftKeys))
			for i := range cfg.LeftKeys {
				if i < len(cfg.RightKeys) {
					on = append(on, sqlast.JoinCond{LeftColumn: cfg.LeftKeys[i], RightColumn: cfg.RightKeys[i]})
				}
			}

			join := sqlast.Join{
				Left:      sqlast.Subquery{Select: left.sel, Alias: "_left"},
				Right:     sqlast.Subquery{Select: right.sel, Alias: "_right"},
				LeftAlias: "_left", RightAlias: "_right",
				Type: joinType,
				On:   on,
			}

			leftSchema, rightSchema := schemas[srcIDs[0]], schemas[srcIDs[1]]
			leftNames := make(map[string]bool, len(leftSchema))
			for _, c := range leftSchema {
				leftNames[c.Name] = true
			}
			var cols []sqlast.Expr
			for _, c := range schemas[id] {
				if leftNames[c.Name] {
					cols = append(cols, sqlast.QualifiedColumnRef{Qualifier: "_left", Name: c.Name})
				} else if _, ok := rightSchema.ByName(c.Name); ok {
					cols = append(cols, sqlast.QualifiedColumnRef{Qualifier: "_right", Name: c.Name})
				}
			}

			state[id] = &segment{
				sel:           &sqlast.Select{Columns: cols, From: join},
				target:        left.target,
				dialect:       left.dialect,
				sourceNodeIDs: append(append([]string{}, left.sourceNodeIDs...), right.sourceNodeIDs...),
				params:        mergeParams(left.params, right.params),
			}

		case models.NodeUnion:
			if len(srcIDs) < 2 {
				return nil, &models.CompileError{Kind: "unresolved_column", NodeID: id, Detail: "union requires two inputs"}
			}
			leftSchema, rightSchema := schemas[srcIDs[0]], schemas[srcIDs[1]]
			if len(leftSchema) != len(rightSchema) {
				return nil, &models.CompileError{Kind: "schema_mismatch", NodeID: id, Detail: "union branches have a different column count"}
			}
			for i := range leftSchema {
				if leftSchema[i].Dtype != rightSchema[i].Dtype {
					return nil, &models.CompileError{Kind: "schema_mismatch", NodeID: id, Detail: "union branches disagree on column " + leftSchema[i].Name}
				}
			}

			left := wrapIfShared(srcIDs[0])
			right := wrapIfShared(srcIDs[1])
			union := &sqlast.UnionAll{Selects: []*sqlast.Select{left.sel, right.sel}}
			state[id] = &segment{
				sel:           &sqlast.Select{From: sqlast.UnionFrom{Union: union, Alias: nextAlias("seg_union")}},
				target:        left.target,
				dialect:       left.dialect,
				sourceNodeIDs: append(append([]string{}, left.sourceNodeIDs...), right.sourceNodeIDs...),
				params:        mergeParams(left.params, right.params),
			}

		case models.NodeGroupBy:
			var cfg nodeconfig.GroupBy
			if err := node.Config(&cfg); err != nil {
				return nil, &models.CompileError{Kind: "invalid_config", NodeID: id, Err: err}
			}
			pre := wrapIfShared(srcIDs[0])
			wrapped := wrapAsSubquery(pre, nextAlias("seg_pre_groupby"))

			cols := make([]sqlast.Expr, 0, len(cfg.GroupColumns)+len(cfg.Aggregations))
			for _, name := range cfg.GroupColumns {
				cols = append(cols, sqlast.ColumnRef{Name: name})
			}
			for _, agg := range cfg.Aggregations {
				alias := agg.Alias
				if alias == "" {
					alias = defaultAggAlias(agg.Function, agg.Column)
				}
				cols = append(cols, sqlast.Aliased{
					Expr:  sqlast.FuncCall{Name: agg.Function, Args: []sqlast.Expr{sqlast.ColumnRef{Name: agg.Column}}},
					Alias: alias,
				})
			}

			wrapped.sel.Columns = cols
			wrapped.sel.GroupBy = cfg.GroupColumns
			state[id] = wrapped

		case models.NodePivot:
			var cfg nodeconfig.Pivot
			if err := node.Config(&cfg); err != nil {
				return nil, &models.CompileError{Kind: "invalid_config", NodeID: id, Err: err}
			}
			pre := wrapIfShared(srcIDs[0])
			wrapped := wrapAsSubquery(pre, nextAlias("seg_pre_pivot"))

			cols := make([]sqlast.Expr, 0, len(cfg.RowColumns)+1)
			for _, name := range cfg.RowColumns {
				cols = append(cols, sqlast.ColumnRef{Name: name})
			}
			agg := cfg.Aggregation
			if agg == "" {
				agg = "SUM"
			}
			if cfg.ValueColumn != "" {
				cols = append(cols, sqlast.Aliased{
					Expr:  sqlast.FuncCall{Name: agg, Args: []sqlast.Expr{sqlast.ColumnRef{Name: cfg.ValueColumn}}},
					Alias: cfg.ValueColumn + "_" + lowerASCII(agg),
				})
			}
			wrapped.sel.Columns = cols
			wrapped.sel.GroupBy = cfg.RowColumns
			state[id] = wrapped

		case models.NodeFormula:
			var cfg nodeconfig.Formula
			if err := node.Config(&cfg); err != nil {
				return nil, &models.CompileError{Kind: "invalid_config", NodeID: id, Err: err}
			}
			target := wrapIfShared(srcIDs[0])
			ensureExplicitColumns(target.sel, schemas[srcIDs[0]])
			expr, err := formula.Parse(cfg.Expression)
			if err != nil {
				return nil, &models.CompileError{Kind: "formula_parse", NodeID: id, Detail: err.Error(), Err: err}
			}
			outName := cfg.OutputColumn
			if outName == "" {
				outName = "calculated"
			}
			target.sel.Columns = append(target.sel.Columns, sqlast.Aliased{Expr: expr, Alias: outName})
			state[id] = target

		case models.NodeWindow:
			var cfg nodeconfig.Window
			if err := node.Config(&cfg); err != nil {
				return nil, &models.CompileError{Kind: "invalid_config", NodeID: id, Err: err}
			}
			target := wrapIfShared(srcIDs[0])
			ensureExplicitColumns(target.sel, schemas[srcIDs[0]])

			fn := cfg.Function
			if fn == "" {
				fn = "ROW_NUMBER"
			}
			var args []sqlast.Expr
			if cfg.SourceColumn != "" {
				args = append(args, sqlast.ColumnRef{Name: cfg.SourceColumn})
			}
			orderBy := make([]sqlast.OrderExpr, 0, len(cfg.OrderBy))
			for _, k := range cfg.OrderBy {
				orderBy = append(orderBy, sqlast.OrderExpr{Column: k.Column, Descending: k.Descending})
			}
			outName := cfg.OutputColumn
			if outName == "" {
				outName = "window_result"
			}
			target.sel.Columns = append(target.sel.Columns, sqlast.Aliased{
				Expr: sqlast.WindowCall{
					Func:        sqlast.FuncCall{Name: fn, Args: args},
					PartitionBy: cfg.PartitionBy,
					OrderBy:     orderBy,
				},
				Alias: outName,
			})
			state[id] = target

		case models.NodeFilter:
			var cfg nodeconfig.Filter
			if err := node.Config(&cfg); err != nil {
				return nil, &models.CompileError{Kind: "invalid_config", NodeID: id, Err: err}
			}
			target := wrapIfShared(srcIDs[0])
			pred, err := buildFilterPredicate(target, cfg)
			if err != nil {
				return nil, &models.CompileError{Kind: "invalid_config", NodeID: id, Detail: err.Error(), Err: err}
			}
			target.sel.Where = append(target.sel.Where, pred)
			state[id] = target

		case models.NodeSort:
			var cfg nodeconfig.Sort
			if err := node.Config(&cfg); err != nil {
				return nil, &models.CompileError{Kind: "invalid_config", NodeID: id, Err: err}
			}
			target := wrapIfShared(srcIDs[0])
			keys := make([]sqlast.OrderExpr, 0, len(cfg.Keys))
			for _, k := range cfg.Keys {
				keys = append(keys, sqlast.OrderExpr{Column: k.Column, Descending: k.Descending})
			}
			target.sel.OrderBy = keys
			state[id] = target

		case models.NodeSelect:
			var cfg nodeconfig.Select
			if err := node.Config(&cfg); err != nil {
				return nil, &models.CompileError{Kind: "invalid_config", NodeID: id, Err: err}
			}
			target := wrapIfShared(srcIDs[0])
			cols := make([]sqlast.Expr, 0, len(cfg.Columns))
			for _, name := range cfg.Columns {
				cols = append(cols, sqlast.ColumnRef{Name: name})
			}
			target.sel.Columns = cols
			state[id] = target

		case models.NodeRename:
			var cfg nodeconfig.Rename
			if err := node.Config(&cfg); err != nil {
				return nil, &models.CompileError{Kind: "invalid_config", NodeID: id, Err: err}
			}
			target := wrapIfShared(srcIDs[0])
			ensureExplicitColumns(target.sel, schemas[srcIDs[0]])
			for i, col := range target.sel.Columns {
				if ref, ok := col.(sqlast.ColumnRef); ok {
					if newName, ok := cfg.RenameMap[ref.Name]; ok {
						target.sel.Columns[i] = sqlast.Aliased{Expr: ref, Alias: newName}
					}
				}
			}
			state[id] = target

		case models.NodeUnique:
			target := wrapIfShared(srcIDs[0])
			target.sel.Distinct = true
			state[id] = target

		case models.NodeLimit:
			var cfg nodeconfig.Limit
			if err := node.Config(&cfg); err != nil {
				return nil, &models.CompileError{Kind: "invalid_config", NodeID: id, Err: err}
			}
			target := wrapIfShared(srcIDs[0])
			count := cfg.Count
			target.sel.Limit = &count
			if cfg.Offset > 0 {
				offset := cfg.Offset
				target.sel.Offset = &offset
			}
			state[id] = target

		case models.NodeSample:
			// Sampling is carried as an execution hint, not a SQL clause —
			// the store client applies it when dispatching.
			var cfg nodeconfig.Sample
			if err := node.Config(&cfg); err != nil {
				return nil, &models.CompileError{Kind: "invalid_config", NodeID: id, Err: err}
			}
			target := wrapIfShared(srcIDs[0])
			target.params["__sample_fraction"] = cfg.Fraction
			state[id] = target

		default:
			return nil, &models.CompileError{Kind: "unknown_type", NodeID: id, Detail: string(node.Type)}
		}

		// Record the merged node on its segment so applyLimits can find the
		// segment that feeds each output node.
		if seg := state[id]; seg != nil {
			seg.sourceNodeIDs = append(seg.sourceNodeIDs, id)
		}
	}

	return collectTerminalSegments(g, state), nil
}

func wrapAsSubquery(src *segment, alias string) *segment {
	return &segment{
		sel:           &sqlast.Select{From: sqlast.Subquery{Select: src.sel, Alias: alias}},
		target:        src.target,
		dialect:       src.dialect,
		sourceNodeIDs: append([]string{}, src.sourceNodeIDs...),
		params:        cloneParams(src.params),
	}
}

func cloneParams(p map[string]any) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func mergeParams(a, b map[string]any) map[string]any {
	out := cloneParams(a)
	for k, v := range b {
		out[k] = v
	}
	return out
}

// buildFilterPredicate renders cfg into a WHERE predicate per spec.md
// §4.2's filter operator set: contains/starts with/ends with wrap the
// value in SQL LIKE wildcards, between and in expand cfg.Value's
// comma-separated form into two or more bind parameters, and the literal
// value "NULL" on =/!= becomes IS NULL/IS NOT NULL instead of a bound
// comparison.
func buildFilterPredicate(target *segment, cfg nodeconfig.Filter) (sqlast.Predicate, error) {
	col := sqlast.ColumnRef{Name: cfg.Column}

	if cfg.Value == "NULL" {
		switch cfg.Operator {
		case "", "=":
			return sqlast.Predicate{Column: col, Operator: "IS NULL"}, nil
		case "!=":
			return sqlast.Predicate{Column: col, Operator: "IS NOT NULL"}, nil
		}
	}

	switch cfg.Operator {
	case "", "=":
		return sqlast.Predicate{Column: col, Operator: "=", ParamName: target.newParam(cfg.Value)}, nil
	case "!=", "<", "<=", ">", ">=":
		return sqlast.Predicate{Column: col, Operator: cfg.Operator, ParamName: target.newParam(cfg.Value)}, nil
	case "contains":
		return sqlast.Predicate{Column: col, Operator: "LIKE", ParamName: target.newParam("%" + cfg.Value + "%")}, nil
	case "not_contains":
		return sqlast.Predicate{Column: col, Operator: "NOT LIKE", ParamName: target.newParam("%" + cfg.Value + "%")}, nil
	case "starts with":
		return sqlast.Predicate{Column: col, Operator: "LIKE", ParamName: target.newParam(cfg.Value + "%")}, nil
	case "ends with":
		return sqlast.Predicate{Column: col, Operator: "LIKE", ParamName: target.newParam("%" + cfg.Value)}, nil
	case "between":
		parts := strings.SplitN(cfg.Value, ",", 2)
		if len(parts) != 2 {
			return sqlast.Predicate{}, fmt.Errorf("between filter requires a value of the form \"a,b\", got %q", cfg.Value)
		}
		lo := target.newParam(strings.TrimSpace(parts[0]))
		hi := target.newParam(strings.TrimSpace(parts[1]))
		return sqlast.Predicate{Column: col, Operator: "BETWEEN", ParamNames: []string{lo, hi}}, nil
	case "in":
		items := strings.Split(cfg.Value, ",")
		names := make([]string, len(items))
		for i, item := range items {
			names[i] = target.newParam(strings.TrimSpace(item))
		}
		return sqlast.Predicate{Column: col, Operator: "IN", ParamNames: names}, nil
	default:
		return sqlast.Predicate{}, fmt.Errorf("unknown filter operator %q", cfg.Operator)
	}
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// collectTerminalSegments gathers the distinct segments that feed directly
// into a terminal output node, deduplicating pointer identity so a segment
// shared by two output nodes (e.g. a chart and a table reading the same
// upstream data) appears once.
func collectTerminalSegments(g models.Graph, state map[string]*segment) []*segment {
	inbound := g.Inbound()
	seen := map[*segment]bool{}
	var out []*segment
	for _, n := range g.Nodes {
		if !n.Type.IsTerminal() {
			continue
		}
		srcs := inbound[n.ID]
		if len(srcs) == 0 {
			continue
		}
		seg := state[srcs[0]]
		if seg == nil || seen[seg] {
			continue
		}
		seen[seg] = true
		out = append(out, seg)
	}
	return out
}

// applyLimits assigns each terminal segment a LIMIT: the smallest max_rows
// across every output node it feeds, or DefaultHardCap if none specify
// one, never loosening a LIMIT an upstream limit node already set tighter.
func (c *Compiler) applyLimits(g models.Graph, segs []*segment) []models.CompiledSegment {
	inbound := g.Inbound()

	segIndex := map[*segment]int{}
	for i, s := range segs {
		segIndex[s] = i
	}

	// Find, for each segment, the node whose output it represents — any
	// node id in sourceNodeIDs that is a direct input to a terminal node
	// works for looking up max_rows.
	limitFor := make(map[int]int, len(segs))
	for _, n := range g.Nodes {
		if !n.Type.IsTerminal() {
			continue
		}
		srcs := inbound[n.ID]
		if len(srcs) == 0 {
			continue
		}
		var cfg nodeconfig.Output
		_ = n.Config(&cfg)
		maxRows := cfg.MaxRows
		if maxRows <= 0 {
			maxRows = DefaultHardCap
		}
		// locate the segment feeding this output node
		for _, s := range segs {
			for _, id := range s.sourceNodeIDs {
				if id == srcs[0] {
					idx := segIndex[s]
					if existing, ok := limitFor[idx]; !ok || maxRows < existing {
						limitFor[idx] = maxRows
					}
				}
			}
		}
	}

	result := make([]models.CompiledSegment, len(segs))
	for i, s := range segs {
		limit := DefaultHardCap
		if v, ok := limitFor[i]; ok {
			limit = v
		}
		if s.sel.Limit == nil || *s.sel.Limit > limit {
			l := limit
			s.sel.Limit = &l
		}
		result[i] = models.CompiledSegment{
			SQL:           s.sel.Render(),
			Dialect:       s.dialect,
			TargetStore:   s.target,
			SourceNodeIDs: s.sourceNodeIDs,
			Params:        s.params,
			Limit:         s.sel.Limit,
			Offset:        s.sel.Offset,
		}
	}
	return result
}
