// Package filtersql compiles filter trees into parameterized SpatiaLite SQL.
//
// Every literal becomes a ? placeholder with its value in the parameter
// list, geometry literals as hex-encoded EWKB behind GeomFromEWKB(?), the
// text form SpatiaLite's EWKB functions speak. Values are never
// interpolated into the SQL text. Geometry operands are checked for
// reference-system agreement against the declared schema before anything
// is emitted.
package filtersql

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/tobyn/gaiaq/catalog"
	"github.com/tobyn/gaiaq/filterir"
	"github.com/tobyn/gaiaq/geo"
	"github.com/tobyn/gaiaq/schema"
)

// Compiler compiles filter predicates against one declared table.
type Compiler struct {
	Schema *schema.Set
	Table  string
}

// NewCompiler creates a Compiler for the given table.
func NewCompiler(set *schema.Set, table string) *Compiler {
	return &Compiler{Schema: set, Table: table}
}

// Compiled is a WHERE-clause fragment with its bound parameters in
// placeholder order.
type Compiled struct {
	SQL    string
	Params []any
	// IndexUsable reports whether an R*Tree prefilter could serve the
	// fragment: a bounding-box leaf, a conjunction containing one, or a
	// disjunction made only of them. Callers may use it to schedule
	// filters; the emitted SQL is the same either way.
	IndexUsable bool
}

// fragment is one compiled subtree.
type fragment struct {
	sql         string
	params      []any
	indexUsable bool
}

// Compile converts a predicate tree to a parameterized WHERE fragment.
// A nil predicate compiles to a vacuously true fragment.
func (c *Compiler) Compile(p filterir.Predicate) (Compiled, error) {
	frag, err := c.compilePredicate(p)
	if err != nil {
		return Compiled{}, err
	}
	return Compiled{SQL: frag.sql, Params: frag.params, IndexUsable: frag.indexUsable}, nil
}

func (c *Compiler) compilePredicate(p filterir.Predicate) (fragment, error) {
	if p == nil {
		return fragment{sql: "1 = 1"}, nil
	}

	switch pred := p.(type) {
	case filterir.Spatial:
		return c.compileSpatial(pred)
	case *filterir.Spatial:
		return c.compileSpatial(*pred)
	case filterir.Compare:
		return c.compileCompare(pred)
	case *filterir.Compare:
		return c.compileCompare(*pred)
	case filterir.Between:
		return c.compileBetween(pred)
	case *filterir.Between:
		return c.compileBetween(*pred)
	case filterir.Like:
		return c.compileLike(pred)
	case *filterir.Like:
		return c.compileLike(*pred)
	case filterir.In:
		return c.compileIn(pred)
	case *filterir.In:
		return c.compileIn(*pred)
	case filterir.IsNull:
		return c.compileIsNull(pred)
	case *filterir.IsNull:
		return c.compileIsNull(*pred)
	case filterir.And:
		return c.compileAnd(pred)
	case *filterir.And:
		return c.compileAnd(*pred)
	case filterir.Or:
		return c.compileOr(pred)
	case *filterir.Or:
		return c.compileOr(*pred)
	case filterir.Not:
		return c.compileNot(pred)
	case *filterir.Not:
		return c.compileNot(*pred)
	default:
		return fragment{}, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// compileSpatial compiles a spatial predicate to a SpatiaLite function
// call, for example Intersects("geom", GeomFromEWKB(?)).
func (c *Compiler) compileSpatial(s filterir.Spatial) (fragment, error) {
	spec, err := catalog.Resolve(s.Op)
	if err != nil {
		return fragment{}, err
	}
	if spec.Result != catalog.ResultBoolean {
		return fragment{}, fmt.Errorf("%s does not produce a condition", s.Op)
	}

	args := make([]filterir.Expr, 0, 2+len(s.Extra))
	args = append(args, s.Left, s.Right)
	args = append(args, s.Extra...)

	frag, _, err := c.compileCall(spec, args, 0)
	if err != nil {
		return fragment{}, fmt.Errorf("compile %s: %w", s.Op, err)
	}
	if spec.Negated {
		frag.sql = "NOT " + frag.sql
	}
	frag.indexUsable = spec.IndexUsable
	return frag, nil
}

// compileCall emits one catalog function call. inherit is the reference
// system adopted by zero-SRID geometry literals when no other operand
// supplies one. It returns the fragment and the reference system of the
// call's result, meaningful for geometry-valued calls.
func (c *Compiler) compileCall(spec catalog.Spec, args []filterir.Expr, inherit int32) (fragment, int32, error) {
	if len(args) != spec.Arity {
		return fragment{}, 0, fmt.Errorf("%s takes %d arguments, got %d", spec.Name, spec.Arity, len(args))
	}

	// Calls taking a target srid convert between reference systems, so
	// their geometry operand is exempt from agreement checks. It must
	// still have a known system of its own to convert from.
	retarget := false
	for _, kind := range spec.Args {
		if kind == catalog.ArgSRID {
			retarget = true
		}
	}

	// First pass over geometry operands: settle the shared reference
	// system before any literal is encoded.
	infos := make([]geomInfo, len(args))
	stamp := inherit
	stampKnown := inherit != 0
	for i, arg := range args {
		if spec.Args[i] != catalog.ArgGeometry {
			continue
		}
		info, err := c.analyzeGeomExpr(arg)
		if err != nil {
			return fragment{}, 0, err
		}
		infos[i] = info
		if retarget {
			if info.inherits {
				return fragment{}, 0, fmt.Errorf("%s: source reference system is unknown", spec.Name)
			}
			continue
		}
		if !info.inherits && !stampKnown {
			stamp = info.srid
			stampKnown = true
		}
	}
	if !retarget {
		for i := range args {
			if spec.Args[i] != catalog.ArgGeometry {
				continue
			}
			info := infos[i]
			if info.inherits || info.srid == stamp {
				continue
			}
			merr := &SridMismatchError{
				Operation:   spec.Name,
				ColumnSRID:  stamp,
				LiteralSRID: info.srid,
			}
			if info.column != "" {
				merr.Column = info.column
				merr.ColumnSRID = info.srid
				merr.LiteralSRID = stamp
			} else {
				for _, other := range infos {
					if other.column != "" {
						merr.Column = other.column
						merr.ColumnSRID = other.srid
						break
					}
				}
			}
			return fragment{}, 0, merr
		}
	}

	// Second pass emits each operand with the settled reference system.
	emitStamp := stamp
	if retarget {
		emitStamp = 0
	}
	var parts []string
	var params []any
	resultSRID := stamp
	for i, arg := range args {
		switch spec.Args[i] {
		case catalog.ArgGeometry:
			frag, err := c.emitGeomExpr(arg, emitStamp)
			if err != nil {
				return fragment{}, 0, err
			}
			parts = append(parts, frag.sql)
			params = append(params, frag.params...)
		case catalog.ArgScalar:
			frag, err := c.compileExpr(arg)
			if err != nil {
				return fragment{}, 0, err
			}
			parts = append(parts, frag.sql)
			params = append(params, frag.params...)
		case catalog.ArgSRID:
			target, err := sridLiteral(arg)
			if err != nil {
				return fragment{}, 0, fmt.Errorf("%s: %w", spec.Name, err)
			}
			parts = append(parts, "?")
			params = append(params, int64(target))
			resultSRID = target
		default:
			return fragment{}, 0, fmt.Errorf("%s: unknown argument kind", spec.Name)
		}
	}

	sql := spec.SQLName + "(" + strings.Join(parts, ", ") + ")"
	return fragment{sql: sql, params: params}, resultSRID, nil
}

// geomInfo is the statically known shape of a geometry operand.
type geomInfo struct {
	srid int32
	// inherits marks a zero-SRID literal that adopts whatever reference
	// system its siblings establish.
	inherits bool
	// column names the declared column the operand is rooted at, if any.
	column string
}

func (c *Compiler) analyzeGeomExpr(e filterir.Expr) (geomInfo, error) {
	switch expr := e.(type) {
	case filterir.Column:
		col, ok := c.Schema.Column(c.Table, expr.Name)
		if !ok {
			return geomInfo{}, fmt.Errorf("%q is not a declared geometry column of table %q", expr.Name, c.Table)
		}
		return geomInfo{srid: col.SRID, column: col.Name}, nil
	case *filterir.Column:
		return c.analyzeGeomExpr(*expr)
	case filterir.GeometryLiteral:
		if expr.Geom.Empty() {
			return geomInfo{}, fmt.Errorf("zero geometry literal")
		}
		srid := expr.Geom.SRID()
		return geomInfo{srid: srid, inherits: srid == 0}, nil
	case *filterir.GeometryLiteral:
		return c.analyzeGeomExpr(*expr)
	case filterir.FuncCall:
		return c.analyzeGeomCall(expr)
	case *filterir.FuncCall:
		return c.analyzeGeomCall(*expr)
	default:
		return geomInfo{}, fmt.Errorf("%T is not a geometry expression", e)
	}
}

func (c *Compiler) analyzeGeomCall(call filterir.FuncCall) (geomInfo, error) {
	spec, err := catalog.Resolve(call.Op)
	if err != nil {
		return geomInfo{}, err
	}
	if spec.Result != catalog.ResultGeometry {
		return geomInfo{}, fmt.Errorf("%s does not produce a geometry", call.Op)
	}
	if len(call.Args) != spec.Arity {
		return geomInfo{}, fmt.Errorf("%s takes %d arguments, got %d", spec.Name, spec.Arity, len(call.Args))
	}

	// Transform re-tags its input, so the call's reference system is the
	// target, not the operand's.
	for i, kind := range spec.Args {
		if kind != catalog.ArgSRID {
			continue
		}
		target, err := sridLiteral(call.Args[i])
		if err != nil {
			return geomInfo{}, fmt.Errorf("%s: %w", spec.Name, err)
		}
		inner, err := c.analyzeGeomExpr(call.Args[0])
		if err != nil {
			return geomInfo{}, err
		}
		return geomInfo{srid: target, column: inner.column}, nil
	}

	// Buffer, Envelope and friends keep their operand's reference system.
	inner, err := c.analyzeGeomExpr(call.Args[0])
	if err != nil {
		return geomInfo{}, err
	}
	return inner, nil
}

func (c *Compiler) emitGeomExpr(e filterir.Expr, stamp int32) (fragment, error) {
	switch expr := e.(type) {
	case filterir.Column:
		return fragment{sql: quoteIdent(expr.Name)}, nil
	case *filterir.Column:
		return c.emitGeomExpr(*expr, stamp)
	case filterir.GeometryLiteral:
		g := expr.Geom
		if g.SRID() == 0 && stamp != 0 {
			stamped, err := g.WithSRID(stamp)
			if err != nil {
				return fragment{}, err
			}
			g = stamped
		}
		data, err := geo.Encode(g)
		if err != nil {
			return fragment{}, err
		}
		return fragment{sql: "GeomFromEWKB(?)", params: []any{HexEWKB(data)}}, nil
	case *filterir.GeometryLiteral:
		return c.emitGeomExpr(*expr, stamp)
	case filterir.FuncCall:
		spec, err := catalog.Resolve(expr.Op)
		if err != nil {
			return fragment{}, err
		}
		frag, _, err := c.compileCall(spec, expr.Args, stamp)
		return frag, err
	case *filterir.FuncCall:
		return c.emitGeomExpr(*expr, stamp)
	default:
		return fragment{}, fmt.Errorf("%T is not a geometry expression", e)
	}
}

// sridLiteral extracts a literal reference-system id, required where an
// operation's target system must be known while compiling.
func sridLiteral(e filterir.Expr) (int32, error) {
	lit, ok := e.(filterir.Literal)
	if !ok {
		if p, isPtr := e.(*filterir.Literal); isPtr {
			lit, ok = *p, true
		}
	}
	if !ok {
		return 0, fmt.Errorf("target srid must be a literal")
	}
	var srid int64
	switch v := lit.Value.(type) {
	case int:
		srid = int64(v)
	case int64:
		srid = v
	default:
		return 0, fmt.Errorf("target srid must be an integer, got %T", lit.Value)
	}
	if srid < 0 || srid > 1<<31-1 {
		return 0, fmt.Errorf("target srid %d out of range", srid)
	}
	return int32(srid), nil
}

func (c *Compiler) compileCompare(cmp filterir.Compare) (fragment, error) {
	left, err := c.compileExpr(cmp.Left)
	if err != nil {
		return fragment{}, err
	}
	right, err := c.compileExpr(cmp.Right)
	if err != nil {
		return fragment{}, err
	}
	op := string(cmp.Op)
	switch cmp.Op {
	case filterir.CompareEq, filterir.CompareNe, filterir.CompareLt,
		filterir.CompareLe, filterir.CompareGt, filterir.CompareGe:
	default:
		return fragment{}, fmt.Errorf("unsupported comparison operator %q", cmp.Op)
	}
	return fragment{
		sql:    left.sql + " " + op + " " + right.sql,
		params: append(left.params, right.params...),
	}, nil
}

func (c *Compiler) compileBetween(b filterir.Between) (fragment, error) {
	expr, err := c.compileExpr(b.Expr)
	if err != nil {
		return fragment{}, err
	}
	low, err := c.compileExpr(b.Low)
	if err != nil {
		return fragment{}, err
	}
	high, err := c.compileExpr(b.High)
	if err != nil {
		return fragment{}, err
	}
	keyword := " BETWEEN "
	if b.Not {
		keyword = " NOT BETWEEN "
	}
	params := append(expr.params, low.params...)
	params = append(params, high.params...)
	return fragment{
		sql:    expr.sql + keyword + low.sql + " AND " + high.sql,
		params: params,
	}, nil
}

func (c *Compiler) compileLike(l filterir.Like) (fragment, error) {
	expr, err := c.compileExpr(l.Expr)
	if err != nil {
		return fragment{}, err
	}
	pattern, err := c.compileExpr(l.Pattern)
	if err != nil {
		return fragment{}, err
	}
	left, right := expr.sql, pattern.sql
	if l.CaseInsensitive {
		left = "LOWER(" + left + ")"
		right = "LOWER(" + right + ")"
	}
	keyword := " LIKE "
	if l.Not {
		keyword = " NOT LIKE "
	}
	return fragment{
		sql:    left + keyword + right,
		params: append(expr.params, pattern.params...),
	}, nil
}

func (c *Compiler) compileIn(in filterir.In) (fragment, error) {
	if len(in.List) == 0 {
		// IN over nothing matches nothing.
		if in.Not {
			return fragment{sql: "1 = 1"}, nil
		}
		return fragment{sql: "0 = 1"}, nil
	}
	expr, err := c.compileExpr(in.Expr)
	if err != nil {
		return fragment{}, err
	}
	placeholders := make([]string, 0, len(in.List))
	params := expr.params
	for _, item := range in.List {
		frag, err := c.compileExpr(item)
		if err != nil {
			return fragment{}, err
		}
		placeholders = append(placeholders, frag.sql)
		params = append(params, frag.params...)
	}
	keyword := " IN ("
	if in.Not {
		keyword = " NOT IN ("
	}
	return fragment{
		sql:    expr.sql + keyword + strings.Join(placeholders, ", ") + ")",
		params: params,
	}, nil
}

func (c *Compiler) compileIsNull(n filterir.IsNull) (fragment, error) {
	expr, err := c.compileExpr(n.Expr)
	if err != nil {
		return fragment{}, err
	}
	suffix := " IS NULL"
	if n.Not {
		suffix = " IS NOT NULL"
	}
	return fragment{sql: expr.sql + suffix, params: expr.params}, nil
}

// compileAnd joins child fragments with AND. Fragments an R*Tree could
// serve are moved in front of the rest so cheap bounding-box checks run
// first; the relative order within each group is kept.
func (c *Compiler) compileAnd(and filterir.And) (fragment, error) {
	if len(and.Predicates) == 0 {
		return fragment{sql: "1 = 1"}, nil
	}

	frags := make([]fragment, 0, len(and.Predicates))
	for _, pred := range and.Predicates {
		frag, err := c.compilePredicate(pred)
		if err != nil {
			return fragment{}, err
		}
		frag.sql = groupForJoin(pred, frag.sql)
		frags = append(frags, frag)
	}

	ordered := make([]fragment, 0, len(frags))
	for _, f := range frags {
		if f.indexUsable {
			ordered = append(ordered, f)
		}
	}
	usable := len(ordered) > 0
	for _, f := range frags {
		if !f.indexUsable {
			ordered = append(ordered, f)
		}
	}

	var parts []string
	var params []any
	for _, f := range ordered {
		parts = append(parts, f.sql)
		params = append(params, f.params...)
	}
	return fragment{
		sql:         strings.Join(parts, " AND "),
		params:      params,
		indexUsable: usable,
	}, nil
}

// compileOr joins child fragments with OR, in the order given. The
// disjunction is only index-served when every branch is.
func (c *Compiler) compileOr(or filterir.Or) (fragment, error) {
	if len(or.Predicates) == 0 {
		// A disjunction over nothing is false.
		return fragment{sql: "0 = 1"}, nil
	}

	var parts []string
	var params []any
	usable := true
	for _, pred := range or.Predicates {
		frag, err := c.compilePredicate(pred)
		if err != nil {
			return fragment{}, err
		}
		parts = append(parts, groupForJoin(pred, frag.sql))
		params = append(params, frag.params...)
		usable = usable && frag.indexUsable
	}
	return fragment{
		sql:         strings.Join(parts, " OR "),
		params:      params,
		indexUsable: usable,
	}, nil
}

func (c *Compiler) compileNot(not filterir.Not) (fragment, error) {
	if not.Predicate == nil {
		return fragment{}, fmt.Errorf("NOT of nothing")
	}
	frag, err := c.compilePredicate(not.Predicate)
	if err != nil {
		return fragment{}, err
	}
	// Negation defeats the prefilter, so usability does not survive it.
	return fragment{
		sql:    "NOT (" + frag.sql + ")",
		params: frag.params,
	}, nil
}

// groupForJoin parenthesizes compound children so AND and OR keep their
// intended precedence when joined.
func groupForJoin(p filterir.Predicate, sql string) string {
	switch p.(type) {
	case filterir.And, *filterir.And, filterir.Or, *filterir.Or:
		return "(" + sql + ")"
	default:
		return sql
	}
}

// compileExpr compiles a scalar-valued expression. Geometry values are
// rejected here; they only appear as operands of catalog calls.
func (c *Compiler) compileExpr(e filterir.Expr) (fragment, error) {
	switch expr := e.(type) {
	case filterir.Column:
		return fragment{sql: quoteIdent(expr.Name)}, nil
	case *filterir.Column:
		return c.compileExpr(*expr)
	case filterir.Literal:
		param, err := literalParam(expr.Value)
		if err != nil {
			return fragment{}, err
		}
		return fragment{sql: "?", params: []any{param}}, nil
	case *filterir.Literal:
		return c.compileExpr(*expr)
	case filterir.Arith:
		return c.compileArith(expr)
	case *filterir.Arith:
		return c.compileArith(*expr)
	case filterir.FuncCall:
		return c.compileScalarCall(expr)
	case *filterir.FuncCall:
		return c.compileScalarCall(*expr)
	case filterir.GeometryLiteral, *filterir.GeometryLiteral:
		return fragment{}, fmt.Errorf("geometry literal needs a spatial operation")
	default:
		return fragment{}, fmt.Errorf("unsupported expression type: %T", e)
	}
}

func (c *Compiler) compileArith(a filterir.Arith) (fragment, error) {
	switch a.Op {
	case filterir.ArithAdd, filterir.ArithSub, filterir.ArithMul, filterir.ArithDiv:
	default:
		return fragment{}, fmt.Errorf("unsupported arithmetic operator %q", a.Op)
	}
	left, err := c.compileExpr(a.Left)
	if err != nil {
		return fragment{}, err
	}
	right, err := c.compileExpr(a.Right)
	if err != nil {
		return fragment{}, err
	}
	return fragment{
		sql:    "(" + left.sql + " " + string(a.Op) + " " + right.sql + ")",
		params: append(left.params, right.params...),
	}, nil
}

// compileScalarCall handles catalog calls used as expressions, Distance
// in a comparison being the common case.
func (c *Compiler) compileScalarCall(call filterir.FuncCall) (fragment, error) {
	spec, err := catalog.Resolve(call.Op)
	if err != nil {
		return fragment{}, err
	}
	if spec.Result == catalog.ResultBoolean {
		return fragment{}, fmt.Errorf("%s is a condition, not a value", call.Op)
	}
	frag, _, err := c.compileCall(spec, call.Args, 0)
	if err != nil {
		return fragment{}, fmt.Errorf("compile %s: %w", call.Op, err)
	}
	return frag, nil
}

// literalParam converts a literal to a driver-friendly value. Supports
// string, int, float and bool; nil passes through as SQL NULL.
func literalParam(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case int:
		return int64(val), nil
	case int64:
		return val, nil
	case float64:
		return val, nil
	case bool:
		return val, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported literal type for SQL parameter: %T", v)
	}
}

// quoteIdent double-quotes an identifier for SQLite, doubling embedded
// quotes.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// HexEWKB renders encoded geometry bytes in the upper-case hexadecimal
// form GeomFromEWKB accepts and AsEWKB returns.
func HexEWKB(data []byte) string {
	return strings.ToUpper(hex.EncodeToString(data))
}
