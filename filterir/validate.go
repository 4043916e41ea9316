package filterir

import (
	"fmt"

	"github.com/tobyn/gaiaq/catalog"
)

// ValidationResult reports advisory findings about a predicate tree.
// Warnings do not block compilation; the compiler raises its own errors for
// the subset that is fatal.
type ValidationResult struct {
	OK       bool
	Warnings []string
}

// Validate walks a predicate tree and collects warnings: unknown operation
// names, arity drift against the catalog, empty combinators, suspicious
// literals.
func Validate(p Predicate) ValidationResult {
	v := &validator{}
	v.walkPredicate(p)
	return ValidationResult{
		OK:       len(v.warnings) == 0,
		Warnings: v.warnings,
	}
}

type validator struct {
	warnings []string
}

func (v *validator) warnf(format string, args ...any) {
	v.warnings = append(v.warnings, fmt.Sprintf(format, args...))
}

func (v *validator) walkPredicate(p Predicate) {
	switch p := p.(type) {
	case Spatial:
		v.spatial(p)
	case *Spatial:
		v.spatial(*p)
	case Compare:
		v.compare(p)
	case *Compare:
		v.compare(*p)
	case Between:
		v.walkExpr(p.Expr)
		v.walkExpr(p.Low)
		v.walkExpr(p.High)
	case *Between:
		v.walkPredicate(*p)
	case Like:
		v.like(p)
	case *Like:
		v.like(*p)
	case In:
		v.in(p)
	case *In:
		v.in(*p)
	case IsNull:
		v.walkExpr(p.Expr)
	case *IsNull:
		v.walkPredicate(*p)
	case And:
		if len(p.Predicates) == 0 {
			v.warnf("empty AND matches every row")
		}
		for _, sub := range p.Predicates {
			v.walkPredicate(sub)
		}
	case *And:
		v.walkPredicate(*p)
	case Or:
		if len(p.Predicates) == 0 {
			v.warnf("empty OR matches no row")
		}
		for _, sub := range p.Predicates {
			v.walkPredicate(sub)
		}
	case *Or:
		v.walkPredicate(*p)
	case Not:
		if p.Predicate == nil {
			v.warnf("NOT without a predicate")
			return
		}
		v.walkPredicate(p.Predicate)
	case *Not:
		v.walkPredicate(*p)
	case nil:
		v.warnf("nil predicate")
	default:
		v.warnf("unknown predicate node %T", p)
	}
}

func (v *validator) spatial(p Spatial) {
	spec, err := catalog.Resolve(p.Op)
	if err != nil {
		v.warnf("spatial predicate: %v", err)
	} else {
		if got := 2 + len(p.Extra); got != spec.Arity {
			v.warnf("operation %q takes %d arguments, tree carries %d", spec.Name, spec.Arity, got)
		}
		if spec.Result != catalog.ResultBoolean {
			v.warnf("operation %q yields a %s, not a predicate", spec.Name, spec.Result)
		}
	}
	switch p.Left.(type) {
	case Column, *Column, FuncCall, *FuncCall:
	case nil:
		v.warnf("spatial predicate %q has no left side", p.Op)
	default:
		v.warnf("spatial predicate %q left side is %T, want a column or function call", p.Op, p.Left)
	}
	if p.Right == nil {
		v.warnf("spatial predicate %q has no operand", p.Op)
	} else {
		v.walkExpr(p.Right)
	}
	for _, extra := range p.Extra {
		v.walkExpr(extra)
	}
}

func (v *validator) compare(p Compare) {
	switch p.Op {
	case CompareEq, CompareNe, CompareLt, CompareLe, CompareGt, CompareGe:
	default:
		v.warnf("unknown comparison operator %q", string(p.Op))
	}
	v.walkExpr(p.Left)
	v.walkExpr(p.Right)
}

func (v *validator) like(p Like) {
	v.walkExpr(p.Expr)
	v.walkExpr(p.Pattern)
}

func (v *validator) in(p In) {
	v.walkExpr(p.Expr)
	if len(p.List) == 0 {
		v.warnf("IN with an empty list matches no row")
	}
	for _, item := range p.List {
		v.walkExpr(item)
	}
}

func (v *validator) walkExpr(e Expr) {
	switch e := e.(type) {
	case Column:
		if e.Name == "" {
			v.warnf("column reference with empty name")
		}
	case *Column:
		v.walkExpr(*e)
	case Literal:
		switch e.Value.(type) {
		case string, int, int64, float64, bool:
		default:
			v.warnf("literal of unsupported type %T", e.Value)
		}
	case *Literal:
		v.walkExpr(*e)
	case GeometryLiteral:
		if e.Geom.Type() == 0 {
			v.warnf("zero geometry literal")
		}
	case *GeometryLiteral:
		v.walkExpr(*e)
	case Arith:
		switch e.Op {
		case ArithAdd, ArithSub, ArithMul, ArithDiv:
		default:
			v.warnf("unknown arithmetic operator %q", string(e.Op))
		}
		if e.Op == ArithDiv {
			if lit, ok := e.Right.(Literal); ok {
				switch val := lit.Value.(type) {
				case int64:
					if val == 0 {
						v.warnf("division by literal zero")
					}
				case float64:
					if val == 0 {
						v.warnf("division by literal zero")
					}
				}
			}
		}
		v.walkExpr(e.Left)
		v.walkExpr(e.Right)
	case *Arith:
		v.walkExpr(*e)
	case FuncCall:
		spec, err := catalog.Resolve(e.Op)
		if err != nil {
			v.warnf("function call: %v", err)
		} else {
			if spec.Result == catalog.ResultBoolean {
				v.warnf("operation %q is a predicate, not an expression", spec.Name)
			}
			if len(e.Args) != spec.Arity {
				v.warnf("operation %q takes %d arguments, call has %d", spec.Name, spec.Arity, len(e.Args))
			}
		}
		for _, arg := range e.Args {
			v.walkExpr(arg)
		}
	case *FuncCall:
		v.walkExpr(*e)
	case nil:
		v.warnf("nil expression")
	default:
		v.warnf("unknown expression node %T", e)
	}
}
