// Package filterir defines the filter expression tree handed to the SQL
// compiler: spatial and scalar predicates over column references, literals
// and function calls, combined with AND, OR and NOT.
//
// Both interfaces are sealed with unexported marker methods. The set of
// node types is closed; consumers switch over it exhaustively and adding a
// node is a deliberate change to every consumer.
package filterir

import (
	"github.com/tobyn/gaiaq/geo"
)

// Expr is a value-producing node: a column reference, a literal, an
// arithmetic combination or a spatial function call.
type Expr interface {
	exprNode()
}

// Column references a column of the table being filtered.
type Column struct {
	Name string
}

// Literal is a scalar constant: string, int64, float64 or bool.
type Literal struct {
	Value any
}

// GeometryLiteral is a geometry constant. It is always bound as an encoded
// parameter, never rendered into SQL text.
type GeometryLiteral struct {
	Geom geo.Geometry
}

// ArithOp is an arithmetic operator.
type ArithOp string

const (
	ArithAdd ArithOp = "+"
	ArithSub ArithOp = "-"
	ArithMul ArithOp = "*"
	ArithDiv ArithOp = "/"
)

// Arith combines two expressions with an arithmetic operator.
type Arith struct {
	Op    ArithOp
	Left  Expr
	Right Expr
}

// FuncCall applies a catalog operation with a non-boolean result, such as
// distance, buffer, transform or envelope, inside a larger expression.
type FuncCall struct {
	Op   string
	Args []Expr
}

func (Column) exprNode()          {}
func (Literal) exprNode()         {}
func (GeometryLiteral) exprNode() {}
func (Arith) exprNode()           {}
func (FuncCall) exprNode()        {}

// Predicate is a boolean-producing node.
type Predicate interface {
	predicateNode()
}

// Spatial is the spatial leaf: an operation from the catalog applied to a
// column side, an operand side, and any trailing scalar arguments the
// operation takes (distance for dwithin, the intersection matrix for
// relate).
type Spatial struct {
	Op    string
	Left  Expr
	Right Expr
	Extra []Expr
}

// CompareOp is a comparison operator.
type CompareOp string

const (
	CompareEq CompareOp = "="
	CompareNe CompareOp = "<>"
	CompareLt CompareOp = "<"
	CompareLe CompareOp = "<="
	CompareGt CompareOp = ">"
	CompareGe CompareOp = ">="
)

// Compare applies a comparison operator to two expressions.
type Compare struct {
	Op    CompareOp
	Left  Expr
	Right Expr
}

// Between tests whether Expr lies in the closed range [Low, High].
type Between struct {
	Expr Expr
	Low  Expr
	High Expr
	Not  bool
}

// Like matches Expr against an SQL pattern. CaseInsensitive lowers both
// sides.
type Like struct {
	Expr            Expr
	Pattern         Expr
	CaseInsensitive bool
	Not             bool
}

// In tests membership of Expr in List.
type In struct {
	Expr Expr
	List []Expr
	Not  bool
}

// IsNull tests Expr against NULL.
type IsNull struct {
	Expr Expr
	Not  bool
}

// And is the conjunction of its members.
type And struct {
	Predicates []Predicate
}

// Or is the disjunction of its members.
type Or struct {
	Predicates []Predicate
}

// Not negates a predicate.
type Not struct {
	Predicate Predicate
}

func (Spatial) predicateNode() {}
func (Compare) predicateNode() {}
func (Between) predicateNode() {}
func (Like) predicateNode()    {}
func (In) predicateNode()      {}
func (IsNull) predicateNode()  {}
func (And) predicateNode()     {}
func (Or) predicateNode()      {}
func (Not) predicateNode()     {}
