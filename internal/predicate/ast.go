package predicate

import "strings"

// Node is any expression tree node.
type Node interface {
	Pos() int // byte offset in the source
}

// Expr is a node that evaluates to a boolean.
type Expr interface {
	Node
	exprNode()
}

// Operand is a node that evaluates to a value.
type Operand interface {
	Node
	operandNode()
}

type LogicOp int

const (
	LogicAnd LogicOp = iota
	LogicOr
)

// LogicExpr joins two expressions with and/or.
type LogicExpr struct {
	Offset      int
	Op          LogicOp
	Left, Right Expr
}

type NotExpr struct {
	Offset int
	Expr   Expr
}

// CompOp is a comparison operator.
type CompOp int

const (
	CompEQ CompOp = iota
	CompNEQ
	CompGT
	CompLT
	CompGTE
	CompLTE
	CompLike
	CompContains
	CompBeginsWith
	CompEndsWith
)

var compOpNames = [...]string{"=", "!=", ">", "<", ">=", "<=", "like", "contains", "beginswith", "endswith"}

func (op CompOp) String() string {
	if op < 0 || int(op) >= len(compOpNames) {
		return "?"
	}
	return compOpNames[op]
}

// ComparisonExpr is "lhs op rhs".
type ComparisonExpr struct {
	Offset int
	Left   Operand
	Op     CompOp
	Right  Operand
}

// InExpr is "lhs in [v1, v2]" or "lhs in keypath". Collection is set for
// the second form.
type InExpr struct {
	Offset     int
	Left       Operand
	Values     []Operand
	Collection Operand
}

// TruthExpr tests a lone operand ("isActive").
type TruthExpr struct {
	Offset  int
	Operand Operand
}

func (e *LogicExpr) Pos() int      { return e.Offset }
func (e *NotExpr) Pos() int        { return e.Offset }
func (e *ComparisonExpr) Pos() int { return e.Offset }
func (e *InExpr) Pos() int         { return e.Offset }
func (e *TruthExpr) Pos() int      { return e.Offset }

func (*LogicExpr) exprNode()      {}
func (*NotExpr) exprNode()        {}
func (*ComparisonExpr) exprNode() {}
func (*InExpr) exprNode()         {}
func (*TruthExpr) exprNode()      {}

// KeyPath is "a" or "user.address.city".
type KeyPath struct {
	Offset int
	Parts  []string
}

func (k *KeyPath) String() string { return strings.Join(k.Parts, ".") }

// Var is a substitution variable: $name, or %@ under the name "@".
type Var struct {
	Offset int
	Name   string
}

type LiteralType int

const (
	LitString LiteralType = iota
	LitInt
	LitFloat
	LitBool
	LitNull
)

// Literal keeps the raw token text; evaluation coerces it on use.
type Literal struct {
	Offset int
	Type   LiteralType
	Raw    string
}

func (k *KeyPath) Pos() int { return k.Offset }
func (v *Var) Pos() int     { return v.Offset }
func (l *Literal) Pos() int { return l.Offset }

func (*KeyPath) operandNode() {}
func (*Var) operandNode()     {}
func (*Literal) operandNode() {}
