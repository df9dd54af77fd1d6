package predicate

import (
	"strings"

	"entgo.io/ent/dialect/sql"
	"github.com/pkg/errors"
)

// ErrNotLowerable is returned when an expression has no SQL equivalent.
var ErrNotLowerable = errors.New("predicate cannot be lowered to SQL")

// ToSQL lowers the predicate to an ent SQL predicate over the columns of a
// single table. Key paths must be plain column names.
func (p *Predicate) ToSQL(vars map[string]any) (*sql.Predicate, error) {
	return lowerExpr(p.expr, vars)
}

func lowerExpr(e Expr, vars map[string]any) (*sql.Predicate, error) {
	switch e := e.(type) {
	case *LogicExpr:
		left, err := lowerExpr(e.Left, vars)
		if err != nil {
			return nil, err
		}
		right, err := lowerExpr(e.Right, vars)
		if err != nil {
			return nil, err
		}
		if e.Op == LogicAnd {
			return sql.And(left, right), nil
		}
		return sql.Or(left, right), nil

	case *NotExpr:
		inner, err := lowerExpr(e.Expr, vars)
		if err != nil {
			return nil, err
		}
		return sql.Not(inner), nil

	case *TruthExpr:
		col, ok, err := column(e.Operand)
		if err != nil {
			return nil, err
		}
		if !ok {
			if Truthy(operandValue(e.Operand, nil, vars)) {
				return sql.ExprP("1 = 1"), nil
			}
			return sql.ExprP("1 = 0"), nil
		}
		return sql.And(sql.NotNull(col), sql.NEQ(col, 0)), nil

	case *InExpr:
		col, ok, err := column(e.Left)
		if err != nil {
			return nil, err
		}
		if !ok || e.Collection != nil {
			return nil, errors.Wrap(ErrNotLowerable, "in requires a column and a literal list")
		}
		args := make([]any, 0, len(e.Values))
		for _, v := range e.Values {
			if _, isCol, _ := column(v); isCol {
				return nil, errors.Wrap(ErrNotLowerable, "in list must not reference columns")
			}
			args = append(args, operandValue(v, nil, vars))
		}
		return sql.In(col, args...), nil

	case *ComparisonExpr:
		return lowerComparison(e, vars)
	}
	return nil, errors.Wrapf(ErrNotLowerable, "unknown expression %T", e)
}

func lowerComparison(e *ComparisonExpr, vars map[string]any) (*sql.Predicate, error) {
	lcol, lok, err := column(e.Left)
	if err != nil {
		return nil, err
	}
	rcol, rok, err := column(e.Right)
	if err != nil {
		return nil, err
	}
	op := e.Op
	switch {
	case lok && rok:
		return columnsPredicate(lcol, op, rcol)
	case !lok && rok:
		// 5 < a  ==>  a > 5
		flipped, ok := flip(op)
		if !ok {
			return nil, errors.Wrapf(ErrNotLowerable, "%s with a value on the left", op)
		}
		lcol, op = rcol, flipped
		return valuePredicate(lcol, op, operandValue(e.Left, nil, vars))
	case lok:
		return valuePredicate(lcol, op, operandValue(e.Right, nil, vars))
	}
	if compare(operandValue(e.Left, nil, vars), op, operandValue(e.Right, nil, vars)) {
		return sql.ExprP("1 = 1"), nil
	}
	return sql.ExprP("1 = 0"), nil
}

func valuePredicate(col string, op CompOp, v any) (*sql.Predicate, error) {
	switch op {
	case CompEQ:
		if v == nil {
			return sql.IsNull(col), nil
		}
		return sql.EQ(col, v), nil
	case CompNEQ:
		if v == nil {
			return sql.NotNull(col), nil
		}
		return sql.NEQ(col, v), nil
	case CompGT:
		return sql.GT(col, v), nil
	case CompLT:
		return sql.LT(col, v), nil
	case CompGTE:
		return sql.GTE(col, v), nil
	case CompLTE:
		return sql.LTE(col, v), nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, errors.Wrapf(ErrNotLowerable, "%s requires a string, got %T", op, v)
	}
	switch op {
	case CompLike:
		return sql.Like(col, sqlLikePattern(s)), nil
	case CompContains:
		return sql.ContainsFold(col, s), nil
	case CompBeginsWith:
		return sql.HasPrefix(col, s), nil
	case CompEndsWith:
		return sql.HasSuffix(col, s), nil
	}
	return nil, errors.Wrapf(ErrNotLowerable, "operator %s", op)
}

func columnsPredicate(left string, op CompOp, right string) (*sql.Predicate, error) {
	switch op {
	case CompEQ:
		return sql.ColumnsEQ(left, right), nil
	case CompNEQ:
		return sql.ColumnsNEQ(left, right), nil
	case CompGT:
		return sql.ColumnsGT(left, right), nil
	case CompLT:
		return sql.ColumnsLT(left, right), nil
	case CompGTE:
		return sql.ColumnsGTE(left, right), nil
	case CompLTE:
		return sql.ColumnsLTE(left, right), nil
	}
	return nil, errors.Wrapf(ErrNotLowerable, "%s between two columns", op)
}

func flip(op CompOp) (CompOp, bool) {
	switch op {
	case CompEQ, CompNEQ:
		return op, true
	case CompGT:
		return CompLT, true
	case CompLT:
		return CompGT, true
	case CompGTE:
		return CompLTE, true
	case CompLTE:
		return CompGTE, true
	}
	return op, false
}

// column reports whether o names a column. Dotted key paths are rejected.
func column(o Operand) (string, bool, error) {
	kp, ok := o.(*KeyPath)
	if !ok {
		return "", false, nil
	}
	if len(kp.Parts) != 1 {
		return "", false, errors.Wrapf(ErrNotLowerable, "key path %q spans relations", kp.String())
	}
	return kp.Parts[0], true, nil
}

func sqlLikePattern(p string) string {
	return strings.NewReplacer("*", "%", "?", "_").Replace(p)
}

// Columns lists the column names referenced by the predicate, in order of
// first appearance.
func (p *Predicate) Columns() []string {
	seen := map[string]bool{}
	var cols []string
	add := func(o Operand) {
		if kp, ok := o.(*KeyPath); ok && !seen[kp.String()] {
			seen[kp.String()] = true
			cols = append(cols, kp.String())
		}
	}
	var walk func(Expr)
	walk = func(e Expr) {
		switch e := e.(type) {
		case *LogicExpr:
			walk(e.Left)
			walk(e.Right)
		case *NotExpr:
			walk(e.Expr)
		case *TruthExpr:
			add(e.Operand)
		case *InExpr:
			add(e.Left)
			if e.Collection != nil {
				add(e.Collection)
			}
		case *ComparisonExpr:
			add(e.Left)
			add(e.Right)
		}
	}
	walk(p.expr)
	return cols
}
