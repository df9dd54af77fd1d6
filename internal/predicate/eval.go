// Package predicate implements the boolean expression language used by
// evaluations, content filters and fetch requests.
//
//	a = 5
//	name like "item*" and (count > 2 or isPinned)
//	status in ["open", "pending"] and owner.id = $owner
//	title contains %@
//
// Expressions are evaluated against an arbitrary value through key paths and
// can be lowered to SQL for stores that support it.
package predicate

import (
	"encoding/json"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/matthewbaird/bindery/internal/keypath"
)

// Predicate is a compiled predicate format.
type Predicate struct {
	source string
	expr   Expr
}

// Compile parses format into a Predicate.
func Compile(format string) (*Predicate, error) {
	tokens, lexErrs := NewLexer(format).Tokenize()
	expr, parseErrs := NewParser(tokens).Parse()
	if errs := append(lexErrs, parseErrs...); len(errs) > 0 {
		return nil, &SyntaxError{Source: format, Errs: errs}
	}
	if expr == nil {
		return nil, &SyntaxError{Source: format, Errs: []error{&ParseError{Message: "empty predicate", Col: 1}}}
	}
	return &Predicate{source: format, expr: expr}, nil
}

// MustCompile is like Compile but panics on a malformed format.
func MustCompile(format string) *Predicate {
	p, err := Compile(format)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the source format.
func (p *Predicate) String() string { return p.source }

// Expr returns the parsed expression tree.
func (p *Predicate) Expr() Expr { return p.expr }

// Evaluate reports whether value satisfies the predicate. Variables ($name,
// %@) are looked up in vars; missing variables are nil.
func (p *Predicate) Evaluate(value any, vars map[string]any) bool {
	return evalExpr(p.expr, value, vars)
}

// Match is a convenience for Evaluate without variables.
func (p *Predicate) Match(value any) bool {
	return p.Evaluate(value, nil)
}

// Join combines formats with AND, skipping empty ones.
func Join(formats ...string) string {
	var parts []string
	for _, f := range formats {
		if strings.TrimSpace(f) != "" {
			parts = append(parts, "("+f+")")
		}
	}
	return strings.Join(parts, " and ")
}

func evalExpr(e Expr, value any, vars map[string]any) bool {
	switch e := e.(type) {
	case *LogicExpr:
		if e.Op == LogicAnd {
			return evalExpr(e.Left, value, vars) && evalExpr(e.Right, value, vars)
		}
		return evalExpr(e.Left, value, vars) || evalExpr(e.Right, value, vars)
	case *NotExpr:
		return !evalExpr(e.Expr, value, vars)
	case *TruthExpr:
		return Truthy(operandValue(e.Operand, value, vars))
	case *InExpr:
		left := operandValue(e.Left, value, vars)
		if e.Collection != nil {
			return containsElement(operandValue(e.Collection, value, vars), left)
		}
		for _, v := range e.Values {
			if equal(left, operandValue(v, value, vars)) {
				return true
			}
		}
		return false
	case *ComparisonExpr:
		return compare(operandValue(e.Left, value, vars), e.Op, operandValue(e.Right, value, vars))
	}
	return false
}

func operandValue(o Operand, value any, vars map[string]any) any {
	switch o := o.(type) {
	case *KeyPath:
		v, _ := keypath.Get(value, o.String())
		return v
	case *Var:
		return vars[o.Name]
	case *Literal:
		return o.Value()
	}
	return nil
}

// Value converts the literal to its Go value: string, int64, float64, bool
// or nil.
func (l *Literal) Value() any {
	switch l.Type {
	case LitString:
		return l.Raw
	case LitInt:
		n, err := strconv.ParseInt(l.Raw, 10, 64)
		if err != nil {
			return l.Raw
		}
		return n
	case LitFloat:
		f, err := strconv.ParseFloat(l.Raw, 64)
		if err != nil {
			return l.Raw
		}
		return f
	case LitBool:
		switch strings.ToLower(l.Raw) {
		case "true", "yes":
			return true
		}
		return false
	}
	return nil
}

func compare(left any, op CompOp, right any) bool {
	switch op {
	case CompEQ:
		return equal(left, right)
	case CompNEQ:
		return !equal(left, right)
	case CompGT, CompLT, CompGTE, CompLTE:
		c, ok := Compare(left, right)
		if !ok {
			return false
		}
		switch op {
		case CompGT:
			return c > 0
		case CompLT:
			return c < 0
		case CompGTE:
			return c >= 0
		default:
			return c <= 0
		}
	case CompLike:
		s, ok := left.(string)
		pat, ok2 := right.(string)
		return ok && ok2 && likeRegexp(pat).MatchString(s)
	case CompContains:
		if s, ok := left.(string); ok {
			sub, ok := right.(string)
			return ok && strings.Contains(strings.ToLower(s), strings.ToLower(sub))
		}
		return containsElement(left, right)
	case CompBeginsWith:
		s, ok := left.(string)
		pre, ok2 := right.(string)
		return ok && ok2 && strings.HasPrefix(s, pre)
	case CompEndsWith:
		s, ok := left.(string)
		suf, ok2 := right.(string)
		return ok && ok2 && strings.HasSuffix(s, suf)
	}
	return false
}

// likeRegexp translates a like pattern. Both shell (* ?) and SQL (% _)
// wildcards are accepted.
func likeRegexp(pattern string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("(?s)^")
	for _, r := range pattern {
		switch r {
		case '*', '%':
			b.WriteString(".*")
		case '?', '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}

func equal(a, b any) bool {
	if a == nil || b == nil {
		return isNil(a) && isNil(b)
	}
	if x, ok := Number(a); ok {
		if y, ok := Number(b); ok {
			return x == y
		}
	}
	if x, ok := a.(bool); ok {
		y, ok := b.(bool)
		return ok && x == y
	}
	if x, ok := a.(string); ok {
		return x == stringOf(b)
	}
	if y, ok := b.(string); ok {
		return stringOf(a) == y
	}
	return reflect.DeepEqual(a, b)
}

func stringOf(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case uuid.UUID:
		return s.String()
	}
	return keypath.String(v)
}

// Compare orders two values numerically when both are numbers and
// lexically when both are strings. It reports false otherwise.
func Compare(a, b any) (int, bool) {
	if x, ok := Number(a); ok {
		if y, ok := Number(b); ok {
			switch {
			case x < y:
				return -1, true
			case x > y:
				return 1, true
			}
			return 0, true
		}
	}
	x, ok := a.(string)
	y, ok2 := b.(string)
	if ok && ok2 {
		return strings.Compare(x, y), true
	}
	return 0, false
}

func containsElement(coll, elem any) bool {
	switch c := coll.(type) {
	case nil:
		return false
	case string:
		s, ok := elem.(string)
		return ok && strings.Contains(c, s)
	case []any:
		for _, v := range c {
			if equal(v, elem) {
				return true
			}
		}
		return false
	case map[string]any:
		s, ok := elem.(string)
		if !ok {
			return false
		}
		_, found := c[s]
		return found
	}
	rv := reflect.ValueOf(coll)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		for i := 0; i < rv.Len(); i++ {
			if equal(rv.Index(i).Interface(), elem) {
				return true
			}
		}
	}
	return false
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

// Number converts numeric values (and json.Number) to float64.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, !math.IsNaN(n)
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// Truthy reports the boolean interpretation of v: false for nil, false,
// zero numbers, empty strings and empty collections.
func Truthy(v any) bool {
	if isNil(v) {
		return false
	}
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return x != ""
	}
	if n, ok := Number(v); ok {
		return n != 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() > 0
	}
	return true
}
