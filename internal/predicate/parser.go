package predicate

import "fmt"

// Parser builds an expression tree from tokens by recursive descent.
// Precedence, loosest first: or, and, not, comparison.
type Parser struct {
	toks []Token
	i    int
	errs []error
}

// NewParser creates a parser over the output of Lexer.Tokenize.
func NewParser(tokens []Token) *Parser {
	return &Parser{toks: tokens}
}

// Parse reads the whole token stream as one boolean expression.
func (p *Parser) Parse() (Expr, []error) {
	expr := p.logic(0)
	if expr != nil && !p.at(TokenEOF) {
		p.errorf(p.cur(), "unexpected %s after expression", p.cur().Type)
	}
	return expr, p.errs
}

func (p *Parser) cur() Token {
	if p.i < len(p.toks) {
		return p.toks[p.i]
	}
	return Token{Type: TokenEOF}
}

func (p *Parser) next() Token {
	t := p.cur()
	if t.Type != TokenEOF {
		p.i++
	}
	return t
}

func (p *Parser) at(t TokenType) bool { return p.cur().Type == t }

// accept consumes the current token if it has one of the given types.
func (p *Parser) accept(types ...TokenType) (Token, bool) {
	for _, t := range types {
		if p.at(t) {
			return p.next(), true
		}
	}
	return Token{}, false
}

func (p *Parser) want(t TokenType) bool {
	if _, ok := p.accept(t); ok {
		return true
	}
	p.errorf(p.cur(), "expected %s, got %s", t, p.cur().Type)
	return false
}

func (p *Parser) errorf(at Token, format string, args ...any) {
	p.errs = append(p.errs, &ParseError{Message: fmt.Sprintf(format, args...), Col: at.Col, Pos: at.Pos})
}

// logicLevels lists the binary connectives from loosest to tightest.
var logicLevels = []struct {
	tok TokenType
	op  LogicOp
}{
	{TokenOr, LogicOr},
	{TokenAnd, LogicAnd},
}

// logic parses a left-associative chain of the connective at level.
func (p *Parser) logic(level int) Expr {
	if level == len(logicLevels) {
		return p.unary()
	}
	lv := logicLevels[level]
	lhs := p.logic(level + 1)
	for lhs != nil && p.at(lv.tok) {
		op := p.next()
		rhs := p.logic(level + 1)
		if rhs == nil {
			break
		}
		lhs = &LogicExpr{Offset: op.Pos, Op: lv.op, Left: lhs, Right: rhs}
	}
	return lhs
}

func (p *Parser) unary() Expr {
	if not, ok := p.accept(TokenNot); ok {
		inner := p.unary()
		if inner == nil {
			return nil
		}
		return &NotExpr{Offset: not.Pos, Expr: inner}
	}
	if _, ok := p.accept(TokenLParen); ok {
		inner := p.logic(0)
		p.want(TokenRParen)
		return inner
	}
	return p.comparison()
}

var compOps = map[TokenType]CompOp{
	TokenEQ:         CompEQ,
	TokenNEQ:        CompNEQ,
	TokenGT:         CompGT,
	TokenLT:         CompLT,
	TokenGTE:        CompGTE,
	TokenLTE:        CompLTE,
	TokenLike:       CompLike,
	TokenContains:   CompContains,
	TokenBeginsWith: CompBeginsWith,
	TokenEndsWith:   CompEndsWith,
}

// comparison reads "lhs op rhs", "lhs in list", or a bare operand, which
// is a truth test.
func (p *Parser) comparison() Expr {
	start := p.cur().Pos
	lhs := p.operand()
	if lhs == nil {
		return nil
	}
	if _, ok := p.accept(TokenIn); ok {
		if p.at(TokenLBrack) {
			return &InExpr{Offset: start, Left: lhs, Values: p.list()}
		}
		coll := p.operand()
		if coll == nil {
			return nil
		}
		return &InExpr{Offset: start, Left: lhs, Collection: coll}
	}
	op, ok := compOps[p.cur().Type]
	if !ok {
		return &TruthExpr{Offset: start, Operand: lhs}
	}
	p.next()
	rhs := p.operand()
	if rhs == nil {
		return nil
	}
	return &ComparisonExpr{Offset: start, Left: lhs, Op: op, Right: rhs}
}

var literalTypes = map[TokenType]LiteralType{
	TokenString: LitString,
	TokenInt:    LitInt,
	TokenFloat:  LitFloat,
	TokenBool:   LitBool,
	TokenNull:   LitNull,
}

func (p *Parser) operand() Operand {
	t := p.cur()
	if typ, ok := literalTypes[t.Type]; ok {
		p.next()
		raw := t.Literal
		if typ == LitNull {
			raw = "null"
		}
		return &Literal{Offset: t.Pos, Type: typ, Raw: raw}
	}
	switch t.Type {
	case TokenIdent:
		return p.keyPath()
	case TokenVar:
		p.next()
		return &Var{Offset: t.Pos, Name: t.Literal}
	}
	p.errorf(t, "expected key path or value, got %s", t.Type)
	return nil
}

// keyPath reads "a", "a.b.c" or "items.0.name".
func (p *Parser) keyPath() *KeyPath {
	first := p.next()
	kp := &KeyPath{Offset: first.Pos, Parts: []string{first.Literal}}
	for {
		if _, ok := p.accept(TokenDot); !ok {
			return kp
		}
		part, ok := p.accept(TokenIdent, TokenInt)
		if !ok {
			p.errorf(p.cur(), "expected key after '.', got %s", p.cur().Type)
			return kp
		}
		kp.Parts = append(kp.Parts, part.Literal)
	}
}

// list reads "[v1, v2, ...]". Bad elements are reported and skipped.
func (p *Parser) list() []Operand {
	if !p.want(TokenLBrack) {
		return nil
	}
	var out []Operand
	for !p.at(TokenRBrack) && !p.at(TokenEOF) {
		v := p.operand()
		if v == nil {
			p.next()
			continue
		}
		out = append(out, v)
		if p.at(TokenRBrack) {
			break
		}
		if !p.want(TokenComma) {
			break
		}
	}
	p.want(TokenRBrack)
	return out
}
