// Package predicate implements the lexer, parser, evaluator and SQL lowering
// for the boolean expressions used by predicateFormat and filterFormat.
package predicate

import "strings"

// TokenType identifies the kind of lexical token.
type TokenType int

const (
	TokenEOF    TokenType = iota
	TokenIdent            // key path component
	TokenString           // "quoted" or 'quoted'
	TokenInt
	TokenFloat
	TokenBool // true, false, yes, no
	TokenNull // null, nil
	TokenVar  // $name or %@

	TokenEQ  // = ==
	TokenNEQ // != <>
	TokenGT
	TokenLT
	TokenGTE // >= =>
	TokenLTE // <= =<
	TokenDot
	TokenComma
	TokenLParen
	TokenRParen
	TokenLBrack // [ or {
	TokenRBrack // ] or }

	TokenAnd // and &&
	TokenOr  // or ||
	TokenNot // not !
	TokenIn
	TokenLike
	TokenContains
	TokenBeginsWith
	TokenEndsWith
)

var tokenNames = [...]string{
	TokenEOF: "EOF", TokenIdent: "identifier", TokenString: "string",
	TokenInt: "integer", TokenFloat: "float", TokenBool: "boolean",
	TokenNull: "null", TokenVar: "variable",
	TokenEQ: "=", TokenNEQ: "!=", TokenGT: ">", TokenLT: "<", TokenGTE: ">=",
	TokenLTE: "<=", TokenDot: ".", TokenComma: ",", TokenLParen: "(",
	TokenRParen: ")", TokenLBrack: "[", TokenRBrack: "]",
	TokenAnd: "and", TokenOr: "or", TokenNot: "not", TokenIn: "in",
	TokenLike: "like", TokenContains: "contains",
	TokenBeginsWith: "beginswith", TokenEndsWith: "endswith",
}

func (t TokenType) String() string {
	if t < 0 || int(t) >= len(tokenNames) {
		return "unknown"
	}
	return tokenNames[t]
}

// Token is one lexical token.
type Token struct {
	Type    TokenType
	Literal string
	Pos     int // byte offset
	Col     int // 1-based, in runes
}

// keywords are matched case-insensitively.
var keywords = map[string]TokenType{
	"and":        TokenAnd,
	"or":         TokenOr,
	"not":        TokenNot,
	"in":         TokenIn,
	"like":       TokenLike,
	"contains":   TokenContains,
	"beginswith": TokenBeginsWith,
	"endswith":   TokenEndsWith,
	"true":       TokenBool,
	"false":      TokenBool,
	"yes":        TokenBool,
	"no":         TokenBool,
	"null":       TokenNull,
	"nil":        TokenNull,
}

func keyword(ident string) TokenType {
	if t, ok := keywords[strings.ToLower(ident)]; ok {
		return t
	}
	return TokenIdent
}
