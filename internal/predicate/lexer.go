package predicate

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Lexer splits predicate source into tokens.
type Lexer struct {
	src  string
	off  int
	col  int
	errs []error
}

func NewLexer(input string) *Lexer {
	return &Lexer{src: input, col: 1}
}

// Tokenize scans the whole input. The last token is always TokenEOF.
func (l *Lexer) Tokenize() ([]Token, []error) {
	var out []Token
	for {
		t := l.scan()
		out = append(out, t)
		if t.Type == TokenEOF {
			return out, l.errs
		}
	}
}

// runeAt decodes the rune n bytes past the current offset, or 0 at the end.
func (l *Lexer) runeAt(n int) rune {
	if l.off+n >= len(l.src) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.src[l.off+n:])
	return r
}

func (l *Lexer) step() rune {
	if l.off >= len(l.src) {
		return 0
	}
	r, size := utf8.DecodeRuneInString(l.src[l.off:])
	l.off += size
	l.col++
	return r
}

func (l *Lexer) fail(col, pos int, format string, args ...any) {
	l.errs = append(l.errs, &ParseError{Message: fmt.Sprintf(format, args...), Col: col, Pos: pos})
}

var pairOps = map[string]TokenType{
	"==": TokenEQ, "!=": TokenNEQ, "<>": TokenNEQ,
	">=": TokenGTE, "=>": TokenGTE, "<=": TokenLTE, "=<": TokenLTE,
	"&&": TokenAnd, "||": TokenOr,
}

var singleOps = map[rune]TokenType{
	'=': TokenEQ, '>': TokenGT, '<': TokenLT, '!': TokenNot,
	'.': TokenDot, ',': TokenComma, '(': TokenLParen, ')': TokenRParen,
	'[': TokenLBrack, ']': TokenRBrack, '{': TokenLBrack, '}': TokenRBrack,
}

func (l *Lexer) scan() Token {
	for unicode.IsSpace(l.runeAt(0)) {
		l.step()
	}
	at := Token{Pos: l.off, Col: l.col}
	if l.off >= len(l.src) {
		at.Type = TokenEOF
		return at
	}

	r := l.runeAt(0)
	switch {
	case r == '"' || r == '\'':
		return l.quoted(at)
	case isDigit(r), r == '-' && isDigit(l.runeAt(1)):
		return l.number(at)
	case isIdentStart(r):
		return l.ident(at)
	case r == '$' && isIdentStart(l.runeAt(1)):
		l.step()
		v := l.ident(at)
		v.Type = TokenVar
		return v
	case r == '%' && l.runeAt(1) == '@':
		l.step()
		l.step()
		at.Type, at.Literal = TokenVar, "@"
		return at
	}

	if pair := string(r) + string(l.runeAt(1)); pairOps[pair] != TokenEOF {
		l.step()
		l.step()
		at.Type, at.Literal = pairOps[pair], pair
		return at
	}
	l.step()
	if t, ok := singleOps[r]; ok {
		at.Type, at.Literal = t, string(r)
		return at
	}
	l.fail(at.Col, at.Pos, "unexpected character %q", r)
	at.Type, at.Literal = TokenIdent, string(r)
	return at
}

var escapes = map[rune]string{'n': "\n", 't': "\t", '\\': "\\", '"': "\"", '\'': "'"}

// quoted reads a string in single or double quotes.
func (l *Lexer) quoted(at Token) Token {
	quote := l.step()
	var b strings.Builder
	at.Type = TokenString
	for l.off < len(l.src) {
		r := l.step()
		switch {
		case r == quote:
			at.Literal = b.String()
			return at
		case r == '\\':
			esc := l.step()
			if s, ok := escapes[esc]; ok {
				b.WriteString(s)
			} else {
				b.WriteRune('\\')
				b.WriteRune(esc)
			}
		default:
			b.WriteRune(r)
		}
	}
	l.fail(at.Col, at.Pos, "unterminated string")
	at.Literal = b.String()
	return at
}

func (l *Lexer) number(at Token) Token {
	if l.runeAt(0) == '-' {
		l.step()
	}
	at.Type = TokenInt
	for {
		r := l.runeAt(0)
		if isDigit(r) {
			l.step()
		} else if r == '.' && at.Type == TokenInt && isDigit(l.runeAt(1)) {
			at.Type = TokenFloat
			l.step()
		} else {
			break
		}
	}
	at.Literal = l.src[at.Pos:l.off]
	return at
}

// ident reads an identifier or keyword starting at the current offset.
func (l *Lexer) ident(at Token) Token {
	start := l.off
	for l.off < len(l.src) && isIdentPart(l.runeAt(0)) {
		l.step()
	}
	at.Literal = l.src[start:l.off]
	at.Type = keyword(at.Literal)
	return at
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func isIdentStart(r rune) bool {
	return r == '_' || r == '@' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r)
}
