package predicate

import (
	"fmt"
	"strings"
)

// ParseError is a structured error from the predicate parser with position
// information.
type ParseError struct {
	Message string
	Col     int
	Pos     int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("col %d: %s", e.Col, e.Message)
}

// SyntaxError collects every lexing and parsing problem of one source string.
type SyntaxError struct {
	Source string
	Errs   []error
}

func (e *SyntaxError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("invalid predicate %q: %s", e.Source, strings.Join(msgs, "; "))
}
