package evaluation

import "strings"

// Option is a recognized evaluation rule key.
type Option string

const (
	PredicateFormat      Option = "predicateFormat"
	ValueIfTrue          Option = "valueIfTrue"
	ValueIfFalse         Option = "valueIfFalse"
	NullPlaceholder      Option = "nullPlaceholder"
	ValueTransformerName Option = "valueTransformerName"
	ValueFormat          Option = "valueFormat"
)

// Options lists every option in declaration order.
var Options = []Option{
	PredicateFormat,
	ValueIfTrue,
	ValueIfFalse,
	NullPlaceholder,
	ValueTransformerName,
	ValueFormat,
}

// schemeSpellings maps the short keys used by scheme documents.
var schemeSpellings = map[string]Option{
	"ifTrue":      ValueIfTrue,
	"ifFalse":     ValueIfFalse,
	"placeholder": NullPlaceholder,
	"transformer": ValueTransformerName,
	"format":      ValueFormat,
}

// ParseOption resolves a rule key in either its long or scheme spelling.
func ParseOption(key string) (Option, bool) {
	key = strings.TrimSpace(key)
	for _, o := range Options {
		if string(o) == key {
			return o, true
		}
	}
	o, ok := schemeSpellings[key]
	return o, ok
}

// SchemeKey returns the short spelling used in scheme documents.
func (o Option) SchemeKey() string {
	for k, v := range schemeSpellings {
		if v == o {
			return k
		}
	}
	return string(o)
}
