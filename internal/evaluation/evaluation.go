// Package evaluation derives display values from source values through a
// declarative rule set: predicate, true/false substitution, transformer,
// format template and placeholder.
package evaluation

import (
	"regexp"
	"strings"

	"github.com/bdlm/log"

	"github.com/matthewbaird/bindery/internal/keypath"
	"github.com/matthewbaird/bindery/internal/predicate"
)

// NullLiteral is the string spelling of the null sentinel in scheme documents.
const NullLiteral = "<null>"

type null struct{}

func (null) String() string { return NullLiteral }

// Null is the explicit null sentinel. Perform treats it as absence.
var Null any = null{}

// IsNull reports whether v is nil or one of the null sentinels.
func IsNull(v any) bool {
	switch x := v.(type) {
	case nil, null:
		return true
	case string:
		return x == NullLiteral
	}
	return false
}

// Evaluation is a rule set applied by Perform. Fields may be assigned freely
// until the first Perform; the compiled predicate and the transformer are
// resolved lazily and cached.
type Evaluation struct {
	PredicateFormat string
	ValueIfTrue     any
	ValueIfFalse    any
	HasTrue         bool
	HasFalse        bool
	ValueFormat     string
	Placeholder     any
	TransformerName string

	compiled    *predicate.Predicate
	compileDone bool
	transformer Transformer
	resolveDone bool
}

// New builds an Evaluation from an option map. Keys that are not options
// are returned so callers can treat reserved keys (to, from, order).
func New(options map[string]any) (*Evaluation, []string) {
	e := &Evaluation{}
	var rest []string
	for k, v := range options {
		opt, ok := ParseOption(k)
		if !ok {
			rest = append(rest, k)
			continue
		}
		e.Set(opt, v)
	}
	return e, rest
}

// Set assigns a single option.
func (e *Evaluation) Set(opt Option, value any) {
	switch opt {
	case PredicateFormat:
		e.PredicateFormat = keypath.String(value)
		e.compiled, e.compileDone = nil, false
	case ValueIfTrue:
		e.ValueIfTrue, e.HasTrue = value, true
	case ValueIfFalse:
		e.ValueIfFalse, e.HasFalse = value, true
	case NullPlaceholder:
		e.Placeholder = value
	case ValueTransformerName:
		e.TransformerName = keypath.String(value)
		e.transformer, e.resolveDone = nil, false
	case ValueFormat:
		e.ValueFormat = keypath.String(value)
	}
}

// IsZero reports whether no rule is configured, in which case Perform
// returns its input unchanged (modulo null normalization).
func (e *Evaluation) IsZero() bool {
	return e == nil || (e.PredicateFormat == "" && !e.HasTrue && !e.HasFalse &&
		e.ValueFormat == "" && e.Placeholder == nil && e.TransformerName == "")
}

// Predicate returns the compiled predicate, or nil when none is configured or
// the format does not compile.
func (e *Evaluation) Predicate() *predicate.Predicate {
	if !e.compileDone {
		e.compileDone = true
		if e.PredicateFormat != "" {
			p, err := predicate.Compile(e.PredicateFormat)
			if err != nil {
				log.WithFields(log.Fields{
					"predicate": e.PredicateFormat,
					"err":       err,
				}).Warn("evaluation: ignoring malformed predicate")
			}
			e.compiled = p
		}
	}
	return e.compiled
}

// Transformer returns the resolved transformer, or nil.
func (e *Evaluation) Transformer() Transformer {
	if !e.resolveDone {
		e.resolveDone = true
		if e.TransformerName != "" {
			fn, ok := LookupTransformer(e.TransformerName)
			if !ok {
				log.WithField("transformer", e.TransformerName).Warn("evaluation: unknown transformer")
			}
			e.transformer = fn
		}
	}
	return e.transformer
}

// Perform computes the derived value for value.
func (e *Evaluation) Perform(value any) any {
	if IsNull(value) {
		value = nil
	}
	if e == nil {
		return value
	}
	original := value

	if p := e.Predicate(); p != nil {
		ok := p.Match(value)
		var candidate any = ok
		if e.HasTrue && e.HasFalse {
			if ok {
				candidate = e.ValueIfTrue
			} else {
				candidate = e.ValueIfFalse
			}
		}
		if s, isString := candidate.(string); isString {
			candidate = Substitute(s, original, original)
		}
		value = candidate
	}

	if IsNull(value) {
		value = nil
	}

	if value != nil {
		if fn := e.Transformer(); fn != nil {
			value = fn(value)
		}
	}

	if e.ValueFormat != "" && value != nil {
		value = Substitute(e.ValueFormat, original, value)
	}

	if value != nil {
		return value
	}
	if IsNull(e.Placeholder) {
		return nil
	}
	return e.Placeholder
}

var tokenPattern = regexp.MustCompile(`\$[A-Za-z_][\w.]*`)

// Substitute replaces every $keypath token in template with the string form
// of that key path read from source. Unresolvable tokens become empty. When
// the template has no tokens, a single "%@" is replaced with the string form
// of fallback.
func Substitute(template string, source, fallback any) string {
	matches := tokenPattern.FindAllStringIndex(template, -1)
	if len(matches) == 0 {
		if strings.Contains(template, "%@") {
			return strings.Replace(template, "%@", keypath.String(fallback), 1)
		}
		return template
	}
	out := template
	for i := len(matches) - 1; i >= 0; i-- {
		start, end := matches[i][0], matches[i][1]
		// A trailing dot ends the sentence, not the path.
		for end > start+1 && out[end-1] == '.' {
			end--
		}
		v, ok := keypath.Get(source, out[start+1:end])
		var s string
		if ok && !IsNull(v) {
			s = keypath.String(v)
		}
		out = out[:start] + s + out[end:]
	}
	return out
}
