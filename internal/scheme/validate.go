package scheme

import (
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/pkg/errors"
)

// ErrInvalid marks documents rejected by validation.
//
// Binding and eval options are open: keys the schema does not list pass
// validation and are reported by the consumer that ignores them.
var ErrInvalid = errors.New("invalid scheme document")

const schemaSource = `
#Document: [string]: #Screen

#Screen: {
	objects?: [string]:  #Declaration
	elements?: [string]: #Declaration
}

#Declaration: {
	type?:       string
	alias?:      string
	name?:       string
	dependency?: string
	attrs?: {...}
	evals?: [string]: #Options
	outlets?: [string]: string | [...string]
	bindings?: [...#Binding]
	action?: #Action
	layout?: [string]: number
}

#Options: {
	predicateFormat?:      string
	ifTrue?:               _
	valueIfTrue?:          _
	ifFalse?:              _
	valueIfFalse?:         _
	placeholder?:          _
	nullPlaceholder?:      _
	transformer?:          string
	valueTransformerName?: string
	format?:               string
	valueFormat?:          string
	...
}

#Binding: {
	#Options
	to?:    string
	from?:  string
	order?: int
	...
}

#Action: {
	target:   string
	selector: string
	args?: [...]
}
`

var (
	schemaOnce  sync.Once
	validateMu  sync.Mutex
	cueCtx      *cue.Context
	documentDef cue.Value
)

func loadSchema() {
	cueCtx = cuecontext.New()
	documentDef = cueCtx.CompileString(schemaSource).LookupPath(cue.ParsePath("#Document"))
	if err := documentDef.Err(); err != nil {
		panic(err)
	}
}

// Validate checks data against the scheme document schema.
func Validate(data []byte) error {
	schemaOnce.Do(loadSchema)
	validateMu.Lock()
	defer validateMu.Unlock()

	doc := cueCtx.CompileBytes(data)
	if err := doc.Err(); err != nil {
		return errors.Wrap(ErrInvalid, cueerrors.Details(err, nil))
	}
	if err := documentDef.Unify(doc).Validate(cue.Concrete(true)); err != nil {
		return errors.Wrap(ErrInvalid, cueerrors.Details(err, nil))
	}
	return nil
}
