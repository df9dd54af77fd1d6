package scheme

import (
	"fmt"
	"sort"
	"sync"

	"github.com/matthewbaird/bindery/internal/object"
)

func init() {
	Register("Object", func() any { return object.NewGeneric() })
}

// Constructor returns a new, untagged instance of a scheme type.
type Constructor func() any

// Factory maps scheme type names to their constructors.
type Factory struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewFactory creates an empty factory.
func NewFactory() *Factory {
	return &Factory{
		constructors: make(map[string]Constructor),
	}
}

// Default is the factory populated by the init functions of every package
// that contributes scheme types.
var Default = NewFactory()

// Register adds a constructor for typeName to the default factory.
func Register(typeName string, fn Constructor) {
	Default.Register(typeName, fn)
}

// Register adds a constructor for typeName. A second registration for the
// same name panics, since two packages claiming one name is a build error.
func (f *Factory) Register(typeName string, fn Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, dup := f.constructors[typeName]; dup {
		panic(fmt.Sprintf("scheme: type %q registered twice", typeName))
	}
	f.constructors[typeName] = fn
}

// New instantiates typeName.
func (f *Factory) New(typeName string) (any, bool) {
	f.mu.RLock()
	fn, ok := f.constructors[typeName]
	f.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return fn(), true
}

// Names returns the registered type names, sorted.
func (f *Factory) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.constructors))
	for n := range f.constructors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Suggest returns a hint naming the registered type closest to typeName,
// or "" if nothing is close.
func (f *Factory) Suggest(typeName string) string {
	return SuggestFrom(typeName, f.Names(), 3)
}

// Levenshtein computes the edit distance between two strings.
func Levenshtein(a, b string) int {
	la, lb := len(a), len(b)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}

	prev := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}

	for i := 1; i <= la; i++ {
		curr := make([]int, lb+1)
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev = curr
	}
	return prev[lb]
}

// SuggestFrom finds the closest match from candidates within a maximum
// edit distance. Returns "" if no good match is found.
func SuggestFrom(input string, candidates []string, maxDist int) string {
	best := ""
	bestDist := maxDist + 1
	for _, c := range candidates {
		d := Levenshtein(input, c)
		if d < bestDist {
			bestDist = d
			best = c
		}
	}
	if bestDist <= maxDist {
		return fmt.Sprintf("did you mean '%s'?", best)
	}
	return ""
}
