package content

import (
	"context"

	"github.com/pkg/errors"

	"github.com/matthewbaird/bindery/internal/keypath"
	"github.com/matthewbaird/bindery/internal/mainloop"
	"github.com/matthewbaird/bindery/internal/store"
)

// ErrInsertUnsupported is returned by Collection.Insert.
var ErrInsertUnsupported = errors.New("content: collection does not support insertion")

// Collection exposes the derived value of an inner ManagedObjects as a flat
// item list. Fetch settings are forwarded to the inner provider; its result
// chain is set through the "functions" attribute.
type Collection struct {
	provider

	inner *ManagedObjects
}

func NewCollection() *Collection {
	c := &Collection{inner: NewManagedObjects()}
	c.self = c
	c.inner.Observe(KeyValue, func(string) { c.reload() })
	return c
}

// Source returns the inner provider.
func (c *Collection) Source() *ManagedObjects {
	return c.inner
}

func (c *Collection) SetPoster(p mainloop.Poster) {
	c.inner.SetPoster(p)
}

// SetFunctions sets the chain applied by the inner provider.
func (c *Collection) SetFunctions(chain Chain) {
	c.inner.SetResultChain(chain)
}

func (c *Collection) Fetch(ctx context.Context) error {
	return c.inner.Fetch(ctx)
}

func (c *Collection) Reset() {
	c.inner.Reset()
}

func (c *Collection) Insert(context.Context, store.Record) (store.Record, error) {
	return nil, ErrInsertUnsupported
}

// reload rebuilds the item list from the inner value. A list value is used
// as is, a scalar becomes a single item and nil an empty list.
func (c *Collection) reload() {
	var items []any
	if v := c.inner.Value(); v != nil {
		if list, ok := asList(v); ok {
			items = list
		} else {
			items = []any{v}
		}
	}
	c.setSections([]Section{{Items: items}})
	c.renderAll()
}

func (c *Collection) Properties() keypath.Properties {
	props := c.provider.Properties()
	inner := c.inner.Properties()
	for _, k := range []string{"store", "entity", "predicateFormat", "masterKeyPath", "masterObject", "filterFormat", "searchString", "sortByFields", "sortAscending", "limit", "groupBy"} {
		props[k] = inner[k]
	}
	props["functions"] = inner["resultChain"]
	return props
}
