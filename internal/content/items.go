package content

import (
	"context"

	"github.com/pkg/errors"

	"github.com/matthewbaird/bindery/internal/keypath"
	"github.com/matthewbaird/bindery/internal/scheme"
)

func init() {
	scheme.Register("Items", func() any { return NewItems() })
	scheme.Register("ManagedObjects", func() any { return NewManagedObjects() })
	scheme.Register("Collection", func() any { return NewCollection() })
}

// Items is an in-memory provider. Its data is pushed in from outside;
// Fetch only re-renders.
type Items struct {
	provider
}

func NewItems() *Items {
	it := &Items{}
	it.self = it
	return it
}

// SetItems replaces the content with a single unnamed section.
func (it *Items) SetItems(items []any) {
	it.SetSections([]Section{{Items: append([]any(nil), items...)}})
}

func (it *Items) SetSections(sections []Section) {
	it.setSections(sections)
	it.renderAll()
}

// Append adds items to the last section and reports each insertion inside
// one render batch.
func (it *Items) Append(items ...any) {
	if len(items) == 0 {
		return
	}
	if len(it.sections) == 0 {
		it.sections = []Section{{}}
	}
	s := len(it.sections) - 1
	it.prepareRender()
	for _, item := range items {
		at := IndexPath{Section: s, Item: len(it.sections[s].Items)}
		it.sections[s].Items = append(it.sections[s].Items, item)
		it.renderItem(item, Insert, NoIndex, at)
	}
	it.changed()
	it.finalizeRender()
}

func (it *Items) Reset() {
	it.SetSections(nil)
}

func (it *Items) Fetch(context.Context) error {
	it.Notify(KeyItems)
	it.renderAll()
	return nil
}

func (it *Items) Properties() keypath.Properties {
	props := it.provider.Properties()
	props[KeyItems] = keypath.Property{
		Get: func() any { return it.Items() },
		Set: func(v any) error {
			list, ok := asList(v)
			if !ok && v != nil {
				return errors.Errorf("items: expected a list, got %T", v)
			}
			it.SetItems(list)
			return nil
		},
		Append: func(v any) error {
			it.Append(v)
			return nil
		},
	}
	return props
}

// stringList accepts a single string or a list of strings.
func stringList(v any) ([]string, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{x}, nil
	case []string:
		return x, nil
	}
	list, ok := asList(v)
	if !ok {
		return nil, errors.Errorf("expected a string list, got %T", v)
	}
	out := make([]string, len(list))
	for i, x := range list {
		s, ok := x.(string)
		if !ok {
			return nil, errors.Errorf("expected a string at %d, got %T", i, x)
		}
		out[i] = s
	}
	return out, nil
}
