package element

import (
	"slices"

	"github.com/pkg/errors"

	"github.com/matthewbaird/bindery/internal/content"
	"github.com/matthewbaird/bindery/internal/keypath"
)

// Keys published by containers.
const (
	KeyContent   = "content"
	KeyChildren  = "children"
	KeyRows      = "rows"
	KeySelection = "selection"
	KeyProvider  = "provider"
)

// View groups child elements and passes its content down to every child
// that is content aware.
type View struct {
	Base

	children []any
	content  any
}

func NewView() *View {
	v := &View{}
	v.init("View", KeyContent, "backgroundColor", "title")
	return v
}

func (v *View) Content() any { return v.content }

// SetContent stores c and hands it to content-aware children.
func (v *View) SetContent(c any) {
	v.content = c
	v.Notify(KeyContent)
	v.Notify("value")
	for _, child := range v.children {
		if a, ok := child.(content.Aware); ok {
			a.SetContent(c)
		}
	}
}

// AddChild appends child; it receives the current content if any.
func (v *View) AddChild(child any) {
	v.children = append(v.children, child)
	if a, ok := child.(content.Aware); ok && v.content != nil {
		a.SetContent(v.content)
	}
	v.Notify(KeyChildren)
}

func (v *View) Children() []any { return slices.Clone(v.children) }

func (v *View) Properties() keypath.Properties {
	props := v.Base.Properties()
	contentProp := keypath.Property{
		Get: v.Content,
		Set: func(c any) error { v.SetContent(c); return nil },
	}
	props[KeyContent] = contentProp
	props["value"] = contentProp
	props[KeyChildren] = keypath.Property{
		Get: func() any { return v.Children() },
		Set: func(c any) error {
			list, ok := c.([]any)
			if !ok {
				return errors.Errorf("children: expected a list, got %T", c)
			}
			v.children = nil
			for _, child := range list {
				v.AddChild(child)
			}
			return nil
		},
		Append: func(child any) error { v.AddChild(child); return nil },
	}
	return props
}

// RowChange is one applied item change.
type RowChange struct {
	Kind  content.ChangeKind
	At    content.IndexPath
	NewAt content.IndexPath
	Item  any
}

// ListView mirrors a provider's sections and applies the changes it
// reports. Observers of "rows" are notified once per render or batch.
type ListView struct {
	Base

	provider content.Provider
	sections [][]any
	batch    []RowChange
	last     []RowChange
	inBatch  bool
	reloads  int
	selected content.IndexPath
}

func NewListView() *ListView {
	l := &ListView{selected: content.NoIndex}
	l.init("ListView", KeySelection, KeySelection, "rowHeight", "emptyText", "editing")
	return l
}

// SetProvider detaches from the previous provider and renders p.
func (l *ListView) SetProvider(p content.Provider) {
	if l.provider != nil {
		l.provider.RemoveConsumer(l)
	}
	l.provider = p
	if p == nil {
		l.sections = nil
		l.Notify(KeyRows)
		return
	}
	p.AddConsumer(l)
	l.RenderContent(p)
}

func (l *ListView) Provider() content.Provider { return l.provider }

func (l *ListView) Content() any { return l.provider }

func (l *ListView) SetContent(c any) {
	if p, ok := c.(content.Provider); ok {
		l.SetProvider(p)
	}
}

// RenderContent reloads every row.
func (l *ListView) RenderContent(from content.Provider) {
	l.sections = make([][]any, from.NumberOfSections())
	for s := range l.sections {
		n := from.NumberOfItems(s)
		rows := make([]any, 0, n)
		for i := 0; i < n; i++ {
			item, _ := from.ItemAt(content.IndexPath{Section: s, Item: i})
			rows = append(rows, item)
		}
		l.sections[s] = rows
	}
	l.reloads++
	l.last = nil
	l.Notify(KeyRows)
}

func (l *ListView) PrepareRenderContent(content.Provider) {
	l.inBatch = true
	l.batch = nil
}

func (l *ListView) FinalizeRenderContent(content.Provider) {
	l.inBatch = false
	l.last, l.batch = l.batch, nil
	l.Notify(KeyRows)
}

// RenderItem applies one change. Outside a batch it notifies at once.
func (l *ListView) RenderItem(item any, change content.ChangeKind, at, newAt content.IndexPath, _ content.Provider) {
	switch change {
	case content.Delete:
		l.remove(at)
	case content.Insert:
		l.insert(newAt, item)
	case content.Update:
		if l.valid(at) {
			l.sections[at.Section][at.Item] = item
		}
	case content.Move:
		l.remove(at)
		l.insert(newAt, item)
	}
	l.batch = append(l.batch, RowChange{Kind: change, At: at, NewAt: newAt, Item: item})
	if !l.inBatch {
		l.last, l.batch = l.batch, nil
		l.Notify(KeyRows)
	}
}

func (l *ListView) valid(at content.IndexPath) bool {
	return at.Section >= 0 && at.Section < len(l.sections) &&
		at.Item >= 0 && at.Item < len(l.sections[at.Section])
}

func (l *ListView) remove(at content.IndexPath) {
	if l.valid(at) {
		l.sections[at.Section] = slices.Delete(l.sections[at.Section], at.Item, at.Item+1)
	}
}

func (l *ListView) insert(at content.IndexPath, item any) {
	for at.Section >= len(l.sections) {
		l.sections = append(l.sections, nil)
	}
	rows := l.sections[at.Section]
	i := min(max(at.Item, 0), len(rows))
	l.sections[at.Section] = slices.Insert(rows, i, item)
}

// Rows flattens the displayed rows.
func (l *ListView) Rows() []any {
	var out []any
	for _, s := range l.sections {
		out = append(out, s...)
	}
	return out
}

// Sections returns the displayed rows per section.
func (l *ListView) Sections() [][]any {
	out := make([][]any, len(l.sections))
	for i, s := range l.sections {
		out[i] = slices.Clone(s)
	}
	return out
}

// LastBatch returns the changes of the most recent batch; empty after a
// full reload.
func (l *ListView) LastBatch() []RowChange { return slices.Clone(l.last) }

// Reloads counts full renders.
func (l *ListView) Reloads() int { return l.reloads }

// Select marks the row at path as selected and fires the action.
func (l *ListView) Select(at content.IndexPath) error {
	if !l.valid(at) {
		return errors.Errorf("list: no row at %s", at)
	}
	l.selected = at
	l.Put(KeySelection, l.sections[at.Section][at.Item])
	if l.action != nil {
		l.action()
	}
	return nil
}

// SelectedIndex returns the selected path, or content.NoIndex.
func (l *ListView) SelectedIndex() content.IndexPath { return l.selected }

func (l *ListView) Properties() keypath.Properties {
	props := l.Base.Properties()
	props[KeyProvider] = keypath.Property{
		Get: func() any { return l.provider },
		Set: func(v any) error {
			if v == nil {
				l.SetProvider(nil)
				return nil
			}
			p, ok := v.(content.Provider)
			if !ok {
				return errors.Errorf("provider: expected a content provider, got %T", v)
			}
			l.SetProvider(p)
			return nil
		},
	}
	props[KeyContent] = props[KeyProvider]
	props[KeyRows] = keypath.Property{Get: func() any { return l.Rows() }}
	props["count"] = keypath.Property{Get: func() any { return len(l.Rows()) }}
	return props
}
