package content

import (
	"reflect"

	"github.com/bdlm/log"

	"github.com/matthewbaird/bindery/internal/keypath"
	"github.com/matthewbaird/bindery/internal/object"
)

// provider holds the state every kind shares: sections, the result chain
// and its cached value, and the attached consumers. Kinds embed it and
// call notify after mutating sections.
type provider struct {
	object.Base

	sections  []Section
	chain     Chain
	value     any
	valid     bool
	consumers []Consumer
	self      Provider
}

func (p *provider) NumberOfSections() int {
	return len(p.sections)
}

func (p *provider) NumberOfItems(section int) int {
	if section < 0 || section >= len(p.sections) {
		return 0
	}
	return len(p.sections[section].Items)
}

func (p *provider) TotalCount() int {
	n := 0
	for _, s := range p.sections {
		n += len(s.Items)
	}
	return n
}

func (p *provider) ItemAt(at IndexPath) (any, bool) {
	if at.Section < 0 || at.Section >= len(p.sections) {
		return nil, false
	}
	items := p.sections[at.Section].Items
	if at.Item < 0 || at.Item >= len(items) {
		return nil, false
	}
	return items[at.Item], true
}

// IndexPathFor finds item by identity where possible, by equality otherwise.
func (p *provider) IndexPathFor(item any) (IndexPath, bool) {
	for s, sec := range p.sections {
		for i, x := range sec.Items {
			if sameItem(x, item) {
				return IndexPath{Section: s, Item: i}, true
			}
		}
	}
	return NoIndex, false
}

func (p *provider) First() any {
	for _, s := range p.sections {
		if len(s.Items) > 0 {
			return s.Items[0]
		}
	}
	return nil
}

func (p *provider) Last() any {
	for i := len(p.sections) - 1; i >= 0; i-- {
		if items := p.sections[i].Items; len(items) > 0 {
			return items[len(items)-1]
		}
	}
	return nil
}

// Items flattens the sections in order.
func (p *provider) Items() []any {
	out := make([]any, 0, p.TotalCount())
	for _, s := range p.sections {
		out = append(out, s.Items...)
	}
	return out
}

// Sections returns the current sections. Callers must not modify them.
func (p *provider) Sections() []Section {
	return p.sections
}

// Value applies the result chain to Items, caching the result until the
// items or the chain change.
func (p *provider) Value() any {
	if !p.valid {
		p.value = p.chain.Apply(p.Items())
		p.valid = true
	}
	return p.value
}

func (p *provider) ResultChain() Chain {
	return p.chain
}

func (p *provider) SetResultChain(c Chain) {
	p.chain = c
	p.Invalidate()
}

// Invalidate drops the cached value and notifies its observers.
func (p *provider) Invalidate() {
	p.valid = false
	p.value = nil
	p.Notify(KeyValue)
}

func (p *provider) AddConsumer(c Consumer) {
	for _, x := range p.consumers {
		if x == c {
			return
		}
	}
	p.consumers = append(p.consumers, c)
}

func (p *provider) RemoveConsumer(c Consumer) {
	for i, x := range p.consumers {
		if x == c {
			p.consumers = append(p.consumers[:i:i], p.consumers[i+1:]...)
			return
		}
	}
}

func (p *provider) Consumers() []Consumer {
	return append([]Consumer(nil), p.consumers...)
}

// setSections replaces the sections, drops the cached value and notifies.
func (p *provider) setSections(sections []Section) {
	p.sections = sections
	p.changed()
}

func (p *provider) changed() {
	p.valid = false
	p.value = nil
	p.Notify(KeyItems)
	p.Notify(KeyTotalCount)
	p.Notify(KeyValue)
}

func (p *provider) renderAll() {
	for _, c := range p.Consumers() {
		c.RenderContent(p.self)
	}
}

func (p *provider) prepareRender() {
	for _, c := range p.Consumers() {
		c.PrepareRenderContent(p.self)
	}
}

func (p *provider) finalizeRender() {
	for _, c := range p.Consumers() {
		c.FinalizeRenderContent(p.self)
	}
}

func (p *provider) renderItem(item any, change ChangeKind, at, newAt IndexPath) {
	for _, c := range p.Consumers() {
		c.RenderItem(item, change, at, newAt, p.self)
	}
}

// setChainSpecs is the setter behind the "resultChain" attribute.
func (p *provider) setChainSpecs(v any) error {
	specs, err := stringList(v)
	if err != nil {
		return err
	}
	c, err := ParseChain(specs)
	if err != nil {
		log.WithFields(log.Fields{"provider": p.Identifier(), "chain": specs, "err": err}).Warn("content: ignoring result chain")
		return nil
	}
	p.SetResultChain(c)
	return nil
}

// Properties is the accessor table shared by every kind.
func (p *provider) Properties() keypath.Properties {
	props := p.Base.Properties()
	props[KeyItems] = keypath.Property{Get: func() any { return p.Items() }}
	props["sections"] = keypath.Property{Get: func() any { return p.sections }}
	props[KeyTotalCount] = keypath.Property{Get: func() any { return p.TotalCount() }}
	props["count"] = keypath.Property{Get: func() any { return p.TotalCount() }}
	props[KeyValue] = keypath.Property{Get: p.Value}
	props["first"] = keypath.Property{Get: p.First}
	props["last"] = keypath.Property{Get: p.Last}
	props["resultChain"] = keypath.Property{
		Get: func() any { return p.chain.Specs() },
		Set: p.setChainSpecs,
	}
	return props
}

func sameItem(a, b any) bool {
	if a == nil || b == nil {
		return a == b
	}
	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	if ra.Kind() == reflect.Pointer && rb.Kind() == reflect.Pointer {
		return ra.Pointer() == rb.Pointer()
	}
	if ia, ok := itemID(a); ok {
		if ib, ok := itemID(b); ok {
			return ia == ib
		}
	}
	return reflect.DeepEqual(a, b)
}

// itemID reads the "id" of a record-like item.
func itemID(v any) (string, bool) {
	id, ok := keypath.ValueForKey(v, "id")
	if !ok || id == nil {
		return "", false
	}
	return keypath.String(id), true
}
