// Package content implements sectioned item sources (providers) and the
// contracts of the surfaces that render them (consumers).
package content

import (
	"context"
	"fmt"

	"github.com/matthewbaird/bindery/internal/observe"
)

// IndexPath addresses an item by section and position.
type IndexPath struct {
	Section int `json:"section"`
	Item    int `json:"item"`
}

// NoIndex is the index path of an absent position.
var NoIndex = IndexPath{Section: -1, Item: -1}

func (p IndexPath) String() string {
	return fmt.Sprintf("%d.%d", p.Section, p.Item)
}

// Less orders index paths section first.
func (p IndexPath) Less(q IndexPath) bool {
	if p.Section != q.Section {
		return p.Section < q.Section
	}
	return p.Item < q.Item
}

// ChangeKind classifies an item change.
type ChangeKind int

const (
	Insert ChangeKind = iota
	Delete
	Update
	Move
)

func (k ChangeKind) String() string {
	switch k {
	case Insert:
		return "insert"
	case Delete:
		return "delete"
	case Update:
		return "update"
	case Move:
		return "move"
	default:
		return "unknown"
	}
}

// Section is a named run of items.
type Section struct {
	Name  string `json:"name,omitempty"`
	Items []any  `json:"items"`
}

// Keys notified by providers.
const (
	KeyItems      = "items"
	KeyTotalCount = "totalCount"
	KeyValue      = "value"
)

// Provider is a sectioned, indexable collection.
type Provider interface {
	observe.Observable

	NumberOfSections() int
	NumberOfItems(section int) int
	TotalCount() int
	ItemAt(IndexPath) (any, bool)
	IndexPathFor(item any) (IndexPath, bool)
	First() any
	Last() any
	Items() []any

	Reset()
	Fetch(ctx context.Context) error

	// Value is the result chain applied to Items.
	Value() any
	SetResultChain(Chain)
	Invalidate()

	AddConsumer(Consumer)
	RemoveConsumer(Consumer)
}

// Consumer is implemented by every surface that renders provider content.
// Individual RenderItem calls are bracketed by PrepareRenderContent and
// FinalizeRenderContent.
type Consumer interface {
	RenderContent(from Provider)
	PrepareRenderContent(from Provider)
	FinalizeRenderContent(from Provider)
	// RenderItem reports one change. Deletes carry the old position in at
	// and come first, highest position first. Inserts carry the new
	// position in newAt, lowest first. Updates come last with at set to
	// the item's position after the structural changes.
	RenderItem(item any, change ChangeKind, at, newAt IndexPath, from Provider)
}

// Aware is implemented by containers that pass content down their tree.
type Aware interface {
	Content() any
	SetContent(any)
}
