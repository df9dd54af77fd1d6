package content

import (
	"context"
	"reflect"
	"sort"
	"strings"

	"github.com/bdlm/log"
	"github.com/pkg/errors"

	"github.com/matthewbaird/bindery/internal/keypath"
	"github.com/matthewbaird/bindery/internal/mainloop"
	"github.com/matthewbaird/bindery/internal/observe"
	"github.com/matthewbaird/bindery/internal/predicate"
	"github.com/matthewbaird/bindery/internal/store"
)

// Variables available to predicate formats of a ManagedObjects fetch.
const (
	VarMaster = "master"
	VarSearch = "@"
)

// ErrNoStore is returned by Fetch when no store is wired.
var ErrNoStore = errors.New("content: no store")

// ManagedObjects is a store-backed provider. Fetch runs a request built
// from its settings and keeps observing the entity; every saved change
// refetches and is reported to consumers as a batch of item changes.
type ManagedObjects struct {
	provider

	Store  store.Store
	Entity string

	SortByFields  []string
	SortAscending bool

	PredicateFormat string
	MasterKeyPath   string
	MasterObject    any
	FilterFormat    string
	GroupBy         string
	Limit           int

	// Post delivers store notifications to the loop owning the provider.
	Post mainloop.Poster

	search  string
	sub     observe.Subscription
	fetched bool
}

func NewManagedObjects() *ManagedObjects {
	m := &ManagedObjects{SortAscending: true, Post: mainloop.Immediate{}}
	m.self = m
	return m
}

// SetPoster routes store notifications through p.
func (m *ManagedObjects) SetPoster(p mainloop.Poster) {
	m.Post = p
}

func (m *ManagedObjects) SearchString() string {
	return m.search
}

// SetSearchString updates the live search and refetches when it changes.
func (m *ManagedObjects) SetSearchString(s string) {
	if s == m.search {
		return
	}
	m.search = s
	m.refetch()
}

// SetMasterObject updates the master object and refetches.
func (m *ManagedObjects) SetMasterObject(v any) {
	m.MasterObject = v
	m.refetch()
}

// Request returns the fetch specification for the current settings.
func (m *ManagedObjects) Request() store.Request {
	req := store.Request{Entity: m.Entity, Limit: m.Limit, Vars: map[string]any{}}
	var formats []string
	formats = append(formats, m.PredicateFormat)
	if m.MasterKeyPath != "" && m.MasterObject != nil {
		formats = append(formats, m.MasterKeyPath+" == $"+VarMaster)
		req.Vars[VarMaster] = masterValue(m.MasterObject)
	}
	if m.FilterFormat != "" && m.search != "" {
		formats = append(formats, m.FilterFormat)
		req.Vars[VarSearch] = m.search
	}
	req.Predicate = predicate.Join(formats...)
	if m.GroupBy != "" {
		req.Sort = append(req.Sort, store.Sort{Field: m.GroupBy, Descending: !m.SortAscending})
	}
	for _, f := range m.SortByFields {
		if f = strings.TrimSpace(f); f != "" && f != m.GroupBy {
			req.Sort = append(req.Sort, store.Sort{Field: f, Descending: !m.SortAscending})
		}
	}
	return req
}

// masterValue compares related records by identity.
func masterValue(v any) any {
	if id, ok := keypath.ValueForKey(v, store.IDKey); ok && id != nil {
		return id
	}
	return v
}

// Fetch tears down the live query, runs the request and re-observes the
// entity. The first fetch renders everything; later ones report a diff.
func (m *ManagedObjects) Fetch(ctx context.Context) error {
	if m.Store == nil {
		return ErrNoStore
	}
	if m.Entity == "" {
		return errors.New("content: managed objects without entity")
	}
	if m.sub != nil {
		m.sub.Cancel()
		m.sub = nil
	}
	recs, err := m.Store.Fetch(ctx, m.Request())
	if err != nil {
		return errors.Wrapf(err, "fetch %s", m.Entity)
	}
	m.apply(m.group(recs))
	m.sub = m.Store.Observe(m.Entity, func(store.Change) {
		m.Post.Post(m.refetch)
	})
	return nil
}

func (m *ManagedObjects) refetch() {
	if !m.fetched {
		return
	}
	if err := m.Fetch(context.Background()); err != nil {
		log.WithFields(log.Fields{"provider": m.Identifier(), "entity": m.Entity, "err": err}).Warn("content: refetch failed")
	}
}

// group splits records into sections by the GroupBy field.
func (m *ManagedObjects) group(recs []store.Record) []Section {
	if m.GroupBy == "" {
		items := make([]any, len(recs))
		for i, r := range recs {
			items[i] = r
		}
		return []Section{{Items: items}}
	}
	var sections []Section
	for _, r := range recs {
		name := keypath.String(r[m.GroupBy])
		if n := len(sections); n == 0 || sections[n-1].Name != name {
			sections = append(sections, Section{Name: name})
		}
		last := &sections[len(sections)-1]
		last.Items = append(last.Items, r)
	}
	return sections
}

func (m *ManagedObjects) apply(next []Section) {
	prev := m.sections
	first := !m.fetched
	m.fetched = true
	if first || !sameSectionNames(prev, next) {
		m.setSections(next)
		m.renderAll()
		return
	}
	changes := Diff(prev, next)
	m.sections = next
	if len(changes) == 0 {
		return
	}
	m.changed()
	m.prepareRender()
	for _, c := range changes {
		m.renderItem(c.Item, c.Kind, c.At, c.NewAt)
	}
	m.finalizeRender()
}

// Reset drops the fetched items and stops observing the store.
func (m *ManagedObjects) Reset() {
	if m.sub != nil {
		m.sub.Cancel()
		m.sub = nil
	}
	m.fetched = false
	m.setSections(nil)
	m.renderAll()
}

// Insert saves rec in the entity. The store notification refetches.
func (m *ManagedObjects) Insert(ctx context.Context, rec store.Record) (store.Record, error) {
	if m.Store == nil {
		return nil, ErrNoStore
	}
	return m.Store.Insert(ctx, m.Entity, rec)
}

func (m *ManagedObjects) Properties() keypath.Properties {
	props := m.provider.Properties()
	props["store"] = keypath.Property{
		Get: func() any { return m.Store },
		Set: func(v any) error {
			s, ok := v.(store.Store)
			if !ok {
				return errors.Errorf("store: expected a store, got %T", v)
			}
			m.Store = s
			return nil
		},
	}
	props["entity"] = stringProperty(&m.Entity)
	props["predicateFormat"] = stringProperty(&m.PredicateFormat)
	props["masterKeyPath"] = stringProperty(&m.MasterKeyPath)
	props["filterFormat"] = stringProperty(&m.FilterFormat)
	props["groupBy"] = stringProperty(&m.GroupBy)
	props["sortByFields"] = keypath.Property{
		Get: func() any { return m.SortByFields },
		Set: func(v any) error {
			fields, err := stringList(v)
			m.SortByFields = fields
			return err
		},
	}
	props["sortAscending"] = keypath.Property{
		Get: func() any { return m.SortAscending },
		Set: func(v any) error {
			m.SortAscending = predicate.Truthy(v)
			return nil
		},
	}
	props["limit"] = keypath.Property{
		Get: func() any { return m.Limit },
		Set: func(v any) error {
			n, ok := predicate.Number(v)
			if !ok {
				return errors.Errorf("limit: expected a number, got %T", v)
			}
			m.Limit = int(n)
			return nil
		},
	}
	props["masterObject"] = keypath.Property{
		Get: func() any { return m.MasterObject },
		Set: func(v any) error {
			m.SetMasterObject(v)
			return nil
		},
	}
	props["searchString"] = keypath.Property{
		Get: func() any { return m.search },
		Set: func(v any) error {
			m.SetSearchString(keypath.String(v))
			return nil
		},
	}
	return props
}

func stringProperty(p *string) keypath.Property {
	return keypath.Property{
		Get: func() any { return *p },
		Set: func(v any) error {
			*p = keypath.String(v)
			return nil
		},
	}
}

func sameSectionNames(a, b []Section) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name {
			return false
		}
	}
	return true
}

// ItemChange is one entry of a diff.
type ItemChange struct {
	Item  any
	Kind  ChangeKind
	At    IndexPath
	NewAt IndexPath
}

type located struct {
	key  string
	item any
	at   IndexPath
}

func flatten(sections []Section) []located {
	var out []located
	for s, sec := range sections {
		for i, item := range sec.Items {
			key, ok := itemID(item)
			if !ok {
				key = keypath.String(item)
			}
			out = append(out, located{key: key, item: item, at: IndexPath{Section: s, Item: i}})
		}
	}
	return out
}

// Diff reports how to turn prev into next. Items keep their identity
// through their "id". Items that stay in relative order are kept and
// reported as updates when their content changed; every other item that
// changed position is a move, reported as a delete at the old path and an
// insert at the new one. Deletes come first, highest path first, then
// inserts, lowest path first, then updates at their new paths.
func Diff(prev, next []Section) []ItemChange {
	a, b := flatten(prev), flatten(next)
	keptA, keptB := keep(a, b)

	var deletes, inserts, updates []ItemChange
	for i, x := range a {
		if !keptA[i] {
			deletes = append(deletes, ItemChange{Item: x.item, Kind: Delete, At: x.at, NewAt: NoIndex})
		}
	}
	for j, y := range b {
		if !keptB[j] {
			inserts = append(inserts, ItemChange{Item: y.item, Kind: Insert, At: NoIndex, NewAt: y.at})
		}
	}
	for i, j := 0, 0; i < len(a) && j < len(b); {
		switch {
		case !keptA[i]:
			i++
		case !keptB[j]:
			j++
		default:
			if !reflect.DeepEqual(a[i].item, b[j].item) {
				updates = append(updates, ItemChange{Item: b[j].item, Kind: Update, At: b[j].at, NewAt: b[j].at})
			}
			i++
			j++
		}
	}

	out := make([]ItemChange, 0, len(deletes)+len(inserts)+len(updates))
	for i := len(deletes) - 1; i >= 0; i-- {
		out = append(out, deletes[i])
	}
	out = append(out, inserts...)
	return append(out, updates...)
}

// keep marks the items of a and b that stay in place. Items are paired by
// key, repeated keys in order of appearance, and the longest run of pairs
// whose old positions increase is kept. With unique keys this is the
// longest common subsequence, found in O(n log n) time and linear space.
func keep(a, b []located) ([]bool, []bool) {
	byKey := make(map[string][]int, len(a))
	for i, x := range a {
		byKey[x.key] = append(byKey[x.key], i)
	}
	// pairs[k] = (index in b, index in a), ordered by b.
	type pair struct{ j, i int }
	var pairs []pair
	for j, y := range b {
		if q := byKey[y.key]; len(q) > 0 {
			pairs = append(pairs, pair{j, q[0]})
			byKey[y.key] = q[1:]
		}
	}

	// Longest increasing subsequence of pairs[].i by patience sorting.
	tails := make([]int, 0, len(pairs)) // pair index ending each run length
	prev := make([]int, len(pairs))
	for k, p := range pairs {
		n := sort.Search(len(tails), func(x int) bool { return pairs[tails[x]].i >= p.i })
		prev[k] = -1
		if n > 0 {
			prev[k] = tails[n-1]
		}
		if n == len(tails) {
			tails = append(tails, k)
		} else {
			tails[n] = k
		}
	}

	keptA, keptB := make([]bool, len(a)), make([]bool, len(b))
	if len(tails) > 0 {
		for k := tails[len(tails)-1]; k >= 0; k = prev[k] {
			keptA[pairs[k].i], keptB[pairs[k].j] = true, true
		}
	}
	return keptA, keptB
}
