package scheme

import "sort"

// Namespace is the flat variable table used for every identifier lookup
// during resolution. Entries are never overwritten.
type Namespace struct {
	entries map[string]any
	order   []string
}

// NewNamespace creates an empty namespace.
func NewNamespace() *Namespace {
	return &Namespace{entries: make(map[string]any)}
}

// Insert adds obj under key unless key is already taken. It reports whether
// the entry was added.
func (n *Namespace) Insert(key string, obj any) bool {
	if key == "" || obj == nil {
		return false
	}
	if _, ok := n.entries[key]; ok {
		return false
	}
	n.entries[key] = obj
	n.order = append(n.order, key)
	return true
}

// Add indexes obj under its identifier and, when set, its alias.
func (n *Namespace) Add(obj any, id, alias string) {
	n.Insert(id, obj)
	if alias != "" {
		n.Insert(alias, obj)
	}
}

// Merge copies every entry of other that is not yet present.
func (n *Namespace) Merge(other *Namespace) {
	if other == nil {
		return
	}
	for _, k := range other.order {
		n.Insert(k, other.entries[k])
	}
}

// Lookup returns the object stored under key.
func (n *Namespace) Lookup(key string) (any, bool) {
	obj, ok := n.entries[key]
	return obj, ok
}

// ValueForKey implements keypath.Getter so binding sources can be written
// as "<identifier>.<path>".
func (n *Namespace) ValueForKey(key string) (any, bool) {
	return n.Lookup(key)
}

// Keys returns the keys in insertion order.
func (n *Namespace) Keys() []string {
	return append([]string(nil), n.order...)
}

// SortedKeys returns the keys sorted.
func (n *Namespace) SortedKeys() []string {
	keys := n.Keys()
	sort.Strings(keys)
	return keys
}

// Len returns the number of keys.
func (n *Namespace) Len() int { return len(n.order) }
