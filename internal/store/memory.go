package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/matthewbaird/bindery/internal/observe"
	"github.com/matthewbaird/bindery/internal/predicate"
)

// Memory implements Store using in-memory tables.
// Intended for demos and testing.
type Memory struct {
	mu       sync.RWMutex
	tables   map[string][]Record
	notifier notifier
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{tables: make(map[string][]Record)}
}

func (s *Memory) Fetch(_ context.Context, req Request) ([]Record, error) {
	var p *predicate.Predicate
	if req.Predicate != "" {
		var err error
		if p, err = predicate.Compile(req.Predicate); err != nil {
			return nil, errors.Wrap(err, "fetch")
		}
	}

	s.mu.RLock()
	var matched []Record
	for _, r := range s.tables[req.Entity] {
		if p == nil || p.Evaluate(r, req.Vars) {
			matched = append(matched, r.Clone())
		}
	}
	s.mu.RUnlock()

	if len(req.Sort) > 0 {
		sort.SliceStable(matched, func(i, j int) bool {
			return less(matched[i], matched[j], req.Sort)
		})
	}
	if req.Offset > 0 {
		if req.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[req.Offset:]
	}
	if req.Limit > 0 && len(matched) > req.Limit {
		matched = matched[:req.Limit]
	}
	return matched, nil
}

// less orders records by sorts; nil sorts first.
func less(a, b Record, sorts []Sort) bool {
	for _, s := range sorts {
		av, bv := a[s.Field], b[s.Field]
		var c int
		switch {
		case av == nil && bv == nil:
			c = 0
		case av == nil:
			c = -1
		case bv == nil:
			c = 1
		default:
			c, _ = predicate.Compare(av, bv)
		}
		if c == 0 {
			continue
		}
		if s.Descending {
			return c > 0
		}
		return c < 0
	}
	return false
}

func (s *Memory) Insert(_ context.Context, entity string, rec Record) (Record, error) {
	rec = rec.Clone()
	if rec.ID() == "" {
		rec[IDKey] = uuid.NewString()
	}
	s.mu.Lock()
	for _, r := range s.tables[entity] {
		if r.ID() == rec.ID() {
			s.mu.Unlock()
			return nil, errors.Errorf("insert %s: duplicate id %s", entity, rec.ID())
		}
	}
	s.tables[entity] = append(s.tables[entity], rec)
	s.mu.Unlock()

	s.notifier.notify(Change{Entity: entity, Kind: Inserted, Record: rec.Clone()})
	return rec.Clone(), nil
}

func (s *Memory) Update(_ context.Context, entity string, rec Record) error {
	s.mu.Lock()
	var updated Record
	for _, r := range s.tables[entity] {
		if r.ID() == rec.ID() {
			for k, v := range rec {
				r[k] = v
			}
			updated = r.Clone()
			break
		}
	}
	s.mu.Unlock()
	if updated == nil {
		return errors.Wrapf(ErrNotFound, "update %s %s", entity, rec.ID())
	}
	s.notifier.notify(Change{Entity: entity, Kind: Updated, Record: updated})
	return nil
}

func (s *Memory) Delete(_ context.Context, entity, id string) error {
	s.mu.Lock()
	var deleted Record
	rows := s.tables[entity]
	for i, r := range rows {
		if r.ID() == id {
			deleted = r
			s.tables[entity] = append(rows[:i:i], rows[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	if deleted == nil {
		return errors.Wrapf(ErrNotFound, "delete %s %s", entity, id)
	}
	s.notifier.notify(Change{Entity: entity, Kind: Deleted, Record: deleted})
	return nil
}

func (s *Memory) Observe(entity string, fn func(Change)) observe.Subscription {
	return s.notifier.observe(entity, fn)
}
