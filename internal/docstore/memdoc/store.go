// Package memdoc is an in-memory document store. It backs unit tests and
// local development where no Redis is available, and mirrors the adapter
// semantics of redisdoc: insertion-order iteration, adapter-side predicates,
// window after predicate.
package memdoc

import (
	"context"
	"sync"

	"github.com/ecovector/mosquito-atlas/internal/docstore"
)

type Store struct {
	mu     sync.RWMutex
	tables map[string]*table
	err    error
}

func New() *Store {
	return &Store{tables: make(map[string]*table)}
}

// SetErr forces every subsequent operation to fail with err. Pass nil to
// clear. Used to exercise failure paths in tests.
func (s *Store) SetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *Store) Table(name string) docstore.Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[name]
	if !ok {
		t = &table{store: s, rows: make(map[string]docstore.Row)}
		s.tables[name] = t
	}
	return t
}

func (s *Store) Close() error { return nil }

func (s *Store) forcedErr() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

type table struct {
	store *Store
	mu    sync.RWMutex
	ids   []string
	rows  map[string]docstore.Row
}

func (t *table) Insert(ctx context.Context, id string, row docstore.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := t.store.forcedErr(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.rows[id]; !exists {
		t.ids = append(t.ids, id)
	}
	cp := make(docstore.Row, len(row))
	for k, v := range row {
		cp[k] = v
	}
	t.rows[id] = cp
	return nil
}

func (t *table) Query(ctx context.Context, q docstore.Query) ([]docstore.Row, error) {
	matched, err := t.scan(ctx, q.Predicate)
	if err != nil {
		return nil, err
	}
	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			return []docstore.Row{}, nil
		}
		matched = matched[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(matched) {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

func (t *table) Count(ctx context.Context, p *docstore.Predicate) (int, error) {
	matched, err := t.scan(ctx, p)
	if err != nil {
		return 0, err
	}
	return len(matched), nil
}

func (t *table) scan(ctx context.Context, p *docstore.Predicate) ([]docstore.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := t.store.forcedErr(); err != nil {
		return nil, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]docstore.Row, 0, len(t.ids))
	for _, id := range t.ids {
		row := t.rows[id]
		if p.Match(row) {
			out = append(out, row)
		}
	}
	return out, nil
}
