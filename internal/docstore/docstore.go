// Package docstore defines the document store surface this service consumes.
// Tables hold untyped rows; all typed interpretation happens in the
// repositories that read them.
package docstore

import (
	"context"
	"errors"
	"strings"
)

// Row is one untyped record as the store returns it.
type Row map[string]any

// Predicate is a conjunction of field equality checks. The backing store has
// no native predicate support, so adapters apply it while scanning. Field
// names may use dots to descend into nested objects ("properties.species").
type Predicate struct {
	Equals map[string]string
}

// Match reports whether every predicate field is present on the row as a
// string with the expected value.
func (p *Predicate) Match(r Row) bool {
	if p == nil {
		return true
	}
	for field, want := range p.Equals {
		got, ok := lookup(r, field)
		if !ok || got != want {
			return false
		}
	}
	return true
}

func lookup(r Row, field string) (string, bool) {
	cur := map[string]any(r)
	for {
		dot := strings.IndexByte(field, '.')
		if dot < 0 {
			s, ok := cur[field].(string)
			return s, ok
		}
		next, ok := cur[field[:dot]].(map[string]any)
		if !ok {
			return "", false
		}
		cur = next
		field = field[dot+1:]
	}
}

// Query selects a window over the rows matching the predicate. Rows are
// always iterated in insertion order, which is what makes limit/offset a
// stable pagination window.
type Query struct {
	Predicate *Predicate
	Limit     int // <= 0 means no limit
	Offset    int
}

// ErrTimeout marks a store operation that hit its deadline, as opposed to a
// row that simply is not there.
var ErrTimeout = errors.New("docstore: operation timed out")

type Table interface {
	// Insert writes one row under the given id.
	Insert(ctx context.Context, id string, row Row) error

	// Query returns the rows matching q in insertion order.
	Query(ctx context.Context, q Query) ([]Row, error)

	// Count returns the total number of rows matching the predicate,
	// ignoring any window.
	Count(ctx context.Context, p *Predicate) (int, error)
}

type Store interface {
	Table(name string) Table
	Close() error
}
