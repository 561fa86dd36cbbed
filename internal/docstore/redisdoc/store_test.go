package redisdoc

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/ecovector/mosquito-atlas/internal/docstore"
)

// creates a store connected to miniredis for testing
func newMini(t *testing.T) *Store {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	s, err := New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestInsertQuery_PreservesInsertionOrder(t *testing.T) {
	s := newMini(t)
	tbl := s.Table("observations")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ids := []string{"c", "a", "b"}
	for _, id := range ids {
		if err := tbl.Insert(ctx, id, docstore.Row{"id": id}); err != nil {
			t.Fatalf("Insert %q: %v", id, err)
		}
	}

	rows, err := tbl.Query(ctx, docstore.Query{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows=%d want 3", len(rows))
	}
	for i, id := range ids {
		if got := rows[i]["id"]; got != id {
			t.Fatalf("rows[%d].id=%v want %q (insertion order must hold)", i, got, id)
		}
	}
}

func TestQuery_PredicateAndWindow(t *testing.T) {
	s := newMini(t)
	tbl := s.Table("observations")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for i, user := range []string{"u1", "u2", "u1", "u1", "u2"} {
		id := string(rune('a' + i))
		if err := tbl.Insert(ctx, id, docstore.Row{"id": id, "user_id": user}); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	pred := &docstore.Predicate{Equals: map[string]string{"user_id": "u1"}}

	rows, err := tbl.Query(ctx, docstore.Query{Predicate: pred, Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows=%d want 2", len(rows))
	}
	if rows[0]["id"] != "c" || rows[1]["id"] != "d" {
		t.Fatalf("window=[%v %v] want [c d]", rows[0]["id"], rows[1]["id"])
	}

	n, err := tbl.Count(ctx, pred)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 3 {
		t.Fatalf("count=%d want 3 (total matches, not page size)", n)
	}
}

func TestQuery_OffsetPastEndIsEmpty(t *testing.T) {
	s := newMini(t)
	tbl := s.Table("observations")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := tbl.Insert(ctx, "only", docstore.Row{"id": "only"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	rows, err := tbl.Query(ctx, docstore.Query{Limit: 10, Offset: 5})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("rows=%d want 0", len(rows))
	}
}

func TestQuery_SkipsUndecodableRows(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	s, err := New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	tbl := s.Table("observations")
	if err := tbl.Insert(ctx, "good", docstore.Row{"id": "good"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	// corrupt a second row behind the adapter's back
	mr.ZAdd("tbl:observations:ids", 99, "bad")
	mr.HSet("tbl:observations:rows", "bad", "{not json")

	rows, err := tbl.Query(ctx, docstore.Query{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(rows) != 1 || rows[0]["id"] != "good" {
		t.Fatalf("rows=%+v want only the decodable row", rows)
	}
}

func TestContextDeadline_IsRespected(t *testing.T) {
	s := newMini(t)
	tbl := s.Table("observations")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := tbl.Insert(ctx, "k", docstore.Row{"id": "k"}); err == nil {
		t.Fatalf("expected error on Insert with canceled context")
	}
	if _, err := tbl.Query(ctx, docstore.Query{}); err == nil {
		t.Fatalf("expected error on Query with canceled context")
	}
}
