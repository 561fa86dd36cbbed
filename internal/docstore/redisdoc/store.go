// Package redisdoc backs the document store contract with Redis. Each table
// keeps a sequence counter, a sorted set of ids ordered by insert sequence,
// and a hash of id to JSON row.
package redisdoc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ecovector/mosquito-atlas/internal/core/observability"
	"github.com/ecovector/mosquito-atlas/internal/docstore"
)

type Option func(*options)

type options struct {
	redis     redis.Options
	opTimeout time.Duration
}

func WithPoolSize(n int) Option {
	return func(o *options) { o.redis.PoolSize = n }
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *options) { o.redis.DialTimeout = d }
}

// WithOpTimeout bounds every table operation. Zero disables the bound.
func WithOpTimeout(d time.Duration) Option {
	return func(o *options) { o.opTimeout = d }
}

type Store struct {
	rdb       *redis.Client
	opTimeout time.Duration
}

func New(ctx context.Context, addr string, opts ...Option) (*Store, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}

	o := options{
		redis: redis.Options{
			Addr:         addr,
			PoolSize:     32,
			MinIdleConns: 2,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
		},
	}
	for _, f := range opts {
		f(&o)
	}

	rdb := redis.NewClient(&o.redis)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Store{rdb: rdb, opTimeout: o.opTimeout}, nil
}

func (s *Store) Table(name string) docstore.Table {
	return &table{store: s, name: name}
}

func (s *Store) Close() error {
	if err := s.rdb.Close(); err != nil {
		return fmt.Errorf("redis close: %w", err)
	}
	return nil
}

func (s *Store) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

type table struct {
	store *Store
	name  string
}

func (t *table) seqKey() string   { return "tbl:" + t.name + ":seq" }
func (t *table) orderKey() string { return "tbl:" + t.name + ":ids" }
func (t *table) rowsKey() string  { return "tbl:" + t.name + ":rows" }

func (t *table) Insert(ctx context.Context, id string, row docstore.Row) error {
	start := time.Now()
	err := t.insert(ctx, id, row)
	observability.ObserveStoreOp("insert", t.name, err, time.Since(start).Seconds())
	return err
}

func (t *table) insert(ctx context.Context, id string, row docstore.Row) error {
	if id == "" {
		return errors.New("row id is required")
	}
	body, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("encode row %q: %w", id, err)
	}

	ctx, cancel := t.store.bound(ctx)
	defer cancel()

	seq, err := t.store.rdb.Incr(ctx, t.seqKey()).Result()
	if err != nil {
		return wrap(fmt.Errorf("next sequence for %q: %w", t.name, err))
	}

	pipe := t.store.rdb.TxPipeline()
	pipe.ZAdd(ctx, t.orderKey(), redis.Z{Score: float64(seq), Member: id})
	pipe.HSet(ctx, t.rowsKey(), id, body)
	if _, err := pipe.Exec(ctx); err != nil {
		return wrap(fmt.Errorf("insert %q into %q: %w", id, t.name, err))
	}
	return nil
}

func (t *table) Query(ctx context.Context, q docstore.Query) ([]docstore.Row, error) {
	start := time.Now()
	rows, err := t.query(ctx, q)
	observability.ObserveStoreOp("query", t.name, err, time.Since(start).Seconds())
	return rows, err
}

func (t *table) query(ctx context.Context, q docstore.Query) ([]docstore.Row, error) {
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
	start := time.Now()
	n, err := t.count(ctx, p)
	observability.ObserveStoreOp("count", t.name, err, time.Since(start).Seconds())
	return n, err
}

func (t *table) count(ctx context.Context, p *docstore.Predicate) (int, error) {
	if p == nil {
		ctx, cancel := t.store.bound(ctx)
		defer cancel()
		n, err := t.store.rdb.ZCard(ctx, t.orderKey()).Result()
		if err != nil {
			return 0, wrap(fmt.Errorf("count %q: %w", t.name, err))
		}
		return int(n), nil
	}
	matched, err := t.scan(ctx, p)
	if err != nil {
		return 0, err
	}
	return len(matched), nil
}

// scan reads all rows in insertion order and applies the predicate. Rows
// that fail to decode are skipped, not raised.
func (t *table) scan(ctx context.Context, p *docstore.Predicate) ([]docstore.Row, error) {
	ctx, cancel := t.store.bound(ctx)
	defer cancel()

	ids, err := t.store.rdb.ZRange(ctx, t.orderKey(), 0, -1).Result()
	if err != nil {
		return nil, wrap(fmt.Errorf("ids of %q: %w", t.name, err))
	}
	if len(ids) == 0 {
		return []docstore.Row{}, nil
	}

	vals, err := t.store.rdb.HMGet(ctx, t.rowsKey(), ids...).Result()
	if err != nil {
		return nil, wrap(fmt.Errorf("rows of %q: %w", t.name, err))
	}

	out := make([]docstore.Row, 0, len(vals))
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok || raw == "" {
			continue
		}
		var row docstore.Row
		if err := json.Unmarshal([]byte(raw), &row); err != nil {
			observability.IncRowDropped(t.name, "decode")
			continue
		}
		if p.Match(row) {
			out = append(out, row)
		}
	}
	return out, nil
}

func wrap(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", docstore.ErrTimeout, err)
	}
	return err
}
