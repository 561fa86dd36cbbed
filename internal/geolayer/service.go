// Package geolayer serves map-ready feature collections: store query with
// predicate push-down where the adapter supports it, then the filter engine,
// then the GeoJSON wire shape.
package geolayer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ecovector/mosquito-atlas/internal/core/model"
	"github.com/ecovector/mosquito-atlas/internal/docstore"
	"github.com/ecovector/mosquito-atlas/internal/geofilter"
	"github.com/ecovector/mosquito-atlas/internal/layercache"
)

// ErrUnknownLayer reports a layer name with no configured backing table.
var ErrUnknownLayer = errors.New("geolayer: unknown layer")

type Query struct {
	Layer   string
	Species []string
	BBox    *model.BBox
	Dates   model.DateRange
	Limit   int
}

type Service struct {
	store        docstore.Store
	tables       map[string]string
	cache        *layercache.Cache
	defaultLimit int
	logger       *slog.Logger
}

// New builds the service. tables maps public layer names to store tables;
// cache may be nil to disable response memoization.
func New(store docstore.Store, tables map[string]string, cache *layercache.Cache, defaultLimit int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:        store,
		tables:       tables,
		cache:        cache,
		defaultLimit: defaultLimit,
		logger:       logger,
	}
}

// Layers lists the configured public layer names.
func (s *Service) Layers() []string {
	out := make([]string, 0, len(s.tables))
	for name := range s.tables {
		out = append(out, name)
	}
	return out
}

// Layer returns the serialized FeatureCollection for the query. Store
// failures degrade to an empty collection: the map stays available even when
// a layer read fails. Only an unknown layer name is an error.
func (s *Service) Layer(ctx context.Context, q Query) ([]byte, error) {
	table, ok := s.tables[q.Layer]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLayer, q.Layer)
	}

	key := layercache.Key(q.Layer, canonicalQuery(q))
	if s.cache != nil {
		if body, ok := s.cache.Get(key); ok {
			return body, nil
		}
	}

	limit := q.Limit
	if limit <= 0 {
		limit = s.defaultLimit
	}

	degraded := false
	rows, err := s.store.Table(table).Query(ctx, docstore.Query{
		Predicate: speciesPushdown(q.Species),
		Limit:     limit,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "layer read degraded to empty collection",
			"layer", q.Layer, "err", err)
		rows = nil
		degraded = true
	}

	feats := geofilter.Filter(table, rows, geofilter.Predicates{
		Species: q.Species,
		BBox:    q.BBox,
		Dates:   q.Dates,
	})

	body, err := json.Marshal(model.NewFeatureCollection(feats))
	if err != nil {
		return nil, fmt.Errorf("marshal %q collection: %w", q.Layer, err)
	}

	// degraded responses stay out of the cache so a recovered store is
	// visible immediately
	if s.cache != nil && !degraded {
		s.cache.Put(key, body)
	}
	return body, nil
}

// speciesPushdown builds a store-side predicate when exactly one species is
// requested. Multi-species disjunction stays with the engine; the adapter
// only knows conjunctive equality.
func speciesPushdown(species []string) *docstore.Predicate {
	if len(species) != 1 {
		return nil
	}
	return &docstore.Predicate{Equals: map[string]string{"properties.species": species[0]}}
}

// canonicalQuery renders the query deterministically for cache keying. Field
// order is fixed and species keep their request order, which the engine also
// ignores.
func canonicalQuery(q Query) string {
	var b strings.Builder
	b.WriteString("species=")
	b.WriteString(strings.Join(q.Species, ","))
	b.WriteString("&bbox=")
	if q.BBox != nil {
		b.WriteString(q.BBox.String())
	}
	b.WriteString("&start=")
	if !q.Dates.Start.IsZero() {
		b.WriteString(q.Dates.Start.Format(model.DateLayout))
	}
	b.WriteString("&end=")
	if !q.Dates.End.IsZero() {
		b.WriteString(q.Dates.End.Format(model.DateLayout))
	}
	fmt.Fprintf(&b, "&limit=%d", q.Limit)
	return b.String()
}
