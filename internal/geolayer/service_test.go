package geolayer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ecovector/mosquito-atlas/internal/core/model"
	"github.com/ecovector/mosquito-atlas/internal/docstore"
	"github.com/ecovector/mosquito-atlas/internal/docstore/memdoc"
	"github.com/ecovector/mosquito-atlas/internal/layercache"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testTables = map[string]string{"observations": "observations"}

func seedPoints(t *testing.T, store *memdoc.Store, n int) {
	t.Helper()
	tbl := store.Table("observations")
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("row-%02d", i)
		row := docstore.Row{
			"id":       id,
			"geometry": fmt.Sprintf(`{"type":"Point","coordinates":[%d,%d]}`, i, i),
			"properties": map[string]any{
				"species":     "Aedes albopictus",
				"observed_at": "2023-07-20",
			},
		}
		if err := tbl.Insert(context.Background(), id, row); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func decode(t *testing.T, body []byte) model.FeatureCollection {
	t.Helper()
	var fc model.FeatureCollection
	if err := json.Unmarshal(body, &fc); err != nil {
		t.Fatalf("decode FeatureCollection: %v", err)
	}
	return fc
}

func TestLayer_WireShape(t *testing.T) {
	store := memdoc.New()
	seedPoints(t, store, 2)
	svc := New(store, testTables, nil, 100, discard())

	body, err := svc.Layer(context.Background(), Query{Layer: "observations"})
	if err != nil {
		t.Fatalf("Layer: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	var typ string
	if err := json.Unmarshal(raw["type"], &typ); err != nil || typ != "FeatureCollection" {
		t.Fatalf("type=%q want FeatureCollection", typ)
	}

	fc := decode(t, body)
	if len(fc.Features) != 2 {
		t.Fatalf("features=%d want 2", len(fc.Features))
	}
	for _, f := range fc.Features {
		if f.Type != "Feature" {
			t.Fatalf("feature type=%q", f.Type)
		}
	}
}

func TestLayer_EmptyCollectionNotNullFeatures(t *testing.T) {
	svc := New(memdoc.New(), testTables, nil, 100, discard())

	body, err := svc.Layer(context.Background(), Query{Layer: "observations"})
	if err != nil {
		t.Fatalf("Layer: %v", err)
	}
	if string(body) != `{"type":"FeatureCollection","features":[]}` {
		t.Fatalf("empty collection wire shape: %s", body)
	}
}

func TestLayer_UnknownLayer(t *testing.T) {
	svc := New(memdoc.New(), testTables, nil, 100, discard())

	_, err := svc.Layer(context.Background(), Query{Layer: "volcanoes"})
	if !errors.Is(err, ErrUnknownLayer) {
		t.Fatalf("err=%v want ErrUnknownLayer", err)
	}
}

func TestLayer_FiltersApply(t *testing.T) {
	store := memdoc.New()
	seedPoints(t, store, 10)
	svc := New(store, testTables, nil, 100, discard())

	bbox := &model.BBox{MinLon: 2, MinLat: 2, MaxLon: 5, MaxLat: 5}
	body, err := svc.Layer(context.Background(), Query{
		Layer:   "observations",
		Species: []string{"Aedes albopictus"},
		BBox:    bbox,
	})
	if err != nil {
		t.Fatalf("Layer: %v", err)
	}
	fc := decode(t, body)
	if len(fc.Features) != 4 {
		t.Fatalf("features=%d want 4 (points 2..5 inclusive)", len(fc.Features))
	}
}

func TestLayer_StoreFailureDegradesToEmpty(t *testing.T) {
	store := memdoc.New()
	seedPoints(t, store, 3)
	store.SetErr(errors.New("store down"))
	svc := New(store, testTables, nil, 100, discard())

	body, err := svc.Layer(context.Background(), Query{Layer: "observations"})
	if err != nil {
		t.Fatalf("read path must not propagate store errors, got %v", err)
	}
	fc := decode(t, body)
	if len(fc.Features) != 0 {
		t.Fatalf("degraded response must be empty, got %d features", len(fc.Features))
	}
}

func TestLayer_CacheHitSkipsStore(t *testing.T) {
	store := memdoc.New()
	seedPoints(t, store, 1)
	cache := layercache.New(8, time.Minute)
	svc := New(store, testTables, cache, 100, discard())

	q := Query{Layer: "observations"}
	first, err := svc.Layer(context.Background(), q)
	if err != nil {
		t.Fatalf("Layer: %v", err)
	}

	// store failure after warm cache: the cached body must still serve
	store.SetErr(errors.New("store down"))
	second, err := svc.Layer(context.Background(), q)
	if err != nil {
		t.Fatalf("Layer: %v", err)
	}
	if string(first) != string(second) {
		t.Fatalf("cached response differs from original")
	}
	if len(decode(t, second).Features) != 1 {
		t.Fatalf("cache must have preserved the populated response")
	}
}

func TestLayer_DegradedResponseIsNotCached(t *testing.T) {
	store := memdoc.New()
	seedPoints(t, store, 1)
	cache := layercache.New(8, time.Minute)
	svc := New(store, testTables, cache, 100, discard())

	store.SetErr(errors.New("store down"))
	q := Query{Layer: "observations"}
	if body, err := svc.Layer(context.Background(), q); err != nil || len(decode(t, body).Features) != 0 {
		t.Fatalf("expected degraded empty response")
	}

	store.SetErr(nil)
	body, err := svc.Layer(context.Background(), q)
	if err != nil {
		t.Fatalf("Layer: %v", err)
	}
	if len(decode(t, body).Features) != 1 {
		t.Fatalf("recovered store must serve fresh data, not the degraded body")
	}
}

func TestLayer_SpeciesPushdownStillFiltersEngineSide(t *testing.T) {
	store := memdoc.New()
	tbl := store.Table("observations")
	rows := []docstore.Row{
		{"id": "a", "geometry": `{"type":"Point","coordinates":[1,1]}`,
			"properties": map[string]any{"species": "Aedes aegypti"}},
		{"id": "b", "geometry": `{"type":"Point","coordinates":[1,1]}`,
			"properties": map[string]any{"species": "Culex pipiens"}},
	}
	for _, r := range rows {
		if err := tbl.Insert(context.Background(), r["id"].(string), r); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	svc := New(store, testTables, nil, 100, discard())

	body, err := svc.Layer(context.Background(), Query{
		Layer:   "observations",
		Species: []string{"Aedes aegypti"},
	})
	if err != nil {
		t.Fatalf("Layer: %v", err)
	}
	fc := decode(t, body)
	if len(fc.Features) != 1 || fc.Features[0].ID != "a" {
		t.Fatalf("single-species query returned %+v", fc.Features)
	}
}
