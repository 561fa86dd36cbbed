package filteropts

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/ecovector/mosquito-atlas/internal/docstore"
	"github.com/ecovector/mosquito-atlas/internal/docstore/memdoc"
	"github.com/ecovector/mosquito-atlas/internal/i18n"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seed(t *testing.T, store *memdoc.Store, table string, rows []docstore.Row) {
	t.Helper()
	tbl := store.Table(table)
	for _, r := range rows {
		id, _ := r["id"].(string)
		if err := tbl.Insert(context.Background(), id, r); err != nil {
			t.Fatalf("seed %s/%q: %v", table, id, err)
		}
	}
}

func TestOptions_RegionsSortedByLocalizedName(t *testing.T) {
	store := memdoc.New()
	seed(t, store, "regions", []docstore.Row{
		{"id": "z_region", "name_en": "Alpha"},
		{"id": "a_region", "name_en": "Zulu"},
		{"id": "m_region", "name_en": "Beta"},
	})
	seed(t, store, "data_sources", []docstore.Row{
		{"id": "src_b", "name_en": "Citizen reports"},
		{"id": "src_a", "name_en": "Trap network"},
	})

	cache := i18n.New(store, "en", []string{"en"})
	if err := cache.LoadAll(context.Background()); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}

	opts := New(cache, discard()).Options(context.Background(), "en", nil)

	wantNames := []string{"Alpha", "Beta", "Zulu"}
	if len(opts.Regions) != len(wantNames) {
		t.Fatalf("regions=%d want %d", len(opts.Regions), len(wantNames))
	}
	for i, want := range wantNames {
		if opts.Regions[i].Name != want {
			t.Fatalf("regions[%d]=%q want %q (sorted by name, not id)", i, opts.Regions[i].Name, want)
		}
	}

	if opts.DataSources[0].Name != "Citizen reports" || opts.DataSources[1].Name != "Trap network" {
		t.Fatalf("data sources out of order: %+v", opts.DataSources)
	}
}

func TestOptions_NameTiesBreakByID(t *testing.T) {
	store := memdoc.New()
	seed(t, store, "regions", []docstore.Row{
		{"id": "b_region", "name_en": "Same"},
		{"id": "a_region", "name_en": "Same"},
	})
	seed(t, store, "data_sources", nil)

	cache := i18n.New(store, "en", []string{"en"})
	if err := cache.LoadAll(context.Background()); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}

	opts := New(cache, discard()).Options(context.Background(), "en", nil)
	if opts.Regions[0].ID != "a_region" || opts.Regions[1].ID != "b_region" {
		t.Fatalf("tie not broken by id: %+v", opts.Regions)
	}
}

func TestOptions_SpeciesSortedCaseSensitively(t *testing.T) {
	store := memdoc.New()
	seed(t, store, "regions", nil)
	seed(t, store, "data_sources", nil)

	cache := i18n.New(store, "en", []string{"en"})
	if err := cache.LoadAll(context.Background()); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}

	in := []string{"Culex pipiens", "Aedes albopictus", "aedes aegypti", "Aedes albopictus", ""}
	opts := New(cache, discard()).Options(context.Background(), "en", in)

	want := []string{"Aedes albopictus", "Culex pipiens", "aedes aegypti"}
	if len(opts.Species) != len(want) {
		t.Fatalf("species=%v want %v", opts.Species, want)
	}
	for i := range want {
		if opts.Species[i] != want[i] {
			t.Fatalf("species=%v want %v", opts.Species, want)
		}
	}
}

func TestOptions_UnloadedDomainYieldsEmptyListNotFailure(t *testing.T) {
	cache := i18n.New(memdoc.New(), "en", []string{"en"})

	opts := New(cache, discard()).Options(context.Background(), "en", []string{"Aedes albopictus"})

	if len(opts.Regions) != 0 || len(opts.DataSources) != 0 {
		t.Fatalf("expected empty localized lists, got %+v", opts)
	}
	if len(opts.Species) != 1 {
		t.Fatalf("species list must survive localization failure: %+v", opts.Species)
	}
	if opts.Regions == nil || opts.DataSources == nil {
		t.Fatalf("lists must be empty, not nil, for stable wire shape")
	}
}
