// Package i18n holds the localization cache: a load-once, read-only mapping
// from (domain, language, id) to a display label. Lookups never hit the
// store; the whole table is built at startup and swapped atomically on
// reload.
package i18n

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/ecovector/mosquito-atlas/internal/core/model"
	"github.com/ecovector/mosquito-atlas/internal/core/observability"
	"github.com/ecovector/mosquito-atlas/internal/docstore"
)

// Domain names one localized vocabulary. Each domain owns its own backing
// table and resolve map.
type Domain string

const (
	DomainRegion     Domain = "region"
	DomainDataSource Domain = "data_source"
)

// Domains lists every domain the cache manages, in load order.
var Domains = []Domain{DomainRegion, DomainDataSource}

// TableName is the store table backing the domain.
func (d Domain) TableName() string {
	switch d {
	case DomainRegion:
		return "regions"
	case DomainDataSource:
		return "data_sources"
	default:
		return string(d)
	}
}

// ErrNotLoaded reports a resolve against a domain whose Load never
// completed. This is a wiring error, distinct from an id that simply has no
// translation.
var ErrNotLoaded = errors.New("i18n: domain not loaded")

// domainTable is immutable once built. labels is language -> id -> label;
// ids keeps the backing ids so callers can enumerate a domain even for a
// language that was never loaded.
type domainTable struct {
	ids    []string
	labels map[string]map[string]string
}

type Cache struct {
	store       docstore.Store
	defaultLang string
	languages   []string

	tables map[Domain]*atomic.Pointer[domainTable]
}

func New(store docstore.Store, defaultLang string, languages []string) *Cache {
	c := &Cache{
		store:       store,
		defaultLang: defaultLang,
		languages:   languages,
		tables:      make(map[Domain]*atomic.Pointer[domainTable], len(Domains)),
	}
	for _, d := range Domains {
		c.tables[d] = &atomic.Pointer[domainTable]{}
	}
	return c
}

// Load reads the domain's backing table once and builds the resolve map for
// every supported language. Must complete before the service accepts
// traffic.
func (c *Cache) Load(ctx context.Context, domain Domain) error {
	ptr, ok := c.tables[domain]
	if !ok {
		return fmt.Errorf("i18n: unknown domain %q", domain)
	}

	tbl := c.store.Table(domain.TableName())
	rows, err := tbl.Query(ctx, docstore.Query{})
	if err != nil {
		return fmt.Errorf("load %s labels: %w", domain, err)
	}

	built := &domainTable{
		ids:    make([]string, 0, len(rows)),
		labels: make(map[string]map[string]string, len(c.languages)),
	}
	for _, lang := range c.languages {
		built.labels[lang] = make(map[string]string, len(rows))
	}

	for _, row := range rows {
		id, ok := row["id"].(string)
		if id == "" || !ok {
			observability.IncRowDropped(domain.TableName(), "missing_id")
			continue
		}
		built.ids = append(built.ids, id)
		for _, lang := range c.languages {
			built.labels[lang][id] = resolveLabel(row, lang, c.defaultLang, id)
		}
	}

	// whole-map swap: in-flight readers keep the previous table
	ptr.Store(built)
	return nil
}

// LoadAll loads every domain; the first failure aborts.
func (c *Cache) LoadAll(ctx context.Context) error {
	for _, d := range Domains {
		if err := c.Load(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

// Reload rebuilds one domain from the store. Identical to Load apart from
// metrics; safe to call while readers are active.
func (c *Cache) Reload(ctx context.Context, domain Domain) error {
	err := c.Load(ctx, domain)
	observability.ObserveLocalizationReload(string(domain), err)
	return err
}

// Loaded reports whether the domain's table has been built.
func (c *Cache) Loaded(domain Domain) bool {
	ptr, ok := c.tables[domain]
	return ok && ptr.Load() != nil
}

// Ready reports whether every domain is loaded.
func (c *Cache) Ready() bool {
	for _, d := range Domains {
		if !c.Loaded(d) {
			return false
		}
	}
	return true
}

// Resolve maps an id to its display label for the given language. Unknown
// ids and unsupported languages degrade to the raw id; a domain that was
// never loaded is an error.
func (c *Cache) Resolve(domain Domain, lang, id string) (string, error) {
	ptr, ok := c.tables[domain]
	if !ok {
		return id, fmt.Errorf("%w: unknown domain %q", ErrNotLoaded, domain)
	}
	tbl := ptr.Load()
	if tbl == nil {
		return id, fmt.Errorf("%w: %s", ErrNotLoaded, domain)
	}
	byID, ok := tbl.labels[lang]
	if !ok {
		return id, nil
	}
	if label, ok := byID[id]; ok && label != "" {
		return label, nil
	}
	return id, nil
}

// Pairs enumerates the domain as id/name options for the given language,
// unordered. Callers sort by name.
func (c *Cache) Pairs(domain Domain, lang string) ([]model.Option, error) {
	ptr, ok := c.tables[domain]
	if !ok {
		return nil, fmt.Errorf("%w: unknown domain %q", ErrNotLoaded, domain)
	}
	tbl := ptr.Load()
	if tbl == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotLoaded, domain)
	}

	out := make([]model.Option, 0, len(tbl.ids))
	byID := tbl.labels[lang]
	for _, id := range tbl.ids {
		name := id
		if byID != nil {
			if label, ok := byID[id]; ok && label != "" {
				name = label
			}
		}
		out = append(out, model.Option{ID: id, Name: name})
	}
	return out, nil
}

// resolveLabel applies the three-step fallback chain: requested language,
// default language, raw id.
func resolveLabel(row docstore.Row, lang, defaultLang, id string) string {
	if label := stringField(row, "name_"+lang); label != "" {
		return label
	}
	if label := stringField(row, "name_"+defaultLang); label != "" {
		return label
	}
	return id
}

func stringField(row docstore.Row, field string) string {
	if v, ok := row[field].(string); ok {
		return v
	}
	return ""
}
