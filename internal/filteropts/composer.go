// Package filteropts builds the localized filter-options payload served to
// catalog clients.
package filteropts

import (
	"context"
	"log/slog"
	"slices"
	"sort"

	"github.com/ecovector/mosquito-atlas/internal/core/model"
	"github.com/ecovector/mosquito-atlas/internal/i18n"
)

type Composer struct {
	cache  *i18n.Cache
	logger *slog.Logger
}

func New(cache *i18n.Cache, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{cache: cache, logger: logger}
}

// Options assembles one FilterOptions value. Species, regions and data
// sources are independent failure units: a domain that cannot be read leaves
// its list empty and never fails the response.
func (c *Composer) Options(ctx context.Context, lang string, species []string) model.FilterOptions {
	out := model.FilterOptions{
		Species:     sortedSpecies(species),
		Regions:     []model.Option{},
		DataSources: []model.Option{},
	}

	if regions, err := c.localized(i18n.DomainRegion, lang); err != nil {
		c.logger.WarnContext(ctx, "region options unavailable", "lang", lang, "err", err)
	} else {
		out.Regions = regions
	}

	if sources, err := c.localized(i18n.DomainDataSource, lang); err != nil {
		c.logger.WarnContext(ctx, "data source options unavailable", "lang", lang, "err", err)
	} else {
		out.DataSources = sources
	}

	return out
}

func (c *Composer) localized(domain i18n.Domain, lang string) ([]model.Option, error) {
	pairs, err := c.cache.Pairs(domain, lang)
	if err != nil {
		return nil, err
	}
	sortOptions(pairs)
	return pairs, nil
}

// sortOptions orders by localized name, ids only break ties. Ids are
// internal slugs; names are what the user compares.
func sortOptions(opts []model.Option) {
	sort.SliceStable(opts, func(i, j int) bool {
		if opts[i].Name != opts[j].Name {
			return opts[i].Name < opts[j].Name
		}
		return opts[i].ID < opts[j].ID
	})
}

func sortedSpecies(species []string) []string {
	out := make([]string, 0, len(species))
	for _, s := range species {
		if s != "" {
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
