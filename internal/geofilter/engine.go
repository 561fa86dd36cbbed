// Package geofilter turns raw geometry-bearing store rows into filtered
// GeoJSON features. Filtering is a pure function per call; the engine holds
// no state.
package geofilter

import (
	"encoding/json"
	"time"

	"github.com/ecovector/mosquito-atlas/internal/core/model"
	"github.com/ecovector/mosquito-atlas/internal/core/observability"
	"github.com/ecovector/mosquito-atlas/internal/docstore"
)

// Predicates are optional and combined with logical AND.
type Predicates struct {
	// Species holds exact scientific names in the store's canonical
	// capitalization. Empty means no species filter.
	Species []string

	// BBox passes features whose representative point lies inside,
	// edges included.
	BBox *model.BBox

	// Dates passes features whose observed_at falls inside the closed
	// range. Rows without a parsable date are excluded only while the
	// filter is active.
	Dates model.DateRange
}

// Filter applies the predicates to the raw rows and returns the surviving
// features in input order. Rows that fail to deserialize are dropped, never
// raised: the read path favors serving a partial layer over failing the map.
func Filter(table string, rows []docstore.Row, p Predicates) []model.GeoFeature {
	speciesSet := make(map[string]struct{}, len(p.Species))
	for _, s := range p.Species {
		speciesSet[s] = struct{}{}
	}

	out := make([]model.GeoFeature, 0, len(rows))
	for _, row := range rows {
		feat, ok := decodeRow(row)
		if !ok {
			observability.IncRowDropped(table, "malformed")
			continue
		}
		if !matchSpecies(feat, speciesSet) {
			continue
		}
		if !matchBBox(feat, p.BBox) {
			continue
		}
		if !matchDates(feat, p.Dates) {
			continue
		}
		out = append(out, feat)
	}
	return out
}

// decodeRow builds a GeoFeature from an untyped row. The geometry may arrive
// as a serialized string or an already-decoded object.
func decodeRow(row docstore.Row) (model.GeoFeature, bool) {
	var geom model.Geometry
	switch g := row["geometry"].(type) {
	case string:
		if err := json.Unmarshal([]byte(g), &geom); err != nil {
			return model.GeoFeature{}, false
		}
	case map[string]any:
		raw, err := json.Marshal(g)
		if err != nil {
			return model.GeoFeature{}, false
		}
		if err := json.Unmarshal(raw, &geom); err != nil {
			return model.GeoFeature{}, false
		}
	default:
		return model.GeoFeature{}, false
	}
	if geom.Type == "" || len(geom.Coordinates) == 0 {
		return model.GeoFeature{}, false
	}

	props, _ := row["properties"].(map[string]any)
	if props == nil {
		props = map[string]any{}
	}

	id, _ := row["id"].(string)
	return model.GeoFeature{
		Type:       "Feature",
		ID:         id,
		Properties: props,
		Geometry:   geom,
	}, true
}

func matchSpecies(f model.GeoFeature, set map[string]struct{}) bool {
	if len(set) == 0 {
		return true
	}
	species, ok := f.Properties["species"].(string)
	if !ok {
		return false
	}
	_, ok = set[species]
	return ok
}

func matchBBox(f model.GeoFeature, bbox *model.BBox) bool {
	if bbox == nil {
		return true
	}
	lon, lat, ok := f.Geometry.Point()
	if !ok {
		return false
	}
	return bbox.Contains(lon, lat)
}

func matchDates(f model.GeoFeature, r model.DateRange) bool {
	if r.IsZero() {
		return true
	}
	raw, ok := f.Properties["observed_at"].(string)
	if !ok {
		return false
	}
	d, err := time.Parse(model.DateLayout, raw)
	if err != nil {
		return false
	}
	return r.Contains(d)
}
