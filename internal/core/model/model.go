// Package model holds the typed entities shared across the service. Raw store
// rows are decoded into these at the repository boundary and never passed on.
package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is the calendar-date wire format for observed_at and range filters.
const DateLayout = "2006-01-02"

// BBox is an axis-aligned rectangle in lon/lat order. All four edges are
// inclusive when used as a filter.
type BBox struct {
	MinLon, MinLat float64
	MaxLon, MaxLat float64
}

func (b BBox) String() string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", b.MinLon, b.MinLat, b.MaxLon, b.MaxLat)
}

// Contains reports whether the point lies inside the box, edges included.
func (b BBox) Contains(lon, lat float64) bool {
	return lon >= b.MinLon && lon <= b.MaxLon && lat >= b.MinLat && lat <= b.MaxLat
}

// DateRange is a closed calendar-date interval. A zero bound means unbounded
// on that side.
type DateRange struct {
	Start time.Time
	End   time.Time
}

func (r DateRange) IsZero() bool { return r.Start.IsZero() && r.End.IsZero() }

// Contains reports whether d falls inside the range, bounds included.
func (r DateRange) Contains(d time.Time) bool {
	if !r.Start.IsZero() && d.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && d.After(r.End) {
		return false
	}
	return true
}

// Geometry is the GeoJSON geometry member. Coordinates stay raw so non-point
// shapes survive a pass-through unmodified.
type Geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// Point returns the lon/lat pair for Point geometries.
func (g Geometry) Point() (lon, lat float64, ok bool) {
	if g.Type != "Point" {
		return 0, 0, false
	}
	var coords []float64
	if err := json.Unmarshal(g.Coordinates, &coords); err != nil || len(coords) < 2 {
		return 0, 0, false
	}
	return coords[0], coords[1], true
}

// GeoFeature is one GeoJSON feature, built per request from a store row.
type GeoFeature struct {
	Type       string         `json:"type"`
	ID         string         `json:"id,omitempty"`
	Properties map[string]any `json:"properties"`
	Geometry   Geometry       `json:"geometry"`
}

// FeatureCollection is the wire shape served to mapping clients.
type FeatureCollection struct {
	Type     string       `json:"type"`
	Features []GeoFeature `json:"features"`
}

func NewFeatureCollection(feats []GeoFeature) FeatureCollection {
	if feats == nil {
		feats = []GeoFeature{}
	}
	return FeatureCollection{Type: "FeatureCollection", Features: feats}
}

// Location is a WGS84 point with lat in [-90,90] and lng in [-180,180].
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (l Location) Valid() bool {
	return l.Lat >= -90 && l.Lat <= 90 && l.Lng >= -180 && l.Lng <= 180
}

// Observation is a single field record of mosquito activity.
type Observation struct {
	ID                    string         `json:"id"`
	SpeciesScientificName string         `json:"species_scientific_name"`
	Count                 int            `json:"count"`
	Location              Location       `json:"location"`
	ObservedAt            string         `json:"observed_at"`
	Notes                 string         `json:"notes,omitempty"`
	UserID                string         `json:"user_id,omitempty"`
	LocationAccuracyM     int            `json:"location_accuracy_m,omitempty"`
	// DataSource accepts either a plain identifier or a structured object;
	// the repository serializes structured values before they reach the
	// store.
	DataSource            any            `json:"data_source,omitempty"`
	ImageFilename         string         `json:"image_filename,omitempty"`
	ModelID               string         `json:"model_id,omitempty"`
	Confidence            float64        `json:"confidence,omitempty"`
	Metadata              map[string]any `json:"metadata,omitempty"`
}

// Option is a localized id/name pair for filter dropdowns.
type Option struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FilterOptions is the per-request options payload. Regions and data sources
// are ordered by localized name, not by id.
type FilterOptions struct {
	Species     []string `json:"species"`
	Regions     []Option `json:"regions"`
	DataSources []Option `json:"data_sources"`
}
