// Package observations creates and lists point observations against the
// document store. It owns the row shape: no raw store map leaves this
// package.
package observations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/ecovector/mosquito-atlas/internal/core/model"
	"github.com/ecovector/mosquito-atlas/internal/core/observability"
	"github.com/ecovector/mosquito-atlas/internal/docstore"
)

// TableName is the backing table for observation rows.
const TableName = "observations"

// ErrStorageWrite marks a failed observation write. Write failures always
// propagate; a silently dropped citizen-science record is unacceptable.
var ErrStorageWrite = errors.New("observations: storage write failed")

type Repository struct {
	table       docstore.Table
	anonymousID string
	logger      *slog.Logger
}

// New builds a repository over the store. anonymousID is the sentinel user
// id meaning "no authenticated user"; List treats it as absent rather than
// as a literal filter value.
func New(store docstore.Store, anonymousID string, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		table:       store.Table(TableName),
		anonymousID: anonymousID,
		logger:      logger,
	}
}

// Create writes one observation row and returns the logical observation,
// with structured metadata and data source normalized to serialized form.
// The store is not consulted for defaults; all defaulting happens upstream.
func (r *Repository) Create(ctx context.Context, obs model.Observation) (model.Observation, error) {
	if obs.ID == "" {
		obs.ID = uuid.NewString()
	}
	obs.DataSource = normalizeDataSource(obs.DataSource)

	row, err := rowFromObservation(obs)
	if err != nil {
		return model.Observation{}, fmt.Errorf("%w: %w", ErrStorageWrite, err)
	}
	if err := r.table.Insert(ctx, obs.ID, row); err != nil {
		return model.Observation{}, fmt.Errorf("%w: insert %q: %w", ErrStorageWrite, obs.ID, err)
	}
	return obs, nil
}

type ListParams struct {
	UserID    string
	SpeciesID string
	Limit     int
	Offset    int
}

type ListResult struct {
	Count        int                 `json:"count"`
	Observations []model.Observation `json:"observations"`
}

// List returns the observations at positions [offset, offset+limit) of the
// insertion ordering, under the conjunction of whichever filters are
// present. Count is the total match count, not the page size; the window is
// always delegated to the store adapter, predicate or not.
func (r *Repository) List(ctx context.Context, p ListParams) (ListResult, error) {
	pred := r.predicate(p)

	count, err := r.table.Count(ctx, pred)
	if err != nil {
		return ListResult{}, fmt.Errorf("count observations: %w", err)
	}

	rows, err := r.table.Query(ctx, docstore.Query{
		Predicate: pred,
		Limit:     p.Limit,
		Offset:    p.Offset,
	})
	if err != nil {
		return ListResult{}, fmt.Errorf("list observations: %w", err)
	}

	out := make([]model.Observation, 0, len(rows))
	for _, row := range rows {
		obs, ok := observationFromRow(row)
		if !ok {
			observability.IncRowDropped(TableName, "malformed_location")
			continue
		}
		out = append(out, obs)
	}
	return ListResult{Count: count, Observations: out}, nil
}

// DistinctSpecies returns the unique scientific names across all
// observations, sorted ascending.
func (r *Repository) DistinctSpecies(ctx context.Context) ([]string, error) {
	rows, err := r.table.Query(ctx, docstore.Query{})
	if err != nil {
		return nil, fmt.Errorf("scan species: %w", err)
	}
	seen := make(map[string]struct{}, len(rows))
	var out []string
	for _, row := range rows {
		s, _ := row["species_scientific_name"].(string)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	slices.Sort(out)
	return out, nil
}

func (r *Repository) predicate(p ListParams) *docstore.Predicate {
	eq := map[string]string{}
	if p.UserID != "" && p.UserID != r.anonymousID {
		eq["user_id"] = p.UserID
	}
	if p.SpeciesID != "" {
		eq["species_scientific_name"] = p.SpeciesID
	}
	if len(eq) == 0 {
		return nil
	}
	return &docstore.Predicate{Equals: eq}
}

// rowFromObservation serializes the observation, stripping keys whose value
// is null or empty so the store never sees absent-vs-null ambiguity.
func rowFromObservation(obs model.Observation) (docstore.Row, error) {
	row := docstore.Row{
		"id":                      obs.ID,
		"species_scientific_name": obs.SpeciesScientificName,
		"count":                   obs.Count,
		"location":                []float64{obs.Location.Lat, obs.Location.Lng},
		"observed_at":             obs.ObservedAt,
	}
	putString(row, "notes", obs.Notes)
	putString(row, "user_id", obs.UserID)
	putString(row, "image_filename", obs.ImageFilename)
	putString(row, "model_id", obs.ModelID)
	if obs.LocationAccuracyM > 0 {
		row["location_accuracy_m"] = obs.LocationAccuracyM
	}
	if obs.Confidence > 0 {
		row["confidence"] = obs.Confidence
	}
	if s, ok := obs.DataSource.(string); ok && s != "" {
		row["data_source"] = s
	}
	if len(obs.Metadata) > 0 {
		body, err := json.Marshal(obs.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encode metadata: %w", err)
		}
		row["metadata"] = string(body)
	}
	return row, nil
}

func putString(row docstore.Row, field, val string) {
	if val != "" {
		row[field] = val
	}
}

// observationFromRow decodes one row. A location that is not exactly two
// coordinates drops the row; malformed metadata degrades to an empty map.
func observationFromRow(row docstore.Row) (model.Observation, bool) {
	lat, lng, ok := decodeLocation(row["location"])
	if !ok {
		return model.Observation{}, false
	}

	obs := model.Observation{
		ID:                    stringField(row, "id"),
		SpeciesScientificName: stringField(row, "species_scientific_name"),
		Count:                 intField(row, "count"),
		Location:              model.Location{Lat: lat, Lng: lng},
		ObservedAt:            stringField(row, "observed_at"),
		Notes:                 stringField(row, "notes"),
		UserID:                stringField(row, "user_id"),
		LocationAccuracyM:     intField(row, "location_accuracy_m"),
		ImageFilename:         stringField(row, "image_filename"),
		ModelID:               stringField(row, "model_id"),
	}
	if ds := stringField(row, "data_source"); ds != "" {
		obs.DataSource = ds
	}
	if c, ok := row["confidence"].(float64); ok {
		obs.Confidence = c
	}
	if raw := stringField(row, "metadata"); raw != "" {
		var md map[string]any
		if err := json.Unmarshal([]byte(raw), &md); err != nil {
			md = map[string]any{}
		}
		obs.Metadata = md
	}
	return obs, true
}

func decodeLocation(v any) (lat, lng float64, ok bool) {
	switch loc := v.(type) {
	case []float64:
		if len(loc) != 2 {
			return 0, 0, false
		}
		return loc[0], loc[1], true
	case []any:
		if len(loc) != 2 {
			return 0, 0, false
		}
		la, okLa := loc[0].(float64)
		ln, okLn := loc[1].(float64)
		if !okLa || !okLn {
			return 0, 0, false
		}
		return la, ln, true
	default:
		return 0, 0, false
	}
}

func stringField(row docstore.Row, field string) string {
	s, _ := row[field].(string)
	return s
}

func intField(row docstore.Row, field string) int {
	switch n := row[field].(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}

func normalizeDataSource(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return t
	default:
		body, err := json.Marshal(t)
		if err != nil {
			return nil
		}
		return string(body)
	}
}
