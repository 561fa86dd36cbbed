// Package router validates request input and dispatches to the catalog
// services. Everything past this boundary assumes pre-validated bbox and
// date strings.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ecovector/mosquito-atlas/internal/core/model"
	"github.com/ecovector/mosquito-atlas/internal/core/observability"
	"github.com/ecovector/mosquito-atlas/internal/geolayer"
	"github.com/ecovector/mosquito-atlas/internal/observations"
)

// Collaborator seams, satisfied by filteropts.Composer, geolayer.Service and
// observations.Repository.
type (
	OptionsComposer interface {
		Options(ctx context.Context, lang string, species []string) model.FilterOptions
	}
	SpeciesLister interface {
		DistinctSpecies(ctx context.Context) ([]string, error)
	}
	LayerServer interface {
		Layer(ctx context.Context, q geolayer.Query) ([]byte, error)
	}
	ObservationStore interface {
		Create(ctx context.Context, obs model.Observation) (model.Observation, error)
		List(ctx context.Context, p observations.ListParams) (observations.ListResult, error)
	}
)

type Deps struct {
	Logger      *slog.Logger
	Options     OptionsComposer
	Species     SpeciesLister
	Layers      LayerServer
	Obs         ObservationStore
	DefaultLang string
	AnonymousID string
}

const (
	defaultListLimit = 20
	maxListLimit     = 500
)

func HandleFilterOptions(d Deps) http.HandlerFunc {
	return instrumented("/api/v1/filter-options", func(w http.ResponseWriter, r *http.Request) {
		lang := strings.TrimSpace(r.URL.Query().Get("lang"))
		if lang == "" {
			lang = d.DefaultLang
		}

		species, err := d.Species.DistinctSpecies(r.Context())
		if err != nil {
			// read path: a failed species scan empties one list, never
			// the response
			d.Logger.WarnContext(r.Context(), "species list unavailable", "err", err)
			species = nil
		}

		writeJSON(w, http.StatusOK, d.Options.Options(r.Context(), lang, species))
	})
}

func HandleGeoLayer(d Deps) http.HandlerFunc {
	return instrumented("/api/v1/layers", func(w http.ResponseWriter, r *http.Request) {
		q, err := ParseLayerQuery(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		body, err := d.Layers.Layer(r.Context(), q)
		if err != nil {
			if errors.Is(err, geolayer.ErrUnknownLayer) {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			d.Logger.ErrorContext(r.Context(), "layer query failed", "layer", q.Layer, "err", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/geo+json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	})
}

func HandleCreateObservation(d Deps) http.HandlerFunc {
	return instrumented("/api/v1/observations", func(w http.ResponseWriter, r *http.Request) {
		var obs model.Observation
		dec := json.NewDecoder(r.Body)
		if err := dec.Decode(&obs); err != nil {
			http.Error(w, fmt.Sprintf("invalid observation body: %v", err), http.StatusBadRequest)
			return
		}
		if err := validateObservation(obs); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		// defaulting happens here, before the repository: the store is
		// never consulted for defaults
		if obs.UserID == "" {
			obs.UserID = d.AnonymousID
		}

		created, err := d.Obs.Create(r.Context(), obs)
		if err != nil {
			d.Logger.ErrorContext(r.Context(), "observation write failed", "err", err)
			http.Error(w, "observation could not be stored", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	})
}

func HandleListObservations(d Deps) http.HandlerFunc {
	return instrumented("/api/v1/observations", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		p := observations.ListParams{
			UserID:    strings.TrimSpace(q.Get("user_id")),
			SpeciesID: strings.TrimSpace(q.Get("species")),
			Limit:     clampInt(q.Get("limit"), defaultListLimit, maxListLimit),
			Offset:    clampInt(q.Get("offset"), 0, 1<<30),
		}

		res, err := d.Obs.List(r.Context(), p)
		if err != nil {
			// read path: a failed listing degrades to an empty page
			d.Logger.WarnContext(r.Context(), "observation listing degraded", "err", err)
			res = observations.ListResult{Observations: []model.Observation{}}
		}
		if res.Observations == nil {
			res.Observations = []model.Observation{}
		}
		writeJSON(w, http.StatusOK, res)
	})
}

// ParseLayerQuery pulls the layer request out of path and query parameters.
func ParseLayerQuery(r *http.Request) (geolayer.Query, error) {
	q := geolayer.Query{Layer: chi.URLParam(r, "layer")}
	if q.Layer == "" {
		return geolayer.Query{}, errors.New("missing layer name")
	}

	vals := r.URL.Query()
	if raw := strings.TrimSpace(vals.Get("species")); raw != "" {
		for s := range strings.SplitSeq(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				q.Species = append(q.Species, s)
			}
		}
	}

	if raw := strings.TrimSpace(vals.Get("bbox")); raw != "" {
		bb, err := ParseBBox(raw)
		if err != nil {
			return geolayer.Query{}, fmt.Errorf("invalid bbox: %w", err)
		}
		q.BBox = &bb
	}

	dates, err := ParseDateRange(vals.Get("start_date"), vals.Get("end_date"))
	if err != nil {
		return geolayer.Query{}, err
	}
	q.Dates = dates

	if raw := strings.TrimSpace(vals.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return geolayer.Query{}, fmt.Errorf("invalid limit %q", raw)
		}
		q.Limit = n
	}
	return q, nil
}

// ParseBBox parses "minLon,minLat,maxLon,maxLat".
func ParseBBox(raw string) (model.BBox, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return model.BBox{}, errors.New("expected 4 comma-separated values: minLon,minLat,maxLon,maxLat")
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return model.BBox{}, fmt.Errorf("value %d: %w", i+1, err)
		}
		vals[i] = f
	}
	bb := model.BBox{MinLon: vals[0], MinLat: vals[1], MaxLon: vals[2], MaxLat: vals[3]}

	if !(bb.MinLon >= -180 && bb.MinLon <= 180 && bb.MaxLon >= -180 && bb.MaxLon <= 180) {
		return model.BBox{}, errors.New("longitude must be in [-180,180]")
	}
	if !(bb.MinLat >= -90 && bb.MinLat <= 90 && bb.MaxLat >= -90 && bb.MaxLat <= 90) {
		return model.BBox{}, errors.New("latitude must be in [-90,90]")
	}
	if bb.MaxLon < bb.MinLon || bb.MaxLat < bb.MinLat {
		return model.BBox{}, errors.New("max coordinates must not be below min coordinates")
	}
	return bb, nil
}

// ParseDateRange parses optional YYYY-MM-DD bounds.
func ParseDateRange(start, end string) (model.DateRange, error) {
	var r model.DateRange
	var err error
	if start = strings.TrimSpace(start); start != "" {
		r.Start, err = time.Parse(model.DateLayout, start)
		if err != nil {
			return model.DateRange{}, fmt.Errorf("invalid start_date %q (want YYYY-MM-DD)", start)
		}
	}
	if end = strings.TrimSpace(end); end != "" {
		r.End, err = time.Parse(model.DateLayout, end)
		if err != nil {
			return model.DateRange{}, fmt.Errorf("invalid end_date %q (want YYYY-MM-DD)", end)
		}
	}
	if !r.Start.IsZero() && !r.End.IsZero() && r.End.Before(r.Start) {
		return model.DateRange{}, errors.New("end_date must not be before start_date")
	}
	return r, nil
}

func validateObservation(obs model.Observation) error {
	if strings.TrimSpace(obs.SpeciesScientificName) == "" {
		return errors.New("species_scientific_name is required")
	}
	if obs.Count <= 0 {
		return errors.New("count must be a positive integer")
	}
	if !obs.Location.Valid() {
		return errors.New("location out of range")
	}
	if obs.ObservedAt == "" {
		return errors.New("observed_at is required")
	}
	if _, err := time.Parse(model.DateLayout, obs.ObservedAt); err != nil {
		return fmt.Errorf("invalid observed_at %q (want YYYY-MM-DD)", obs.ObservedAt)
	}
	if obs.Confidence < 0 || obs.Confidence > 1 {
		return errors.New("confidence must be in [0,1]")
	}
	return nil
}

func clampInt(raw string, def, max int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func instrumented(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		h(sw, r)
		observability.ObserveHTTP(r.Method, route, sw.code, time.Since(start).Seconds())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
