package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/phenomenon0/capper-engine/pkg/orchestrator"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type capperView struct {
	Name          string  `json:"name"`
	MinConfidence float64 `json:"min_confidence"`
	DefaultUnits  int     `json:"default_units"`
	Consensus     bool    `json:"consensus"`
}

type statusView struct {
	Runner    orchestrator.RunnerStatus `json:"runner"`
	Cappers   []string                  `json:"cappers"`
	Batches   []batchSummary            `json:"batches"`
	WSClients int                       `json:"ws_clients"`
	Store     bool                      `json:"store"`
	Publisher bool                      `json:"publisher"`
}

func (d *daemon) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: d.cfg.HTTP.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/ws", d.hub.ServeWS)
	r.Handle("/metrics", promhttp.HandlerFor(d.metrics.Registry(), promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(15 * time.Second))
		r.Get("/health", d.handleHealth)
		r.Get("/status", d.handleStatus)
		r.Get("/cappers", d.handleCappers)
		r.Post("/reload", d.handleReload)
		r.Get("/picks", d.handlePicks)
		r.Get("/passes", d.handlePasses)
	})
	return r
}

func (d *daemon) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (d *daemon) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := statusView{
		Runner:    d.runner.Status(),
		Batches:   d.summaries(),
		WSClients: d.hub.ClientCount(),
		Store:     d.store != nil,
		Publisher: d.publisher != nil,
	}
	cfgs, err := d.registry.All(r.Context())
	if err != nil {
		d.log.Warn("capper registry load failed", zap.Error(err))
	}
	for _, c := range cfgs {
		status.Cappers = append(status.Cappers, c.Name)
	}
	writeJSON(w, http.StatusOK, status)
}

func (d *daemon) handleCappers(w http.ResponseWriter, r *http.Request) {
	cfgs, err := d.registry.All(r.Context())
	if err != nil && len(cfgs) == 0 {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	out := make([]capperView, 0, len(cfgs))
	for _, c := range cfgs {
		out = append(out, capperView{
			Name:          c.Name,
			MinConfidence: c.MinConfidence,
			DefaultUnits:  c.DefaultUnits,
			Consensus:     c.Disagreement != nil,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (d *daemon) handleReload(w http.ResponseWriter, r *http.Request) {
	d.registry.Invalidate()
	if err := d.registry.EnsureLoaded(r.Context()); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	cfgs, _ := d.registry.All(r.Context())
	d.log.Info("cappers reloaded via API", zap.Int("count", len(cfgs)))
	writeJSON(w, http.StatusOK, map[string]int{"cappers": len(cfgs)})
}

func (d *daemon) handlePicks(w http.ResponseWriter, r *http.Request) {
	limit, err := listLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if d.store != nil {
		picks, err := d.store.RecentPicks(r.Context(), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, picks)
		return
	}
	writeJSON(w, http.StatusOK, d.recent.Picks(limit))
}

func (d *daemon) handlePasses(w http.ResponseWriter, r *http.Request) {
	limit, err := listLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if d.store != nil {
		passes, err := d.store.RecentPasses(r.Context(), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, passes)
		return
	}
	writeJSON(w, http.StatusOK, d.recent.Passes(limit))
}

func listLimit(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultListLimit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, errBadLimit
	}
	return min(n, maxListLimit), nil
}

var errBadLimit = errors.New("limit must be a positive integer")

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
