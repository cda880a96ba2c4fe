// Package router configures the HTTP routes of a box.
//
// Routes configured:
//   - /handle?args=1,2 - execute a request (objective header optional)
//   - GET /intervals - combined interval report of this box
//   - POST /report - a downstream box pushes its report
//   - GET /objectives?objective=<x>[&fairness=true] - dry-run allocation
//   - GET /healthz - health check
//   - GET /metrics - Prometheus metrics
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HatiCode/enerbox/pkg/energy"
	"github.com/HatiCode/enerbox/pkg/httpx"
	"github.com/HatiCode/enerbox/pkg/interval"
	"github.com/HatiCode/enerbox/pkg/storage"
)

// maxReportBytes bounds the body of POST /report.
const maxReportBytes = 1 << 20

// Deps are the components the routes serve.
type Deps struct {
	Awareness *energy.Awareness
	Store     storage.Store
	// Handle serves /handle.
	Handle http.Handler
	// Metrics serves /metrics; nil uses the default Prometheus registry.
	Metrics http.Handler
	Logger  *slog.Logger
}

// IntervalsResponse is the body of GET /intervals.
type IntervalsResponse struct {
	Service    string       `json:"service"`
	Intervals  interval.Set `json:"intervals"`
	ReportedAt time.Time    `json:"reportedAt"`
}

// ObjectivesResponse is the body of GET /objectives.
type ObjectivesResponse struct {
	Objective  float64           `json:"objective"`
	Fairness   bool              `json:"fairness"`
	Ready      bool              `json:"ready"`
	Objectives energy.Objectives `json:"objectives"`
}

// SetupRoutes configures the HTTP endpoints of a box.
func SetupRoutes(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = promhttp.Handler()
	}

	mux := http.NewServeMux()

	mux.Handle("/healthz", httpx.HealthHandler(nil))
	mux.Handle("/metrics", metrics)
	if deps.Handle != nil {
		mux.Handle("/handle", deps.Handle)
	}
	mux.HandleFunc("GET /intervals", handleIntervals(deps.Awareness, logger))
	mux.HandleFunc("POST /report", handleReport(deps.Awareness, deps.Store, logger))
	mux.HandleFunc("GET /objectives", handleObjectives(deps.Awareness, logger))

	return httpx.Chain(mux, httpx.RecoveryMiddleware(logger), httpx.LoggingMiddleware(logger))
}

func handleIntervals(a *energy.Awareness, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := IntervalsResponse{
			Service:    a.Name(),
			Intervals:  a.CombineIntervals(),
			ReportedAt: time.Now().UTC(),
		}
		if err := httpx.WriteJSON(w, http.StatusOK, resp); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}

func handleReport(a *energy.Awareness, store storage.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var report storage.Report
		body := io.LimitReader(r.Body, maxReportBytes)
		if err := json.NewDecoder(body).Decode(&report); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, fmt.Errorf("invalid report: %w", err))
			return
		}
		if err := storage.ValidateService(report.Service); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, err)
			return
		}
		if _, known := a.RemoteIntervals(report.Service); !known {
			httpx.WriteErrorMessage(w, http.StatusNotFound, fmt.Sprintf("unknown remote %q", report.Service))
			return
		}

		report.ReportedAt = time.Now()
		a.UpdateRemoteAt(report.Service, report.Intervals, report.ReportedAt)

		if store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := store.Put(ctx, report); err != nil {
				logger.Error("failed to store report", "remote", report.Service, "error", err)
			}
		}

		logger.Debug("remote report received", "remote", report.Service, "intervals", report.Intervals.String())
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleObjectives(a *energy.Awareness, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := r.URL.Query().Get("objective")
		if raw == "" {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "objective parameter required")
			return
		}
		objective, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(objective) || math.IsInf(objective, 0) {
			httpx.WriteError(w, http.StatusBadRequest, fmt.Errorf("%w: objective %q is not a number", httpx.ErrBadRequest, raw))
			return
		}

		fairness := a.Config().Fairness > 0
		if v := r.URL.Query().Get("fairness"); v != "" {
			fairness, err = strconv.ParseBool(v)
			if err != nil {
				httpx.WriteError(w, http.StatusBadRequest, errors.New("fairness must be true or false"))
				return
			}
		}

		resp := ObjectivesResponse{
			Objective:  objective,
			Fairness:   fairness,
			Ready:      a.Ready(),
			Objectives: a.Objectives(objective, fairness),
		}
		if err := httpx.WriteJSON(w, http.StatusOK, resp); err != nil {
			logger.Error("failed to write JSON response", "error", err)
		}
	}
}
