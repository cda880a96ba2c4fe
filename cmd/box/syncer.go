package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/HatiCode/enerbox/cmd/box/metrics"
	"github.com/HatiCode/enerbox/pkg/energy"
	"github.com/HatiCode/enerbox/pkg/remote"
	"github.com/HatiCode/enerbox/pkg/storage"
)

// HealthService is the gRPC health service name that follows allocator readiness.
const HealthService = "enerbox.Allocator"

// StatusSetter is implemented by *health.Server.
type StatusSetter interface {
	SetServingStatus(service string, status healthpb.HealthCheckResponse_ServingStatus)
}

// Syncer keeps the remote reports of a box current between requests: it
// reloads them from the shared store, falls back to asking the downstream
// boxes, and pushes the combined report of the box to its parent.
type Syncer struct {
	awareness *energy.Awareness
	store     storage.Store
	client    *remote.Client
	targets   []remote.Target
	parentURL string
	maxAge    time.Duration
	timeout   time.Duration
	health    StatusSetter
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewSyncer creates a Syncer. Stored reports older than maxAge are refetched
// from the downstream box; zero trusts the store whatever the age. parentURL
// and health are optional.
func NewSyncer(
	awareness *energy.Awareness,
	store storage.Store,
	client *remote.Client,
	targets []remote.Target,
	parentURL string,
	maxAge, timeout time.Duration,
	health StatusSetter,
	logger *slog.Logger,
	metrics *metrics.Metrics,
) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}

	return &Syncer{
		awareness: awareness,
		store:     store,
		client:    client,
		targets:   targets,
		parentURL: parentURL,
		maxAge:    maxAge,
		timeout:   timeout,
		health:    health,
		logger:    logger,
		metrics:   metrics,
	}
}

// Run executes Tick at regular intervals.
// Blocks until context is canceled.
func (s *Syncer) Run(ctx context.Context, interval time.Duration) error {
	s.logger.Info("starting sync loop", "interval", interval, "remotes", len(s.targets))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := s.Tick(ctx); err != nil {
		s.logger.Error("initial sync tick failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sync loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				s.logger.Error("sync tick failed", "error", err)
			}
		}
	}
}

// Tick performs one sync cycle.
// Only a failed push to the parent is returned; remote failures are logged.
func (s *Syncer) Tick(ctx context.Context) error {
	start := time.Now()
	refreshed := 0
	for _, t := range s.targets {
		if s.refresh(ctx, t) {
			refreshed++
		}
	}

	ready := s.awareness.Ready()
	if s.health != nil {
		status := healthpb.HealthCheckResponse_NOT_SERVING
		if ready {
			status = healthpb.HealthCheckResponse_SERVING
		}
		s.health.SetServingStatus(HealthService, status)
	}
	if s.metrics != nil {
		s.metrics.SetReady(ready)
		s.metrics.SetLocalSamples(s.awareness.SampleCount())
	}

	combined := s.awareness.CombineIntervals()
	pushed := false
	if s.parentURL != "" && !combined.IsEmpty() {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		report := storage.Report{Service: s.awareness.Name(), Intervals: combined, ReportedAt: time.Now().UTC()}
		if err := s.client.Push(ctx, s.parentURL, report); err != nil {
			if s.metrics != nil {
				s.metrics.RecordError("sync", "push_failed")
			}
			return fmt.Errorf("push to %s: %w", s.parentURL, err)
		}
		pushed = true
	}

	s.logger.Debug("sync tick complete",
		"refreshed", refreshed,
		"ready", ready,
		"pushed", pushed,
		"intervals", combined.String(),
		"total_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// refresh loads the latest report of t, from the store when it holds a fresh
// one, from the downstream box otherwise.
func (s *Syncer) refresh(ctx context.Context, t remote.Target) bool {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if s.store != nil {
		report, found, err := s.store.GetLatest(ctx, t.Name)
		if err != nil {
			s.logger.Warn("failed to load report", "remote", t.Name, "error", err)
			if s.metrics != nil {
				s.metrics.RecordError("store", "get_failed")
			}
		}
		if found && (s.maxAge <= 0 || time.Since(report.ReportedAt) <= s.maxAge) {
			s.awareness.UpdateRemoteAt(t.Name, report.Intervals, report.ReportedAt)
			return true
		}
	}

	report, err := s.client.Fetch(ctx, t)
	if err != nil {
		s.logger.Warn("failed to fetch report", "remote", t.Name, "error", err)
		if s.metrics != nil {
			s.metrics.RecordError("sync", "fetch_failed")
		}
		return false
	}

	s.awareness.UpdateRemoteAt(t.Name, report.Intervals, report.ReportedAt)
	if s.store != nil {
		if err := s.store.Put(ctx, report); err != nil {
			s.logger.Warn("failed to store report", "remote", t.Name, "error", err)
		}
	}
	return true
}
