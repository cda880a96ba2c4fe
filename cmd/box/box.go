// Package main implements the request path of a box.
//
// For every inbound request the Box:
//
//	allocate → execute locally → dispatch downstream calls by progress → record cost
//
// Downstream calls are dispatched while the local work runs, as soon as its
// progress reaches the threshold of each target. Each call carries the
// objective allotted to its target and the X-* headers of the inbound request.
// The interval report a downstream box answers with updates the allocator and
// the report store.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/HatiCode/enerbox/cmd/box/metrics"
	"github.com/HatiCode/enerbox/pkg/energy"
	"github.com/HatiCode/enerbox/pkg/httpx"
	"github.com/HatiCode/enerbox/pkg/interval"
	"github.com/HatiCode/enerbox/pkg/remote"
	"github.com/HatiCode/enerbox/pkg/storage"
)

// defaultStep is how often the local execution checks for due targets.
const defaultStep = 5 * time.Millisecond

// HandleResponse is the body answered by /handle.
type HandleResponse struct {
	Service    string            `json:"service"`
	Intervals  interval.Set      `json:"intervals"`
	Objectives energy.Objectives `json:"objectives"`
	Args       []float64         `json:"args"`
	Triggered  bool              `json:"triggered"`
	DurationMs float64           `json:"durationMs"`
}

// Box serves /handle.
type Box struct {
	awareness   *energy.Awareness
	store       storage.Store
	client      *remote.Client
	plan        []remote.Target
	cost        energy.CostModel
	callTimeout time.Duration
	step        time.Duration
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// NewBox creates a Box calling targets through client.
func NewBox(
	awareness *energy.Awareness,
	store storage.Store,
	client *remote.Client,
	targets []remote.Target,
	cost energy.CostModel,
	callTimeout time.Duration,
	logger *slog.Logger,
	metrics *metrics.Metrics,
) *Box {
	if logger == nil {
		logger = slog.Default()
	}

	return &Box{
		awareness:   awareness,
		store:       store,
		client:      client,
		plan:        remote.Plan(targets),
		cost:        cost,
		callTimeout: callTimeout,
		step:        defaultStep,
		logger:      logger,
		metrics:     metrics,
	}
}

// ServeHTTP handles one inbound request.
func (b *Box) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	objective, err := httpx.ParseObjective(r)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err)
		return
	}
	args, err := httpx.ParseArgs(r)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err)
		return
	}

	call := b.awareness.NewFunctionCall(objective, args)
	if b.metrics != nil {
		b.metrics.RecordRequest(call.Triggered)
		b.metrics.SetObjectives(call.Objectives)
	}
	b.logger.Debug("handling request",
		"objective", objective,
		"args", args,
		"resolved_args", call.Args,
		"triggered", call.Triggered,
	)

	elapsed, err := b.execute(r.Context(), call, args, httpx.ForwardedHeaders(r))
	if err != nil {
		b.logger.Warn("request aborted", "error", err)
		if b.metrics != nil {
			b.metrics.RecordError("handler", "aborted")
		}
		httpx.WriteError(w, http.StatusServiceUnavailable, err)
		return
	}

	millis := float64(elapsed) / float64(time.Millisecond)
	b.awareness.AddEnergyData(call.Args, millis)
	if b.metrics != nil {
		b.metrics.RecordLocalCost(millis)
		b.metrics.SetLocalSamples(b.awareness.SampleCount())
		b.metrics.SetReady(b.awareness.Ready())
	}

	resp := HandleResponse{
		Service:    b.awareness.Name(),
		Intervals:  b.awareness.CombineIntervals(),
		Objectives: call.Objectives,
		Args:       call.Args,
		Triggered:  call.Triggered,
		DurationMs: millis,
	}
	if err := httpx.WriteJSON(w, http.StatusOK, resp); err != nil {
		b.logger.Error("failed to write JSON response", "error", err)
	}
}

// execute runs the local work of call and dispatches the downstream calls
// when their progress threshold is reached. It returns the local elapsed time
// once every downstream call has finished.
func (b *Box) execute(ctx context.Context, call energy.Call, args []float64, headers http.Header) (time.Duration, error) {
	var g errgroup.Group
	total := b.cost.Duration(call.Args)
	start := time.Now()
	next := 0

	for {
		elapsed := time.Since(start)
		progress := 1.0
		if total > 0 && elapsed < total {
			progress = float64(elapsed) / float64(total)
		}

		due := remote.Due(b.plan, next, progress)
		for _, t := range due {
			b.dispatch(ctx, &g, t, call.Objectives, args, headers)
		}
		next += len(due)

		if elapsed >= total {
			break
		}

		select {
		case <-ctx.Done():
			_ = g.Wait()
			return 0, ctx.Err()
		case <-time.After(min(b.step, total-elapsed)):
		}
	}
	elapsed := time.Since(start)

	_ = g.Wait()
	return elapsed, nil
}

// dispatch calls target in the background. Failures are logged and counted,
// never propagated to the inbound request.
func (b *Box) dispatch(ctx context.Context, g *errgroup.Group, target remote.Target, objectives energy.Objectives, args []float64, headers http.Header) {
	objective, ok := objectives.Get(target.Name)
	if !ok {
		objective = energy.Unknown
	}

	g.Go(func() error {
		ctx, cancel := context.WithTimeout(ctx, b.callTimeout)
		defer cancel()

		start := time.Now()
		report, err := b.client.Call(ctx, target, objective, args, headers)
		if b.metrics != nil {
			b.metrics.RecordRemoteCall(target.Name, time.Since(start).Seconds(), err)
		}
		if err != nil {
			b.logger.Warn("downstream call failed", "remote", target.Name, "error", err)
			return nil
		}

		b.awareness.UpdateRemoteAt(report.Service, report.Intervals, report.ReportedAt)
		if b.store != nil {
			if err := b.store.Put(ctx, report); err != nil && !errors.Is(err, context.Canceled) {
				b.logger.Error("failed to store report", "remote", target.Name, "error", err)
				if b.metrics != nil {
					b.metrics.RecordError("store", "put_failed")
				}
			}
		}

		b.logger.Debug("downstream call complete",
			"remote", target.Name,
			"objective", objective,
			"intervals", report.Intervals.String(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil
	})
}
