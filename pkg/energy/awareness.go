package energy

import (
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/HatiCode/enerbox/pkg/interval"
	"github.com/HatiCode/enerbox/pkg/mckp"
)

// costTolerance absorbs floating-point noise when checking that the chosen
// lower bounds fit the objective.
const costTolerance = 1e-9

// Call is the outcome of NewFunctionCall.
type Call struct {
	Objectives Objectives
	// Args are the arguments the local execution should use: either the
	// caller's arguments or those of the sample closest to the local objective.
	Args []float64
	// Triggered is true when the frequency gate let the allocation run.
	Triggered bool
}

type remote struct {
	intervals  interval.Set
	reportedAt time.Time
}

// Awareness owns the energy state of one service and computes allocations.
// It is safe for concurrent use.
type Awareness struct {
	mu      sync.Mutex
	cfg     Config
	local   *LocalData
	filter  *ArgsFilter
	order   []string
	remotes map[string]remote
	logger  *slog.Logger
	now     func() time.Time
}

// New creates an Awareness for the service named in cfg. The logger is used
// as given: callers attach the service attribute themselves.
func New(cfg Config, logger *slog.Logger) (*Awareness, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	return &Awareness{
		cfg:     cfg,
		local:   NewLocalData(cfg.Capacity, cfg.MergeGap),
		filter:  NewArgsFilter(cfg.Threshold, cfg.FilterWidth, cfg.FilterDepth),
		remotes: make(map[string]remote),
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Name returns the local service name.
func (a *Awareness) Name() string {
	return a.cfg.Name
}

// Config returns the effective configuration, defaults applied.
func (a *Awareness) Config() Config {
	return a.cfg
}

// AddEnergyData records the observed cost of a local execution.
func (a *Awareness) AddEnergyData(args []float64, cost float64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.local.Add(args, cost)
}

// LocalIntervals returns the costs achievable by the local service alone.
func (a *Awareness) LocalIntervals() interval.Set {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.local.Intervals()
}

// SampleCount returns the number of local samples held.
func (a *Awareness) SampleCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.local.Len()
}

// SeenCount returns the estimated number of times args went through NewFunctionCall.
func (a *Awareness) SeenCount(args []float64) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.filter.Count(args)
}

// UpdateRemotes declares downstream services. Names already known keep their data.
func (a *Awareness) UpdateRemotes(names []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, name := range names {
		if _, known := a.remotes[name]; known || name == a.cfg.Name {
			continue
		}
		a.order = append(a.order, name)
		a.remotes[name] = remote{}
	}
}

// UpdateRemote stores the interval set reported by a downstream service,
// replacing the previous one.
func (a *Awareness) UpdateRemote(name string, intervals interval.Set) {
	a.UpdateRemoteAt(name, intervals, a.now())
}

// UpdateRemoteAt is UpdateRemote with an explicit report time, for reports
// replayed from storage.
func (a *Awareness) UpdateRemoteAt(name string, intervals interval.Set, reportedAt time.Time) {
	if name == a.cfg.Name {
		a.logger.Warn("ignoring remote report carrying the local service name")
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, known := a.remotes[name]; !known {
		a.order = append(a.order, name)
	}
	a.remotes[name] = remote{intervals: intervals, reportedAt: reportedAt}
}

// Remotes returns the downstream service names in registration order.
func (a *Awareness) Remotes() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.order))
	copy(out, a.order)
	return out
}

// RemoteIntervals returns the usable interval set of a downstream service.
// Stale reports read as empty.
func (a *Awareness) RemoteIntervals(name string) (interval.Set, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, known := a.remotes[name]; !known {
		return interval.Set{}, false
	}
	return a.remoteIntervals(name), true
}

func (a *Awareness) remoteIntervals(name string) interval.Set {
	r := a.remotes[name]
	if a.cfg.StaleAfter > 0 && !r.reportedAt.IsZero() && a.now().Sub(r.reportedAt) > a.cfg.StaleAfter {
		return interval.Set{}
	}
	return r.intervals
}

// CombineIntervals folds the local set with every remote set, in registration
// order. The result is what this service reports to its caller.
func (a *Awareness) CombineIntervals() interval.Set {
	a.mu.Lock()
	defer a.mu.Unlock()

	result := a.local.Intervals()
	for _, name := range a.order {
		result = interval.Combine(result, a.remoteIntervals(name))
	}
	return result
}

// Ready reports whether the local service and every remote have data, that is
// whether Objectives can produce an allocation.
func (a *Awareness) Ready() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.groups()
	return ok
}

// Objectives allocates objective among the local service and its remotes.
//
// Every service gets Unknown when the objective is negative, when a service
// has no data, or when the cheapest option of every service together already
// exceeds the objective.
func (a *Awareness) Objectives(objective float64, fairness bool) Objectives {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.objectives(objective, fairness)
}

// ObjectivesFromIntervals distributes objective over fixed per-service ranges.
func (a *Awareness) ObjectivesFromIntervals(objective float64, targets map[string]interval.Range) Objectives {
	return FairShare(objective, targets)
}

// NewFunctionCall handles one inbound request carrying objective and args.
//
// With a negative objective no optimization happens. Otherwise args go
// through the frequency gate; only once they were seen Threshold times is the
// allocation computed and the local arguments rewritten to the sample whose
// cost is closest to the local objective.
func (a *Awareness) NewFunctionCall(objective float64, args []float64) Call {
	a.mu.Lock()
	defer a.mu.Unlock()

	fairness := a.cfg.Fairness > 0
	if objective < 0 {
		return Call{Objectives: a.objectives(objective, fairness), Args: cloneArgs(args)}
	}

	a.filter.TryArgs(args)
	if !a.filter.IsTriedEnough(args) {
		return Call{Objectives: a.defaults(), Args: cloneArgs(args)}
	}

	objectives := a.objectives(objective, fairness)
	resolved := cloneArgs(args)
	if target, ok := objectives.Get(a.cfg.Name); ok {
		if closest, found := a.local.Closest(target); found {
			resolved = closest
		}
	}

	return Call{Objectives: objectives, Args: resolved, Triggered: true}
}

// SolveObjective returns the recorded arguments whose cost is closest to
// target. ok is false when target is Unknown or no sample exists.
func (a *Awareness) SolveObjective(target float64) ([]float64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.local.Closest(target)
}

type group struct {
	name string
	set  interval.Set
}

// groups returns the local set followed by every remote set. ok is false if
// any of them is empty.
func (a *Awareness) groups() ([]group, bool) {
	groups := make([]group, 0, len(a.order)+1)
	groups = append(groups, group{name: a.cfg.Name, set: a.local.Intervals()})
	for _, name := range a.order {
		groups = append(groups, group{name: name, set: a.remoteIntervals(name)})
	}
	for _, g := range groups {
		if g.set.IsEmpty() {
			return groups, false
		}
	}
	return groups, true
}

func (a *Awareness) defaults() Objectives {
	return defaultObjectives(append([]string{a.cfg.Name}, a.order...)...)
}

// source ties a knapsack element back to the range it came from.
type source struct {
	group int
	cost  float64
}

func (a *Awareness) objectives(objective float64, fairness bool) Objectives {
	if objective < 0 {
		return a.defaults()
	}

	groups, ok := a.groups()
	if !ok {
		a.logger.Debug("not enough data to allocate", "objective", objective)
		return a.defaults()
	}

	// Rounding down keeps exact fits but may admit a choice that only fits
	// after rounding; rounding up only admits real fits but may miss exact
	// ones. The cheapest combination is the last resort.
	targets, ok := a.solve(objective, groups, fairness, false)
	if !ok {
		a.logger.Debug("retrying with costs rounded up", "objective", objective)
		targets, ok = a.solve(objective, groups, fairness, true)
	}
	if !ok {
		targets, ok = cheapest(objective, groups)
	}
	if !ok {
		a.logger.Debug("objective cannot satisfy every service", "objective", objective)
		return a.defaults()
	}

	result := FairShare(objective, targets)
	a.logger.Debug("allocated objective", "objective", objective, "fairness", fairness, "objectives", result)
	return result
}

// solve picks one range per group with the knapsack and checks that the real
// lower bounds of the choice fit the objective.
func (a *Awareness) solve(objective float64, groups []group, fairness, roundUp bool) (map[string]interval.Range, bool) {
	elements, sources := a.elements(objective, groups, fairness, roundUp)
	solver, err := mckp.New(a.cfg.Scale, elements)
	if err != nil {
		a.logger.Error("failed to build knapsack", "error", err)
		return nil, false
	}

	chosen, err := solver.Solve(a.cfg.Scale)
	if err != nil {
		if !errors.Is(err, mckp.ErrNoSolution) {
			a.logger.Error("failed to solve knapsack", "error", err)
		}
		return nil, false
	}

	targets := make(map[string]interval.Range, len(chosen))
	minimum := 0.0
	for _, idx := range chosen {
		src := sources[idx]
		g := groups[src.group]
		r, err := interval.NearestRange(g.set, src.cost)
		if err != nil {
			return nil, false
		}
		targets[g.name] = r
		minimum += r.Lo
	}
	if minimum > objective+costTolerance {
		a.logger.Debug("scaled choice exceeds objective", "objective", objective, "minimum", minimum, "roundUp", roundUp)
		return nil, false
	}
	return targets, true
}

// cheapest picks the lowest range of every group. ok is false when even
// that combination exceeds the objective.
func cheapest(objective float64, groups []group) (map[string]interval.Range, bool) {
	targets := make(map[string]interval.Range, len(groups))
	minimum := 0.0
	for _, g := range groups {
		r := g.set.Ranges()[0]
		targets[g.name] = r
		minimum += r.Lo
	}
	if minimum > objective+costTolerance {
		return nil, false
	}
	return targets, true
}

// elements turns every distinct lower bound of every group into a knapsack
// element, with costs scaled so that the objective maps onto cfg.Scale.
func (a *Awareness) elements(objective float64, groups []group, fairness, roundUp bool) ([]mckp.Element, []source) {
	scale := a.cfg.Scale
	equalShare := float64(scale) / float64(len(groups))
	weight := a.cfg.Fairness
	if !fairness {
		weight = 0
	}

	var elements []mckp.Element
	var sources []source
	for gi, g := range groups {
		for _, r := range g.set.Ranges() {
			w := scaleCost(r.Lo, objective, scale, roundUp)
			profit := w
			if weight > 0 {
				profit -= int(math.Round(weight * math.Abs(float64(w)-equalShare)))
			}
			elements = append(elements, mckp.Element{Weight: w, Profit: profit, Group: gi})
			sources = append(sources, source{group: gi, cost: r.Lo})
		}
	}
	return elements, sources
}

// scaleCost maps cost onto the integer budget scale, objective mapping to scale.
// Costs beyond the objective map to scale+1 so they can never be chosen.
func scaleCost(cost, objective float64, scale int, roundUp bool) int {
	if objective == 0 {
		if cost == 0 {
			return 0
		}
		return scale + 1
	}
	scaled := cost * float64(scale) / objective
	w := math.Floor(scaled + costTolerance)
	if roundUp {
		w = math.Ceil(scaled - costTolerance)
	}
	if w > float64(scale) {
		return scale + 1
	}
	if w < 0 {
		return 0
	}
	return int(w)
}
