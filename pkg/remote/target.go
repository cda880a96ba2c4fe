// Package remote talks to downstream boxes: it calls them on behalf of an
// inbound request, reads back the interval reports they answer with, and
// pushes the local report to a parent.
package remote

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// ErrInvalidTarget is returned for target specifications that cannot be parsed.
var ErrInvalidTarget = errors.New("invalid remote target")

// Target is a downstream service.
type Target struct {
	// Name keys the service in objective maps and reports.
	Name string
	// URL is the base URL of the downstream box.
	URL string
	// Progress in [0,1] is how far the local execution must be before the
	// call is dispatched.
	Progress float64
}

func (t Target) String() string {
	return fmt.Sprintf("%s=%s@%s", t.Name, t.URL, strconv.FormatFloat(t.Progress, 'g', -1, 64))
}

// ParseTarget parses "name=url" or "name=url@progress".
func ParseTarget(spec string) (Target, error) {
	spec = strings.TrimSpace(spec)
	name, rest, ok := strings.Cut(spec, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" || rest == "" {
		return Target{}, fmt.Errorf("%w: %q, want name=url[@progress]", ErrInvalidTarget, spec)
	}

	t := Target{Name: name, URL: rest}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		if p, err := strconv.ParseFloat(rest[at+1:], 64); err == nil {
			if p < 0 || p > 1 {
				return Target{}, fmt.Errorf("%w: %q progress %g not in [0,1]", ErrInvalidTarget, spec, p)
			}
			t.URL, t.Progress = rest[:at], p
		}
	}

	u, err := url.Parse(t.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return Target{}, fmt.Errorf("%w: %q has no absolute URL", ErrInvalidTarget, spec)
	}
	t.URL = strings.TrimRight(t.URL, "/")
	return t, nil
}

// ParseTargets parses a comma-separated list of targets. Names must be unique.
func ParseTargets(specs string) ([]Target, error) {
	if strings.TrimSpace(specs) == "" {
		return nil, nil
	}

	var targets []Target
	seen := map[string]bool{}
	for _, spec := range strings.Split(specs, ",") {
		if strings.TrimSpace(spec) == "" {
			continue
		}
		t, err := ParseTarget(spec)
		if err != nil {
			return nil, err
		}
		if seen[t.Name] {
			return nil, fmt.Errorf("%w: duplicate name %q", ErrInvalidTarget, t.Name)
		}
		seen[t.Name] = true
		targets = append(targets, t)
	}
	return targets, nil
}

// Names returns the target names in declaration order.
func Names(targets []Target) []string {
	names := make([]string, len(targets))
	for i, t := range targets {
		names[i] = t.Name
	}
	return names
}

// Plan orders targets for dispatch: by progress, declaration order on ties.
func Plan(targets []Target) []Target {
	out := make([]Target, len(targets))
	copy(out, targets)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Progress < out[j].Progress
	})
	return out
}

// Due returns the targets of plan, from next on, whose progress threshold is
// reached at progress. plan must come from Plan.
func Due(plan []Target, next int, progress float64) []Target {
	end := next
	for end < len(plan) && plan[end].Progress <= progress {
		end++
	}
	return plan[next:end]
}
