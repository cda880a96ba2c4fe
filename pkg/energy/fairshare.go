package energy

import (
	"sort"

	"github.com/HatiCode/enerbox/pkg/interval"
)

// FairShare spreads objective over services whose target ranges are given.
//
// Every service first receives the lower bound of its range. What is left is
// handed out smallest span first: each service gets an equal share of the
// remainder, capped at its span, and whatever a capped service could not take
// flows back to the services after it. A negative objective, or one below
// the sum of the lower bounds, yields Unknown for every service.
func FairShare(objective float64, targets map[string]interval.Range) Objectives {
	names := make([]string, 0, len(targets))
	for name := range targets {
		names = append(names, name)
	}

	if objective < 0 {
		return defaultObjectives(names...)
	}

	sort.Slice(names, func(i, j int) bool {
		si, sj := targets[names[i]].Span(), targets[names[j]].Span()
		if si == sj {
			return names[i] < names[j]
		}
		return si < sj
	})

	remaining := objective
	for _, name := range names {
		remaining -= targets[name].Lo
	}
	if remaining < -costTolerance {
		return defaultObjectives(names...)
	}
	remaining = max(remaining, 0)

	out := make(Objectives, len(names))
	shares := len(names)
	for _, name := range names {
		r := targets[name]
		give := remaining / float64(shares)
		if give > r.Span() {
			give = r.Span()
		}
		remaining -= give
		shares--
		out[name] = r.Lo + give
	}
	return out
}
