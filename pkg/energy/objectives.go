package energy

import "sort"

// Unknown is the objective given to a service when no allocation could be made.
// Services receiving it run with their own defaults.
const Unknown = -1.0

// Objectives maps service names to their allocated budget, or Unknown.
type Objectives map[string]float64

// defaultObjectives gives Unknown to every named service.
func defaultObjectives(names ...string) Objectives {
	out := make(Objectives, len(names))
	for _, name := range names {
		out[name] = Unknown
	}
	return out
}

// Get returns the budget allocated to name. ok is false when the service is
// absent or its objective is Unknown.
func (o Objectives) Get(name string) (float64, bool) {
	v, found := o[name]
	if !found || v < 0 {
		return 0, false
	}
	return v, true
}

// AllUnknown reports whether no service received a budget.
func (o Objectives) AllUnknown() bool {
	for _, v := range o {
		if v >= 0 {
			return false
		}
	}
	return true
}

// Names returns the service names in lexical order.
func (o Objectives) Names() []string {
	names := make([]string, 0, len(o))
	for name := range o {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
