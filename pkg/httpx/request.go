package httpx

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
)

// ObjectiveHeader carries the energy budget allotted to the receiving service.
const ObjectiveHeader = "Objective"

// ErrBadRequest marks request values that cannot be parsed.
var ErrBadRequest = errors.New("bad request")

// ParseObjective reads the objective header. A missing header, or a negative
// value, means the caller has no budget for this service and yields -1.
func ParseObjective(r *http.Request) (float64, error) {
	raw := strings.TrimSpace(r.Header.Get(ObjectiveHeader))
	if raw == "" {
		return -1, nil
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: objective %q is not a number", ErrBadRequest, raw)
	}
	if v < 0 {
		return -1, nil
	}
	return v, nil
}

// ParseArgs reads the comma-separated argument vector of the "args" query or
// form value. An absent value is the empty vector.
func ParseArgs(r *http.Request) ([]float64, error) {
	return ParseFloats(r.FormValue("args"))
}

// ParseFloats parses "1,2.5,3". Blank input yields an empty slice.
func ParseFloats(raw string) ([]float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []float64{}, nil
	}

	parts := strings.Split(raw, ",")
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: argument %d %q is not a number", ErrBadRequest, i, p)
		}
		out[i] = v
	}
	return out, nil
}

// FormatFloats is the inverse of ParseFloats.
func FormatFloats(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

// ForwardedHeaders returns the X-* headers of r, which are propagated to
// downstream calls.
func ForwardedHeaders(r *http.Request) http.Header {
	out := http.Header{}
	for name, values := range r.Header {
		if strings.HasPrefix(name, "X-") {
			out[name] = append([]string(nil), values...)
		}
	}
	return out
}
