// Package storage keeps the interval reports boxes receive from their
// downstream services, so that replicas can share them.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/HatiCode/enerbox/pkg/interval"
)

// ErrInvalidService is returned for empty or unsafe service names.
var ErrInvalidService = errors.New("invalid service name")

// Report is the last interval set a service announced to its caller.
type Report struct {
	Service    string       `json:"service"`
	Intervals  interval.Set `json:"intervals"`
	ReportedAt time.Time    `json:"reportedAt"`
}

type Store interface {
	Put(ctx context.Context, report Report) error
	GetLatest(ctx context.Context, service string) (Report, bool, error)
}

// ValidateService checks that a service name is usable as a storage key.
func ValidateService(service string) error {
	if service == "" {
		return fmt.Errorf("%w: cannot be empty", ErrInvalidService)
	}
	for _, c := range service {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') || c == '-' || c == '_' || c == '.') {
			return fmt.Errorf("%w: %q may only contain alphanumerics, dots, hyphens and underscores", ErrInvalidService, service)
		}
	}
	return nil
}
