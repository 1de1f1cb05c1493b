package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	domain "github.com/malistore/api/internal/domain"
)

const defaultDependencyTimeout = 1500 * time.Millisecond

// DependencyCheck describes a dependency probe executed during readiness checks.
type DependencyCheck struct {
	Name    string
	Timeout time.Duration
	Check   func(context.Context) error
	// Optional failures degrade the report instead of failing it.
	Optional bool
}

// BuildInfo captures runtime metadata exposed via health endpoints.
type BuildInfo struct {
	Version     string
	Environment string
	StartedAt   time.Time
}

// HealthService reports readiness of the storage and messaging dependencies.
type HealthService interface {
	Report(ctx context.Context) (domain.HealthReport, error)
}

// HealthServiceDeps bundles the probes evaluated on every report.
type HealthServiceDeps struct {
	Checks         []DependencyCheck
	DefaultTimeout time.Duration
	Build          BuildInfo
	Clock          func() time.Time
}

type healthService struct {
	checks         []DependencyCheck
	defaultTimeout time.Duration
	build          BuildInfo
	clock          func() time.Time
}

// NewHealthService validates the probe set and constructs a HealthService.
func NewHealthService(deps HealthServiceDeps) (HealthService, error) {
	if len(deps.Checks) == 0 {
		return nil, errors.New("health service: at least one dependency check is required")
	}
	for _, check := range deps.Checks {
		if strings.TrimSpace(check.Name) == "" {
			return nil, errors.New("health service: dependency check missing name")
		}
		if check.Check == nil {
			return nil, fmt.Errorf("health service: dependency %s missing check function", check.Name)
		}
	}
	timeout := deps.DefaultTimeout
	if timeout <= 0 {
		timeout = defaultDependencyTimeout
	}
	clock := utcClock(deps.Clock)
	build := deps.Build
	if build.StartedAt.IsZero() {
		build.StartedAt = clock()
	}
	checks := make([]DependencyCheck, len(deps.Checks))
	copy(checks, deps.Checks)
	return &healthService{
		checks:         checks,
		defaultTimeout: timeout,
		build:          build,
		clock:          clock,
	}, nil
}

// Report runs every probe concurrently, each bounded by its own timeout.
func (s *healthService) Report(ctx context.Context) (domain.HealthReport, error) {
	results := make(map[string]domain.HealthCheck, len(s.checks))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	wg.Add(len(s.checks))
	for _, check := range s.checks {
		go func() {
			defer wg.Done()
			result := s.probe(ctx, check)
			mu.Lock()
			results[check.Name] = result
			mu.Unlock()
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return domain.HealthReport{}, err
	}

	status := domain.HealthStatusOK
	for _, result := range results {
		if result.Status == domain.HealthStatusError {
			status = domain.HealthStatusError
			break
		}
		if result.Status == domain.HealthStatusDegraded {
			status = domain.HealthStatusDegraded
		}
	}

	now := s.clock()
	return domain.HealthReport{
		Status:      status,
		Checks:      results,
		Version:     s.build.Version,
		Environment: s.build.Environment,
		Uptime:      now.Sub(s.build.StartedAt),
		GeneratedAt: now,
	}, nil
}

func (s *healthService) probe(ctx context.Context, check DependencyCheck) domain.HealthCheck {
	timeout := check.Timeout
	if timeout <= 0 {
		timeout = s.defaultTimeout
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := s.clock()
	err := check.Check(checkCtx)
	end := s.clock()

	result := domain.HealthCheck{
		Status:    domain.HealthStatusOK,
		Detail:    "ok",
		Latency:   end.Sub(start),
		CheckedAt: end,
	}
	switch {
	case err == nil && checkCtx.Err() == nil:
	case errors.Is(err, context.DeadlineExceeded) || (err == nil && checkCtx.Err() != nil):
		result.Status = domain.HealthStatusError
		result.Detail = "timeout"
	case errors.Is(err, context.Canceled):
		result.Status = domain.HealthStatusError
		result.Detail = "cancelled"
	default:
		result.Status = domain.HealthStatusError
		result.Detail = err.Error()
	}
	if result.Status == domain.HealthStatusError && check.Optional {
		result.Status = domain.HealthStatusDegraded
	}
	return result
}
