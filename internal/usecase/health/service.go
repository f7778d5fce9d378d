package health

import (
	"context"
	"sort"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates an auxiliary check failed.
	Degraded Status = "degraded"
	// Unhealthy indicates the backend is unreachable.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// BackendCheck is the name of the backend check in a Report.
const BackendCheck = "backend"

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

type namedChecker struct {
	name    string
	checker Checker
}

// Service coordinates health checks.
type Service struct {
	backend Pinger
	extra   []namedChecker
}

// New creates a Service for the given backend.
func New(backend Pinger) *Service {
	return &Service{backend: backend}
}

// WithCheck adds an auxiliary check reported under name.
func (s *Service) WithCheck(name string, c Checker) *Service {
	s.extra = append(s.extra, namedChecker{name: name, checker: c})
	sort.Slice(s.extra, func(i, j int) bool { return s.extra[i].name < s.extra[j].name })
	return s
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult, 1+len(s.extra))
	status := Healthy

	if err := s.backend.Ping(ctx); err != nil {
		checks[BackendCheck] = CheckError
		status = Unhealthy
	} else {
		checks[BackendCheck] = CheckOK
	}

	for _, c := range s.extra {
		if err := c.checker.HealthCheck(ctx); err != nil {
			checks[c.name] = CheckError
			if status == Healthy {
				status = Degraded
			}
			continue
		}
		checks[c.name] = CheckOK
	}

	return Report{Status: status, Checks: checks}
}
