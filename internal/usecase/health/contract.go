package health

import "context"

// Pinger checks backend availability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker is an auxiliary component check. A failing checker degrades the
// report without marking the service unhealthy.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) error

// HealthCheck calls f.
func (f CheckerFunc) HealthCheck(ctx context.Context) error { return f(ctx) }
