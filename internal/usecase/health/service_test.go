package health

import (
	"context"
	"errors"
	"testing"
)

// --- Mocks ---

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(_ context.Context) error { return m.err }

func failing(context.Context) error { return errors.New("failed") }

func passing(context.Context) error { return nil }

// --- Tests ---

func TestCheck_AllHealthy(t *testing.T) {
	svc := New(&mockPinger{}).WithCheck("provisioning", CheckerFunc(passing))
	r := svc.Check(context.Background())

	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
	if r.Checks[BackendCheck] != CheckOK {
		t.Errorf("expected backend %q, got %q", CheckOK, r.Checks[BackendCheck])
	}
	if r.Checks["provisioning"] != CheckOK {
		t.Errorf("expected provisioning %q, got %q", CheckOK, r.Checks["provisioning"])
	}
}

func TestCheck_BackendError(t *testing.T) {
	svc := New(&mockPinger{err: errors.New("conn refused")}).WithCheck("provisioning", CheckerFunc(failing))
	r := svc.Check(context.Background())

	if r.Status != Unhealthy {
		t.Errorf("expected %q, got %q", Unhealthy, r.Status)
	}
	if r.Checks[BackendCheck] != CheckError {
		t.Errorf("expected backend %q, got %q", CheckError, r.Checks[BackendCheck])
	}
}

func TestCheck_AuxiliaryErrorDegrades(t *testing.T) {
	svc := New(&mockPinger{}).
		WithCheck("provisioning", CheckerFunc(failing)).
		WithCheck("idgen", CheckerFunc(passing))
	r := svc.Check(context.Background())

	if r.Status != Degraded {
		t.Errorf("expected %q, got %q", Degraded, r.Status)
	}
	if r.Checks["provisioning"] != CheckError {
		t.Errorf("expected provisioning %q, got %q", CheckError, r.Checks["provisioning"])
	}
	if r.Checks["idgen"] != CheckOK {
		t.Errorf("expected idgen %q, got %q", CheckOK, r.Checks["idgen"])
	}
}

func TestCheck_NoExtraChecks(t *testing.T) {
	r := New(&mockPinger{}).Check(context.Background())

	if len(r.Checks) != 1 {
		t.Errorf("expected only the backend check, got %v", r.Checks)
	}
}
