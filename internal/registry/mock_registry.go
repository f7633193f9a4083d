package registry

import (
	"context"
	"sync"
)

// MockRegistry is a hand-written, in-memory Registry used in unit
// tests. No mock-generation library needed.
type MockRegistry struct {
	mu            sync.RWMutex
	tenants       []Tenant
	registrations map[string][]Registration

	// Optional error overrides, set in tests to simulate failure paths.
	ListTenantsErr      error
	RegistrationsErrFor map[string]error
}

func NewMockRegistry() *MockRegistry {
	return &MockRegistry{
		registrations:       make(map[string][]Registration),
		RegistrationsErrFor: make(map[string]error),
	}
}

// AddTenant registers a tenant and its ticker registrations.
func (m *MockRegistry) AddTenant(t Tenant, regs ...Registration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenants = append(m.tenants, t)
	m.registrations[t.ID] = append(m.registrations[t.ID], regs...)
}

func (m *MockRegistry) ListTenants(_ context.Context) ([]Tenant, error) {
	if m.ListTenantsErr != nil {
		return nil, m.ListTenantsErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Tenant, len(m.tenants))
	copy(out, m.tenants)
	return out, nil
}

func (m *MockRegistry) ListRegistrations(_ context.Context, tenantID string) ([]Registration, error) {
	if err := m.RegistrationsErrFor[tenantID]; err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	regs := m.registrations[tenantID]
	out := make([]Registration, len(regs))
	copy(out, regs)
	return out, nil
}

var _ Registry = (*MockRegistry)(nil)
