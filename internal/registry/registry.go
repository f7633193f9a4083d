package registry

import (
	"context"

	"github.com/shalom-ormsby/sagestocks/internal/domain"
)

// Tenant is one account that can register tickers for the daily cycle.
type Tenant struct {
	ID      string
	Contact string
	Tier    domain.Tier
	Target  domain.TargetHandle
}

// Registration is one tenant-local record tracking one ticker. A
// tenant may track the same ticker under several records.
type Registration struct {
	TenantID string
	Ticker   string
	RecordID string
}

// Registry defines the persistence operations the collector needs.
// The pgx implementation is in pg_registry.go; tests use the
// hand-written mock (mock_registry.go).
type Registry interface {
	ListTenants(ctx context.Context) ([]Tenant, error)
	ListRegistrations(ctx context.Context, tenantID string) ([]Registration, error)
}

// TenantRequests is the collector output for one tenant: the tenant's
// metadata plus everything it asked to have analyzed this cycle.
type TenantRequests struct {
	Tenant        Tenant
	Registrations []Registration
}
