package registry

import (
	"context"

	"go.uber.org/zap"
)

// Collector gathers every tenant's requested tickers for the cycle.
//
// Collection is isolated per tenant: a failure while reading one
// tenant's registrations logs a warning and omits that tenant, it
// never aborts the cycle for everyone else. Collect as a whole only
// fails when the tenant list itself cannot be read.
type Collector struct {
	reg    Registry
	logger *zap.Logger
}

func NewCollector(reg Registry, logger *zap.Logger) *Collector {
	return &Collector{reg: reg, logger: logger}
}

// Collect returns the per-tenant request map keyed by tenant ID.
// Tenants with zero registrations are omitted.
func (c *Collector) Collect(ctx context.Context) (map[string]TenantRequests, error) {
	tenants, err := c.reg.ListTenants(ctx)
	if err != nil {
		return nil, err
	}

	out := make(map[string]TenantRequests, len(tenants))
	for _, t := range tenants {
		regs, err := c.reg.ListRegistrations(ctx, t.ID)
		if err != nil {
			c.logger.Warn("skipping tenant: registrations unavailable",
				zap.String("tenant_id", t.ID), zap.Error(err))
			continue
		}
		if len(regs) == 0 {
			continue
		}
		out[t.ID] = TenantRequests{Tenant: t, Registrations: regs}
	}
	return out, nil
}
