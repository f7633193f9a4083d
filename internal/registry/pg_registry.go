package registry

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shalom-ormsby/sagestocks/internal/domain"
)

type pgRegistry struct {
	pool *pgxpool.Pool
}

// NewPgRegistry returns a Registry backed by PostgreSQL.
func NewPgRegistry(pool *pgxpool.Pool) Registry {
	return &pgRegistry{pool: pool}
}

func (r *pgRegistry) ListTenants(ctx context.Context) ([]Tenant, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, contact, tier, credential, primary_destination, archive_destination
		FROM tenants
		WHERE active
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []Tenant
	for rows.Next() {
		var (
			t    Tenant
			tier string
		)
		if err := rows.Scan(&t.ID, &t.Contact, &tier,
			&t.Target.Credential, &t.Target.PrimaryID, &t.Target.ArchiveID); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		t.Tier = domain.ParseTier(tier)
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tenants: %w", err)
	}
	return tenants, nil
}

func (r *pgRegistry) ListRegistrations(ctx context.Context, tenantID string) ([]Registration, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT tenant_id, ticker, record_id
		FROM registrations
		WHERE tenant_id = $1
		ORDER BY record_id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list registrations for %s: %w", tenantID, err)
	}
	defer rows.Close()

	regs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Registration, error) {
		var reg Registration
		err := row.Scan(&reg.TenantID, &reg.Ticker, &reg.RecordID)
		return reg, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan registrations for %s: %w", tenantID, err)
	}
	return regs, nil
}

var _ Registry = (*pgRegistry)(nil)
