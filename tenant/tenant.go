// Package tenant models the tenant registry: the mapping of a tenant
// identifier onto its Postgres schema, ClickHouse database, and external
// staging endpoint. The sync engine receives an immutable Tenant snapshot at
// construction and never consults the registry again.
package tenant

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Tenant is a read-only snapshot of one tenant's routing information.
type Tenant struct {
	ID          string
	Name        string
	PGSchema    string
	CHDatabase  string
	ExternalURL string
	IsActive    bool
}

// Seeds returns the demo tenant set provisioned by `loansyncctl provision-tenants`.
func Seeds() []Tenant {
	return []Tenant{
		{ID: "BANK001", Name: "Bank One", PGSchema: "bank001", CHDatabase: "bank001_dw", ExternalURL: "http://external-bank/BANK001", IsActive: true},
		{ID: "BANK002", Name: "Bank Two", PGSchema: "bank002", CHDatabase: "bank002_dw", ExternalURL: "http://external-bank/BANK002", IsActive: true},
		{ID: "BANK003", Name: "Bank Three", PGSchema: "bank003", CHDatabase: "bank003_dw", ExternalURL: "http://external-bank/BANK003", IsActive: true},
	}
}

const tenantsDDL = `
CREATE TABLE IF NOT EXISTS public.tenants (
	tenant_id     VARCHAR(20) PRIMARY KEY,
	name          VARCHAR(100) NOT NULL,
	pg_schema     VARCHAR(50) NOT NULL,
	ch_database   VARCHAR(50) NOT NULL,
	external_url  VARCHAR(500) NOT NULL DEFAULT '',
	is_active     BOOLEAN NOT NULL DEFAULT TRUE,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Registry reads and writes the shared tenants table.
type Registry struct {
	pool *pgxpool.Pool
}

// NewRegistry wraps a pool connected to the shared metadata database.
func NewRegistry(pool *pgxpool.Pool) *Registry {
	return &Registry{pool: pool}
}

// EnsureTable creates the tenants table if it doesn't exist.
func (r *Registry) EnsureTable(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, tenantsDDL); err != nil {
		return fmt.Errorf("creating tenants table: %w", err)
	}
	return nil
}

// Get loads one active tenant by ID.
func (r *Registry) Get(ctx context.Context, tenantID string) (Tenant, error) {
	var t Tenant
	var err = r.pool.QueryRow(ctx, `
		SELECT tenant_id, name, pg_schema, ch_database, external_url, is_active
		FROM public.tenants WHERE tenant_id = $1 AND is_active`,
		tenantID,
	).Scan(&t.ID, &t.Name, &t.PGSchema, &t.CHDatabase, &t.ExternalURL, &t.IsActive)
	if err != nil {
		return Tenant{}, fmt.Errorf("loading tenant %s: %w", tenantID, err)
	}
	return t, nil
}

// Upsert inserts or updates a tenant row.
func (r *Registry) Upsert(ctx context.Context, t Tenant) error {
	var _, err = r.pool.Exec(ctx, `
		INSERT INTO public.tenants (tenant_id, name, pg_schema, ch_database, external_url, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id) DO UPDATE SET
			name = EXCLUDED.name,
			pg_schema = EXCLUDED.pg_schema,
			ch_database = EXCLUDED.ch_database,
			external_url = EXCLUDED.external_url,
			is_active = EXCLUDED.is_active,
			updated_at = now()`,
		t.ID, t.Name, t.PGSchema, t.CHDatabase, t.ExternalURL, t.IsActive,
	)
	if err != nil {
		return fmt.Errorf("upserting tenant %s: %w", t.ID, err)
	}
	return nil
}
