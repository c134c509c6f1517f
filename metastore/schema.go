package metastore

import (
	"context"
	"fmt"
)

var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS %[1]s.sync_configurations (
		id                    SERIAL PRIMARY KEY,
		loan_type             VARCHAR(20) NOT NULL UNIQUE,
		external_bank_url     VARCHAR(500) NOT NULL DEFAULT '',
		sync_interval_minutes INTEGER NOT NULL DEFAULT 60,
		is_enabled            BOOLEAN NOT NULL DEFAULT TRUE,
		last_sync_at          TIMESTAMPTZ,
		last_sync_status      VARCHAR(20) NOT NULL DEFAULT 'PENDING',
		created_at            TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.sync_logs (
		id                 UUID PRIMARY KEY,
		loan_type          VARCHAR(20) NOT NULL,
		batch_id           UUID NOT NULL,
		status             VARCHAR(20) NOT NULL DEFAULT 'STARTED',
		total_credit_rows  INTEGER NOT NULL DEFAULT 0,
		total_payment_rows INTEGER NOT NULL DEFAULT 0,
		valid_credit_rows  INTEGER NOT NULL DEFAULT 0,
		valid_payment_rows INTEGER NOT NULL DEFAULT 0,
		error_count        INTEGER NOT NULL DEFAULT 0,
		error_summary      JSONB NOT NULL DEFAULT '{}',
		started_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
		completed_at       TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS sync_logs_started_at_idx ON %[1]s.sync_logs (started_at DESC)`,
	`CREATE TABLE IF NOT EXISTS %[1]s.validation_errors (
		id            BIGSERIAL PRIMARY KEY,
		sync_log_id   UUID NOT NULL REFERENCES %[1]s.sync_logs (id) ON DELETE CASCADE,
		row_number    INTEGER NOT NULL,
		file_type     VARCHAR(20) NOT NULL,
		field_name    VARCHAR(100) NOT NULL,
		error_type    VARCHAR(50) NOT NULL,
		error_message TEXT NOT NULL,
		raw_value     TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS validation_errors_sync_log_idx ON %[1]s.validation_errors (sync_log_id)`,
}

// EnsureSchema creates the tenant schema and its three metadata tables.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", s.schema)); err != nil {
		return fmt.Errorf("creating schema %s: %w", s.schema, err)
	}
	for _, ddl := range schemaDDL {
		if _, err := s.pool.Exec(ctx, fmt.Sprintf(ddl, s.schema)); err != nil {
			return fmt.Errorf("creating metadata tables in %s: %w", s.schema, err)
		}
	}
	return nil
}

// SeedSyncConfigs inserts default RETAIL and COMMERCIAL configurations
// pointing at the tenant's external bank endpoint. Existing rows are kept.
func (s *Store) SeedSyncConfigs(ctx context.Context, externalURL string) error {
	for _, loanType := range []string{"RETAIL", "COMMERCIAL"} {
		_, err := s.pool.Exec(ctx, fmt.Sprintf(`
			INSERT INTO %s (loan_type, external_bank_url)
			VALUES ($1, $2)
			ON CONFLICT (loan_type) DO NOTHING`,
			s.table("sync_configurations")),
			loanType, externalURL,
		)
		if err != nil {
			return fmt.Errorf("seeding %s sync configuration: %w", loanType, err)
		}
	}
	return nil
}
