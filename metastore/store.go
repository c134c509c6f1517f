// Package metastore persists sync metadata in the relational store: the
// per-loan-type sync configuration, one SyncLog row per invocation, and the
// bulk validation-error descriptors referencing it. Every statement is
// qualified with the tenant's Postgres schema explicitly; there is no
// ambient search_path state.
package metastore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/loansync/loansync/validate"
)

// SyncLog statuses. STARTED through STORING are progress states persisted
// as side-effects; COMPLETED and FAILED are terminal.
const (
	StatusStarted     = "STARTED"
	StatusFetching    = "FETCHING"
	StatusValidating  = "VALIDATING"
	StatusNormalizing = "NORMALIZING"
	StatusStoring     = "STORING"
	StatusCompleted   = "COMPLETED"
	StatusFailed      = "FAILED"
)

// ErrorSaveBatch caps the descriptors per bulk write.
const ErrorSaveBatch = 1000

// SyncLog is the per-invocation record of one sync.
type SyncLog struct {
	ID               uuid.UUID
	LoanType         string
	BatchID          uuid.UUID
	Status           string
	TotalCreditRows  int
	TotalPaymentRows int
	ValidCreditRows  int
	ValidPaymentRows int
	ErrorCount       int
	ErrorSummary     map[string]interface{}
	StartedAt        time.Time
	CompletedAt      *time.Time
}

// Config carries Postgres connection settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// DSN renders the pgx connection string.
func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", c.User, c.Password, c.Host, c.Port, c.Database)
}

// Store is a schema-scoped handle on the sync metadata tables.
type Store struct {
	pool   *pgxpool.Pool
	schema string
}

// Open connects a pool and binds it to the tenant's schema.
func Open(ctx context.Context, cfg Config, schema string) (*Store, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &Store{pool: pool, schema: schema}, nil
}

// NewStore binds an existing pool to a tenant schema. The pool is shared;
// Close is a no-op on stores created this way only if the caller owns it.
func NewStore(pool *pgxpool.Pool, schema string) *Store {
	return &Store{pool: pool, schema: schema}
}

// Pool exposes the underlying pool, for sharing across schema-scoped stores.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }

func (s *Store) table(name string) string {
	return pgx.Identifier{s.schema, name}.Sanitize()
}

// CreateSyncLog inserts the log row, filling ID and StartedAt.
func (s *Store) CreateSyncLog(ctx context.Context, l *SyncLog) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	l.StartedAt = time.Now().UTC()

	summary, err := json.Marshal(orEmpty(l.ErrorSummary))
	if err != nil {
		return fmt.Errorf("encoding error summary: %w", err)
	}
	_, err = s.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, loan_type, batch_id, status,
			total_credit_rows, total_payment_rows, valid_credit_rows, valid_payment_rows,
			error_count, error_summary, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		s.table("sync_logs")),
		l.ID, l.LoanType, l.BatchID, l.Status,
		l.TotalCreditRows, l.TotalPaymentRows, l.ValidCreditRows, l.ValidPaymentRows,
		l.ErrorCount, summary, l.StartedAt, l.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting sync log: %w", err)
	}
	return nil
}

// UpdateSyncLogStatus persists a progress-state transition. Idempotent.
func (s *Store) UpdateSyncLogStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := s.pool.Exec(ctx,
		fmt.Sprintf("UPDATE %s SET status = $1 WHERE id = $2", s.table("sync_logs")),
		status, id,
	)
	if err != nil {
		return fmt.Errorf("updating sync log status: %w", err)
	}
	return nil
}

// UpdateSyncLogTotals records the O(1) row counts taken at sync start.
func (s *Store) UpdateSyncLogTotals(ctx context.Context, id uuid.UUID, totalCredits, totalPayments int) error {
	_, err := s.pool.Exec(ctx,
		fmt.Sprintf("UPDATE %s SET total_credit_rows = $1, total_payment_rows = $2 WHERE id = $3",
			s.table("sync_logs")),
		totalCredits, totalPayments, id,
	)
	if err != nil {
		return fmt.Errorf("updating sync log totals: %w", err)
	}
	return nil
}

// FinishSyncLog persists the terminal state: status, counters, summary and
// completion time.
func (s *Store) FinishSyncLog(ctx context.Context, l *SyncLog) error {
	summary, err := json.Marshal(orEmpty(l.ErrorSummary))
	if err != nil {
		return fmt.Errorf("encoding error summary: %w", err)
	}
	_, err = s.pool.Exec(ctx, fmt.Sprintf(`
		UPDATE %s SET status = $1,
			total_credit_rows = $2, total_payment_rows = $3,
			valid_credit_rows = $4, valid_payment_rows = $5,
			error_count = $6, error_summary = $7, completed_at = $8
		WHERE id = $9`,
		s.table("sync_logs")),
		l.Status,
		l.TotalCreditRows, l.TotalPaymentRows,
		l.ValidCreditRows, l.ValidPaymentRows,
		l.ErrorCount, summary, l.CompletedAt, l.ID,
	)
	if err != nil {
		return fmt.Errorf("finishing sync log: %w", err)
	}
	return nil
}

// InsertValidationErrors bulk-persists error descriptors for one file type
// in batches of ErrorSaveBatch, via the COPY protocol.
func (s *Store) InsertValidationErrors(ctx context.Context, logID uuid.UUID, fileType string, errs []validate.Error) error {
	for start := 0; start < len(errs); start += ErrorSaveBatch {
		var end = min(start+ErrorSaveBatch, len(errs))
		var batch = errs[start:end]

		_, err := s.pool.CopyFrom(ctx,
			pgx.Identifier{s.schema, "validation_errors"},
			[]string{"sync_log_id", "row_number", "file_type", "field_name", "error_type", "error_message", "raw_value"},
			pgx.CopyFromSlice(len(batch), func(i int) ([]interface{}, error) {
				var e = batch[i]
				return []interface{}{logID, e.RowNumber, fileType, e.FieldName, e.Type, e.Message, e.RawValue}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("copying validation errors: %w", err)
		}
	}
	return nil
}

// UpdateSyncConfig records the outcome of the latest sync on the loan
// type's configuration row. A missing row is a no-op.
func (s *Store) UpdateSyncConfig(ctx context.Context, loanType, status string, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		fmt.Sprintf("UPDATE %s SET last_sync_at = $1, last_sync_status = $2 WHERE loan_type = $3",
			s.table("sync_configurations")),
		at, status, loanType,
	)
	if err != nil {
		return fmt.Errorf("updating sync configuration: %w", err)
	}
	return nil
}

func orEmpty(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}
