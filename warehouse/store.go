// Package warehouse owns the analytic-warehouse side of a sync: staging
// inserts, the atomic partition swap into the fact tables, and the loan-ID
// enumeration used by cross-validation. One Store serves one tenant
// database.
package warehouse

import (
	"context"
	"fmt"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	log "github.com/sirupsen/logrus"
)

// File types handled by the storage layer.
const (
	FileCredit      = "credit"
	FilePaymentPlan = "payment_plan"
)

// Config carries ClickHouse connection settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
}

// InsertBatchSize caps the rows sent per staging insert.
const InsertBatchSize = 50000

// Store is a per-tenant-database handle on the warehouse.
type Store struct {
	conn     driver.Conn
	database string
}

func open(cfg Config, database string) (driver.Conn, error) {
	return clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: database,
			Username: cfg.User,
			Password: cfg.Password,
		},
	})
}

// Open connects to the tenant's warehouse database. A failed ping surfaces
// connection issues immediately rather than on first use.
func Open(ctx context.Context, cfg Config, database string) (*Store, error) {
	conn, err := open(cfg, database)
	if err != nil {
		return nil, fmt.Errorf("opening clickhouse connection: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("pinging clickhouse %s: %w", database, err)
	}
	return &Store{conn: conn, database: database}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.conn.Close() }

// Database returns the tenant database this store is bound to.
func (s *Store) Database() string { return s.database }

func stagingTable(fileType string) (string, error) {
	switch fileType {
	case FileCredit:
		return "staging_credit", nil
	case FilePaymentPlan:
		return "staging_payment", nil
	}
	return "", fmt.Errorf("unknown file type %q", fileType)
}

func factTable(fileType string) (string, error) {
	switch fileType {
	case FileCredit:
		return "fact_credit", nil
	case FilePaymentPlan:
		return "fact_payment", nil
	}
	return "", fmt.Errorf("unknown file type %q", fileType)
}

// TruncateStaging empties the staging table for a file type. Idempotent.
func (s *Store) TruncateStaging(ctx context.Context, fileType string) error {
	table, err := stagingTable(fileType)
	if err != nil {
		return err
	}
	if err := s.conn.Exec(ctx, "TRUNCATE TABLE "+table); err != nil {
		return fmt.Errorf("truncating %s: %w", table, err)
	}
	return nil
}

// InsertCredits bulk-inserts typed credit rows into staging_credit, split
// into batches of at most InsertBatchSize.
func (s *Store) InsertCredits(ctx context.Context, rows []CreditRow) error {
	for start := 0; start < len(rows); start += InsertBatchSize {
		var end = min(start+InsertBatchSize, len(rows))
		batch, err := s.conn.PrepareBatch(ctx, insertSQL("staging_credit", creditColumns))
		if err != nil {
			return fmt.Errorf("preparing staging_credit batch: %w", err)
		}
		for _, row := range rows[start:end] {
			if err := batch.Append(row.values()...); err != nil {
				return fmt.Errorf("appending credit row: %w", err)
			}
		}
		if err := batch.Send(); err != nil {
			return fmt.Errorf("sending staging_credit batch: %w", err)
		}
	}
	return nil
}

// InsertPayments bulk-inserts typed payment rows into staging_payment.
func (s *Store) InsertPayments(ctx context.Context, rows []PaymentRow) error {
	for start := 0; start < len(rows); start += InsertBatchSize {
		var end = min(start+InsertBatchSize, len(rows))
		batch, err := s.conn.PrepareBatch(ctx, insertSQL("staging_payment", paymentColumns))
		if err != nil {
			return fmt.Errorf("preparing staging_payment batch: %w", err)
		}
		for _, row := range rows[start:end] {
			if err := batch.Append(row.values()...); err != nil {
				return fmt.Errorf("appending payment row: %w", err)
			}
		}
		if err := batch.Send(); err != nil {
			return fmt.Errorf("sending staging_payment batch: %w", err)
		}
	}
	return nil
}

// ReplacePartition atomically swaps the fact table's partition for the given
// loan type with the current contents of its staging twin. Readers observe
// either the old or the new partition, never a mix.
func (s *Store) ReplacePartition(ctx context.Context, fileType, loanType string) error {
	staging, err := stagingTable(fileType)
	if err != nil {
		return err
	}
	fact, _ := factTable(fileType)

	var stmt = fmt.Sprintf("ALTER TABLE %s REPLACE PARTITION '%s' FROM %s", fact, loanType, staging)
	if err := s.conn.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("replacing %s partition %s: %w", fact, loanType, err)
	}
	log.WithFields(log.Fields{
		"database": s.database,
		"fact":     fact,
		"loanType": loanType,
	}).Info("replaced fact partition from staging")
	return nil
}

// DistinctLoanIDs enumerates the loan account numbers already committed to
// fact_credit for a loan type, for use in cross-validation.
func (s *Store) DistinctLoanIDs(ctx context.Context, loanType string) (map[string]struct{}, error) {
	rows, err := s.conn.Query(ctx,
		"SELECT DISTINCT loan_account_number FROM fact_credit WHERE loan_type = ?", loanType)
	if err != nil {
		return nil, fmt.Errorf("querying existing loan ids: %w", err)
	}
	defer rows.Close()

	var ids = make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning loan id: %w", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating loan ids: %w", err)
	}
	return ids, nil
}

// CountRows returns the number of rows in a fact partition.
func (s *Store) CountRows(ctx context.Context, fileType, loanType string) (uint64, error) {
	fact, err := factTable(fileType)
	if err != nil {
		return 0, err
	}
	var count uint64
	if err := s.conn.QueryRow(ctx,
		fmt.Sprintf("SELECT count() FROM %s WHERE loan_type = ?", fact), loanType,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting %s rows: %w", fact, err)
	}
	return count, nil
}

// InitTenant creates a tenant database and its fact + staging tables.
func InitTenant(ctx context.Context, cfg Config, database string) error {
	admin, err := open(cfg, "default")
	if err != nil {
		return fmt.Errorf("opening clickhouse admin connection: %w", err)
	}
	defer admin.Close()

	if err := admin.Exec(ctx, "CREATE DATABASE IF NOT EXISTS "+database); err != nil {
		return fmt.Errorf("creating database %s: %w", database, err)
	}

	db, err := open(cfg, database)
	if err != nil {
		return fmt.Errorf("opening database %s: %w", database, err)
	}
	defer db.Close()

	for _, ddl := range []string{
		fmt.Sprintf(factCreditDDL, "fact_credit"),
		fmt.Sprintf(factPaymentDDL, "fact_payment"),
		fmt.Sprintf(factCreditDDL, "staging_credit"),
		fmt.Sprintf(factPaymentDDL, "staging_payment"),
	} {
		if err := db.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("creating table in %s: %w", database, err)
		}
	}
	log.WithField("database", database).Info("initialized warehouse tables")
	return nil
}

func insertSQL(table string, columns []string) string {
	return fmt.Sprintf("INSERT INTO %s (%s)", table, strings.Join(columns, ", "))
}
