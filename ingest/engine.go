// Package ingest implements the per-tenant sync engine: the chunked,
// bounded-memory pipeline that streams staged credit and payment rows,
// validates and normalizes them, lands them in warehouse staging tables,
// and commits the change as an atomic partition swap. On abort the previous
// snapshot stays untouched. One Sync invocation produces exactly one
// terminal SyncLog; no error escapes Sync.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/loansync/loansync/locking"
	"github.com/loansync/loansync/metastore"
	"github.com/loansync/loansync/normalize"
	"github.com/loansync/loansync/tenant"
	"github.com/loansync/loansync/validate"
	"github.com/loansync/loansync/warehouse"
)

// Loan types partitioning the warehouse fact tables.
const (
	LoanRetail     = "RETAIL"
	LoanCommercial = "COMMERCIAL"
)

// Fetcher streams staged upload data and captures failed rows.
type Fetcher interface {
	RowCount(ctx context.Context, tenantID, loanType, fileType string) (int, error)
	Iterate(ctx context.Context, tenantID, loanType, fileType string, fn func(rows []map[string]string) error) error
	StoreFailedRows(ctx context.Context, tenantID, loanType, fileType string, rows []map[string]string) error
	ClearUpload(ctx context.Context, tenantID, loanType, fileType string) error
}

// Warehouse is the analytic store for one tenant database.
type Warehouse interface {
	TruncateStaging(ctx context.Context, fileType string) error
	InsertCredits(ctx context.Context, rows []warehouse.CreditRow) error
	InsertPayments(ctx context.Context, rows []warehouse.PaymentRow) error
	ReplacePartition(ctx context.Context, fileType, loanType string) error
	DistinctLoanIDs(ctx context.Context, loanType string) (map[string]struct{}, error)
}

// Metastore persists sync logs, validation errors, and configuration state.
type Metastore interface {
	CreateSyncLog(ctx context.Context, l *metastore.SyncLog) error
	UpdateSyncLogStatus(ctx context.Context, id uuid.UUID, status string) error
	UpdateSyncLogTotals(ctx context.Context, id uuid.UUID, totalCredits, totalPayments int) error
	FinishSyncLog(ctx context.Context, l *metastore.SyncLog) error
	InsertValidationErrors(ctx context.Context, logID uuid.UUID, fileType string, errs []validate.Error) error
	UpdateSyncConfig(ctx context.Context, loanType, status string, at time.Time) error
}

// Locker is the distributed mutex over (tenant, loan_type). Acquire reports
// contention as locking.ErrNotAcquired.
type Locker interface {
	Acquire(ctx context.Context, tenantID, loanType, token string, ttl time.Duration) error
	Release(ctx context.Context, tenantID, loanType string) error
}

// CacheInvalidator drops query caches that went stale with this sync.
type CacheInvalidator interface {
	AfterSync(ctx context.Context, tenantID, loanType string) error
}

// Config tunes the engine. Zero values select the defaults.
type Config struct {
	// MaxErrorRate is the abort threshold; the gate is strict `>`.
	MaxErrorRate float64
	// LockTTL bounds both lock lifetime and the wait-for-lock window.
	LockTTL time.Duration
	// LockPoll is the interval between acquisition attempts while waiting.
	LockPoll time.Duration
	// MaxFailedRows caps captured raw rows per file type.
	MaxFailedRows int
	// MaxStoredErrors caps persisted error descriptors per file type.
	MaxStoredErrors int
}

func (c Config) withDefaults() Config {
	if c.MaxErrorRate == 0 {
		c.MaxErrorRate = 0.50
	}
	if c.LockTTL == 0 {
		c.LockTTL = locking.DefaultTTL
	}
	if c.LockPoll == 0 {
		c.LockPoll = 2 * time.Second
	}
	if c.MaxFailedRows == 0 {
		c.MaxFailedRows = 10000
	}
	if c.MaxStoredErrors == 0 {
		c.MaxStoredErrors = 50000
	}
	return c
}

// Engine drives the sync pipeline for one tenant.
type Engine struct {
	tenant    tenant.Tenant
	fetcher   Fetcher
	warehouse Warehouse
	meta      Metastore
	locks     Locker
	caches    CacheInvalidator
	cfg       Config

	creditValidator  validate.CreditValidator
	paymentValidator validate.PaymentValidator
}

// NewEngine assembles an engine from its collaborators and a tenant
// snapshot.
func NewEngine(t tenant.Tenant, f Fetcher, w Warehouse, m Metastore, l Locker, c CacheInvalidator, cfg Config) *Engine {
	return &Engine{
		tenant:    t,
		fetcher:   f,
		warehouse: w,
		meta:      m,
		locks:     l,
		caches:    c,
		cfg:       cfg.withDefaults(),
	}
}

// fileResult accumulates per-file-type pipeline state. The error and
// failed-row buffers are capped; counters are not.
type fileResult struct {
	valid       int
	failedRows  int
	fieldErrors int
	summary     map[string]int
	errors      []validate.Error
	rawRows     []map[string]string
}

func newFileResult() fileResult {
	return fileResult{summary: make(map[string]int)}
}

type syncRun struct {
	loanType  string
	batchID   uuid.UUID
	log       *metastore.SyncLog
	startedAt time.Time

	totalCredits  int
	totalPayments int
	batchLoans    validate.LoanSet
	credit        fileResult
	payment       fileResult
}

// Sync executes the full pipeline for one loan type and always returns a
// terminal SyncLog. When waitForLock is set, lock contention polls until the
// TTL window elapses instead of failing immediately.
func (e *Engine) Sync(ctx context.Context, loanType string, waitForLock bool) *metastore.SyncLog {
	var batchID = uuid.New()
	var logger = log.WithFields(log.Fields{
		"tenant":   e.tenant.ID,
		"loanType": loanType,
		"batch":    batchID,
	})

	if err := e.acquireLock(ctx, loanType, batchID.String(), waitForLock, logger); err != nil {
		if errors.Is(err, locking.ErrNotAcquired) {
			logger.Warn("sync lock held by another process, aborting")
			return e.failFast(ctx, loanType, batchID, map[string]interface{}{"reason": "Concurrent sync in progress"})
		}
		logger.WithField("err", err).Error("sync lock store unavailable")
		return e.failFast(ctx, loanType, batchID, map[string]interface{}{"exception": err.Error()})
	}
	defer func() {
		if err := e.locks.Release(ctx, e.tenant.ID, loanType); err != nil {
			logger.WithField("err", err).Warn("failed to release sync lock")
		}
	}()

	var run = &syncRun{
		loanType:   loanType,
		batchID:    batchID,
		startedAt:  time.Now(),
		batchLoans: validate.NewLoanSet(),
		credit:     newFileResult(),
		payment:    newFileResult(),
		log: &metastore.SyncLog{
			LoanType: loanType,
			BatchID:  batchID,
			Status:   metastore.StatusStarted,
		},
	}
	if err := e.meta.CreateSyncLog(ctx, run.log); err != nil {
		logger.WithField("err", err).Error("failed to open sync log")
		return e.failFast(ctx, loanType, batchID, map[string]interface{}{"exception": err.Error()})
	}

	if err := e.runPipeline(ctx, run, logger); err != nil {
		e.failWithException(ctx, run, err, logger)
	}
	return run.log
}

func (e *Engine) acquireLock(ctx context.Context, loanType, token string, wait bool, logger *log.Entry) error {
	var err = e.locks.Acquire(ctx, e.tenant.ID, loanType, token, e.cfg.LockTTL)
	if err == nil || !errors.Is(err, locking.ErrNotAcquired) || !wait {
		return err
	}

	logger.Info("sync lock held, waiting for release")
	var deadline = time.Now().Add(e.cfg.LockTTL)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.cfg.LockPoll):
		}
		err = e.locks.Acquire(ctx, e.tenant.ID, loanType, token, e.cfg.LockTTL)
		if err == nil {
			logger.Info("sync lock acquired after wait")
			return nil
		}
		if !errors.Is(err, locking.ErrNotAcquired) {
			return err
		}
	}
	return err
}

// failFast records a terminal FAILED log for a sync that never entered the
// pipeline (lock contention or unreachable infrastructure).
func (e *Engine) failFast(ctx context.Context, loanType string, batchID uuid.UUID, summary map[string]interface{}) *metastore.SyncLog {
	var now = time.Now().UTC()
	var l = &metastore.SyncLog{
		LoanType:     loanType,
		BatchID:      batchID,
		Status:       metastore.StatusFailed,
		ErrorSummary: summary,
		CompletedAt:  &now,
	}
	if err := e.meta.CreateSyncLog(ctx, l); err != nil {
		log.WithFields(log.Fields{
			"tenant":   e.tenant.ID,
			"loanType": loanType,
			"err":      err,
		}).Error("failed to record failed sync log")
	}
	syncOperationsTotal.WithLabelValues(e.tenant.ID, loanType, metastore.StatusFailed).Inc()
	return l
}

func (e *Engine) runPipeline(ctx context.Context, run *syncRun, logger *log.Entry) error {
	var err error
	if run.totalCredits, err = e.fetcher.RowCount(ctx, e.tenant.ID, run.loanType, warehouse.FileCredit); err != nil {
		return fmt.Errorf("counting staged credits: %w", err)
	}
	if run.totalPayments, err = e.fetcher.RowCount(ctx, e.tenant.ID, run.loanType, warehouse.FilePaymentPlan); err != nil {
		return fmt.Errorf("counting staged payments: %w", err)
	}
	if err = e.meta.UpdateSyncLogTotals(ctx, run.log.ID, run.totalCredits, run.totalPayments); err != nil {
		return fmt.Errorf("recording row totals: %w", err)
	}
	run.log.TotalCreditRows = run.totalCredits
	run.log.TotalPaymentRows = run.totalPayments

	logger.WithFields(log.Fields{
		"credits":  run.totalCredits,
		"payments": run.totalPayments,
	}).Info("starting chunked sync")

	if err = e.creditPhase(ctx, run, logger); err != nil {
		return err
	}
	if err = e.paymentPhase(ctx, run, logger); err != nil {
		return err
	}

	var total = run.totalCredits + run.totalPayments
	var invalid = total - run.credit.valid - run.payment.valid
	if total > 0 && float64(invalid)/float64(total) > e.cfg.MaxErrorRate {
		logger.WithField("errorRate", fmt.Sprintf("%.1f%%", float64(invalid)/float64(total)*100)).
			Warn("error rate exceeds threshold, aborting sync")
		return e.abort(ctx, run, logger)
	}
	return e.commit(ctx, run, logger)
}

func (e *Engine) setStatus(ctx context.Context, run *syncRun, status string) error {
	if err := e.meta.UpdateSyncLogStatus(ctx, run.log.ID, status); err != nil {
		return fmt.Errorf("updating status to %s: %w", status, err)
	}
	run.log.Status = status
	return nil
}

// recordInvalid accounts one failed row: it bumps the row and field-error
// counters unconditionally and appends to the bounded diagnostic buffers.
func (e *Engine) recordInvalid(fr *fileResult, row map[string]string, errs []validate.Error) {
	fr.failedRows++
	if len(fr.rawRows) < e.cfg.MaxFailedRows {
		fr.rawRows = append(fr.rawRows, row)
	}
	for _, verr := range errs {
		fr.fieldErrors++
		fr.summary[verr.Type]++
		if len(fr.errors) < e.cfg.MaxStoredErrors {
			fr.errors = append(fr.errors, verr)
		}
	}
}

func (e *Engine) creditPhase(ctx context.Context, run *syncRun, logger *log.Entry) error {
	if err := e.setStatus(ctx, run, metastore.StatusFetching); err != nil {
		return err
	}
	if err := e.warehouse.TruncateStaging(ctx, warehouse.FileCredit); err != nil {
		return err
	}
	if err := e.setStatus(ctx, run, metastore.StatusValidating); err != nil {
		return err
	}

	var rowIdx int
	var err = e.fetcher.Iterate(ctx, e.tenant.ID, run.loanType, warehouse.FileCredit, func(rows []map[string]string) error {
		var validRecords []map[string]string
		for _, row := range rows {
			rowIdx++
			var res = e.creditValidator.ValidateRow(row, rowIdx, run.loanType)
			if res.OK() {
				run.batchLoans.Add(strings.TrimSpace(row["loan_account_number"]))
				validRecords = append(validRecords, row)
			} else {
				e.recordInvalid(&run.credit, row, res.Errors)
			}
		}
		if len(validRecords) == 0 {
			return nil
		}

		if err := e.setStatus(ctx, run, metastore.StatusNormalizing); err != nil {
			return err
		}
		var loadedAt = time.Now().UTC()
		var creditRows = make([]warehouse.CreditRow, 0, len(validRecords))
		for _, record := range validRecords {
			record = normalize.Credit(record, run.loanType)
			creditRows = append(creditRows, warehouse.CreditRowFrom(record, run.loanType, run.batchID, loadedAt))
		}

		if err := e.setStatus(ctx, run, metastore.StatusStoring); err != nil {
			return err
		}
		if err := e.warehouse.InsertCredits(ctx, creditRows); err != nil {
			return err
		}
		run.credit.valid += len(creditRows)
		return nil
	})
	if err != nil {
		return fmt.Errorf("credit phase: %w", err)
	}

	logger.WithFields(log.Fields{
		"valid":  run.credit.valid,
		"failed": run.credit.failedRows,
		"total":  run.totalCredits,
	}).Info("credits processed")
	return nil
}

func (e *Engine) paymentPhase(ctx context.Context, run *syncRun, logger *log.Entry) error {
	if err := e.warehouse.TruncateStaging(ctx, warehouse.FilePaymentPlan); err != nil {
		return err
	}

	// Known loans are the batch credits plus whatever the warehouse already
	// holds for this loan type. A failed warehouse read degrades the
	// cross-check to batch credits only rather than failing the sync.
	var known = validate.NewLoanSet().Union(run.batchLoans)
	if existing, err := e.warehouse.DistinctLoanIDs(ctx, run.loanType); err != nil {
		logger.WithField("err", err).Warn("could not fetch existing loans, cross-validation will use batch credits only")
	} else {
		known.Union(validate.LoanSet(existing))
	}

	var rowIdx int
	var err = e.fetcher.Iterate(ctx, e.tenant.ID, run.loanType, warehouse.FilePaymentPlan, func(rows []map[string]string) error {
		var validRecords []map[string]string
		for _, row := range rows {
			rowIdx++
			var res = e.paymentValidator.ValidateRow(row, rowIdx, run.loanType)
			if !res.OK() {
				e.recordInvalid(&run.payment, row, res.Errors)
				continue
			}
			if crossErr := validate.CrossReference(strings.TrimSpace(row["loan_account_number"]), rowIdx, known); crossErr != nil {
				e.recordInvalid(&run.payment, row, []validate.Error{*crossErr})
				continue
			}
			validRecords = append(validRecords, row)
		}
		if len(validRecords) == 0 {
			return nil
		}

		var loadedAt = time.Now().UTC()
		var paymentRows = make([]warehouse.PaymentRow, 0, len(validRecords))
		for _, record := range validRecords {
			record = normalize.Payment(record)
			paymentRows = append(paymentRows, warehouse.PaymentRowFrom(record, run.loanType, run.batchID, loadedAt))
		}
		if err := e.warehouse.InsertPayments(ctx, paymentRows); err != nil {
			return err
		}
		run.payment.valid += len(paymentRows)
		return nil
	})
	if err != nil {
		return fmt.Errorf("payment phase: %w", err)
	}

	logger.WithFields(log.Fields{
		"valid":  run.payment.valid,
		"failed": run.payment.failedRows,
		"total":  run.totalPayments,
	}).Info("payments processed")
	return nil
}

// abort truncates staging so the fact tables keep their pre-sync snapshot,
// and records the sync as FAILED with the aggregated error summary.
func (e *Engine) abort(ctx context.Context, run *syncRun, logger *log.Entry) error {
	if err := e.warehouse.TruncateStaging(ctx, warehouse.FileCredit); err != nil {
		return err
	}
	if err := e.warehouse.TruncateStaging(ctx, warehouse.FilePaymentPlan); err != nil {
		return err
	}

	var summary = e.mergedSummary(run)
	summary["reason"] = fmt.Sprintf("Error rate exceeds %.0f%%. Aborting sync, old data preserved.", e.cfg.MaxErrorRate*100)
	if err := e.finishLog(ctx, run, metastore.StatusFailed, summary); err != nil {
		return err
	}

	e.persistDiagnostics(ctx, run, logger)
	e.finalize(ctx, run, metastore.StatusFailed, logger)
	return nil
}

func (e *Engine) commit(ctx context.Context, run *syncRun, logger *log.Entry) error {
	if err := e.setStatus(ctx, run, metastore.StatusStoring); err != nil {
		return err
	}

	// A zero-row staging table gets no partition replace: swapping an empty
	// partition in would wipe data the upload never covered.
	if run.credit.valid > 0 {
		if err := e.warehouse.ReplacePartition(ctx, warehouse.FileCredit, run.loanType); err != nil {
			return err
		}
	}
	if err := e.warehouse.TruncateStaging(ctx, warehouse.FileCredit); err != nil {
		return err
	}
	if run.payment.valid > 0 {
		if err := e.warehouse.ReplacePartition(ctx, warehouse.FilePaymentPlan, run.loanType); err != nil {
			return err
		}
	}
	if err := e.warehouse.TruncateStaging(ctx, warehouse.FilePaymentPlan); err != nil {
		return err
	}

	rowsInsertedTotal.WithLabelValues(e.tenant.ID, "fact_credit").Add(float64(run.credit.valid))
	rowsInsertedTotal.WithLabelValues(e.tenant.ID, "fact_payment").Add(float64(run.payment.valid))

	if err := e.finishLog(ctx, run, metastore.StatusCompleted, e.mergedSummary(run)); err != nil {
		return err
	}

	e.persistDiagnostics(ctx, run, logger)
	e.finalize(ctx, run, metastore.StatusCompleted, logger)

	logger.WithFields(log.Fields{
		"validCredits":  run.credit.valid,
		"totalCredits":  run.totalCredits,
		"validPayments": run.payment.valid,
		"totalPayments": run.totalPayments,
		"errors":        run.log.ErrorCount,
	}).Info("sync completed")
	return nil
}

func (e *Engine) mergedSummary(run *syncRun) map[string]interface{} {
	var summary = make(map[string]interface{})
	for kind, count := range run.credit.summary {
		summary[kind] = count
	}
	for kind, count := range run.payment.summary {
		if prev, ok := summary[kind].(int); ok {
			summary[kind] = prev + count
		} else {
			summary[kind] = count
		}
	}
	return summary
}

func (e *Engine) finishLog(ctx context.Context, run *syncRun, status string, summary map[string]interface{}) error {
	var now = time.Now().UTC()
	run.log.Status = status
	run.log.ValidCreditRows = run.credit.valid
	run.log.ValidPaymentRows = run.payment.valid
	run.log.ErrorCount = run.credit.fieldErrors + run.payment.fieldErrors
	run.log.ErrorSummary = summary
	run.log.CompletedAt = &now
	if err := e.meta.FinishSyncLog(ctx, run.log); err != nil {
		return fmt.Errorf("persisting terminal sync log: %w", err)
	}
	return nil
}

// persistDiagnostics bulk-saves error descriptors and captured raw rows.
// Failures here are logged, not fatal: the terminal log row already exists.
func (e *Engine) persistDiagnostics(ctx context.Context, run *syncRun, logger *log.Entry) {
	if err := e.meta.InsertValidationErrors(ctx, run.log.ID, warehouse.FileCredit, run.credit.errors); err != nil {
		logger.WithField("err", err).Warn("failed to persist credit validation errors")
	}
	if err := e.meta.InsertValidationErrors(ctx, run.log.ID, warehouse.FilePaymentPlan, run.payment.errors); err != nil {
		logger.WithField("err", err).Warn("failed to persist payment validation errors")
	}
	if len(run.credit.rawRows) > 0 {
		if err := e.fetcher.StoreFailedRows(ctx, e.tenant.ID, run.loanType, warehouse.FileCredit, run.credit.rawRows); err != nil {
			logger.WithField("err", err).Warn("failed to store failed credit rows")
		}
	}
	if len(run.payment.rawRows) > 0 {
		if err := e.fetcher.StoreFailedRows(ctx, e.tenant.ID, run.loanType, warehouse.FilePaymentPlan, run.payment.rawRows); err != nil {
			logger.WithField("err", err).Warn("failed to store failed payment rows")
		}
	}
}

// finalize performs the terminal side-effects shared by the commit and
// abort paths: configuration upkeep, upload cleanup, telemetry, and cache
// invalidation. All best-effort.
func (e *Engine) finalize(ctx context.Context, run *syncRun, status string, logger *log.Entry) {
	if err := e.meta.UpdateSyncConfig(ctx, run.loanType, status, time.Now().UTC()); err != nil {
		logger.WithField("err", err).Warn("failed to update sync configuration")
	}
	for _, fileType := range []string{warehouse.FileCredit, warehouse.FilePaymentPlan} {
		if err := e.fetcher.ClearUpload(ctx, e.tenant.ID, run.loanType, fileType); err != nil {
			logger.WithFields(log.Fields{"fileType": fileType, "err": err}).Warn("failed to clear upload data")
		}
	}

	syncOperationsTotal.WithLabelValues(e.tenant.ID, run.loanType, status).Inc()
	syncDurationSeconds.WithLabelValues(e.tenant.ID, run.loanType).Observe(time.Since(run.startedAt).Seconds())
	for kind, count := range run.credit.summary {
		validationErrorsTotal.WithLabelValues(e.tenant.ID, kind).Add(float64(count))
	}
	for kind, count := range run.payment.summary {
		validationErrorsTotal.WithLabelValues(e.tenant.ID, kind).Add(float64(count))
	}

	if err := e.caches.AfterSync(ctx, e.tenant.ID, run.loanType); err != nil {
		logger.WithField("err", err).Warn("failed to invalidate caches")
	}
}

// failWithException is the outer error boundary: staging is emptied
// best-effort, the log is closed as FAILED with the exception message, and
// telemetry still fires.
func (e *Engine) failWithException(ctx context.Context, run *syncRun, cause error, logger *log.Entry) {
	logger.WithField("err", cause).Error("sync failed")

	for _, fileType := range []string{warehouse.FileCredit, warehouse.FilePaymentPlan} {
		if err := e.warehouse.TruncateStaging(ctx, fileType); err != nil {
			logger.WithFields(log.Fields{"fileType": fileType, "err": err}).Warn("failed to truncate staging after error")
		}
	}

	var now = time.Now().UTC()
	run.log.Status = metastore.StatusFailed
	run.log.ErrorSummary = map[string]interface{}{"exception": cause.Error()}
	run.log.CompletedAt = &now
	if err := e.meta.FinishSyncLog(ctx, run.log); err != nil {
		logger.WithField("err", err).Error("failed to persist failed sync log")
	}
	if err := e.meta.UpdateSyncConfig(ctx, run.loanType, metastore.StatusFailed, now); err != nil {
		logger.WithField("err", err).Warn("failed to update sync configuration")
	}

	syncOperationsTotal.WithLabelValues(e.tenant.ID, run.loanType, metastore.StatusFailed).Inc()
	syncDurationSeconds.WithLabelValues(e.tenant.ID, run.loanType).Observe(time.Since(run.startedAt).Seconds())

	if err := e.caches.AfterSync(ctx, e.tenant.ID, run.loanType); err != nil {
		logger.WithField("err", err).Warn("failed to invalidate caches")
	}
}
