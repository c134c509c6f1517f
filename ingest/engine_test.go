package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/loansync/loansync/locking"
	"github.com/loansync/loansync/metastore"
	"github.com/loansync/loansync/tenant"
	"github.com/loansync/loansync/validate"
	"github.com/loansync/loansync/warehouse"
)

type fakeFetcher struct {
	rows      map[string][]map[string]string
	failed    map[string][]map[string]string
	cleared   []string
	chunkSize int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		rows:   make(map[string][]map[string]string),
		failed: make(map[string][]map[string]string),
	}
}

func (f *fakeFetcher) RowCount(_ context.Context, _, _, fileType string) (int, error) {
	return len(f.rows[fileType]), nil
}

func (f *fakeFetcher) Iterate(_ context.Context, _, _, fileType string, fn func(rows []map[string]string) error) error {
	var rows = f.rows[fileType]
	var chunk = f.chunkSize
	if chunk <= 0 {
		chunk = len(rows)
	}
	for start := 0; start < len(rows); start += chunk {
		var end = min(start+chunk, len(rows))
		if err := fn(rows[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeFetcher) StoreFailedRows(_ context.Context, _, _, fileType string, rows []map[string]string) error {
	f.failed[fileType] = append(f.failed[fileType], rows...)
	return nil
}

func (f *fakeFetcher) ClearUpload(_ context.Context, _, _, fileType string) error {
	f.cleared = append(f.cleared, fileType)
	return nil
}

type fakeWarehouse struct {
	stagingCredits  []warehouse.CreditRow
	stagingPayments []warehouse.PaymentRow
	factCredits     []warehouse.CreditRow
	factPayments    []warehouse.PaymentRow
	existing        map[string]struct{}

	distinctErr     error
	insertCreditErr error
	replaced        []string
}

func (w *fakeWarehouse) TruncateStaging(_ context.Context, fileType string) error {
	switch fileType {
	case warehouse.FileCredit:
		w.stagingCredits = nil
	case warehouse.FilePaymentPlan:
		w.stagingPayments = nil
	}
	return nil
}

func (w *fakeWarehouse) InsertCredits(_ context.Context, rows []warehouse.CreditRow) error {
	if w.insertCreditErr != nil {
		return w.insertCreditErr
	}
	w.stagingCredits = append(w.stagingCredits, rows...)
	return nil
}

func (w *fakeWarehouse) InsertPayments(_ context.Context, rows []warehouse.PaymentRow) error {
	w.stagingPayments = append(w.stagingPayments, rows...)
	return nil
}

func (w *fakeWarehouse) ReplacePartition(_ context.Context, fileType, _ string) error {
	w.replaced = append(w.replaced, fileType)
	switch fileType {
	case warehouse.FileCredit:
		w.factCredits = append([]warehouse.CreditRow(nil), w.stagingCredits...)
	case warehouse.FilePaymentPlan:
		w.factPayments = append([]warehouse.PaymentRow(nil), w.stagingPayments...)
	}
	return nil
}

func (w *fakeWarehouse) DistinctLoanIDs(_ context.Context, _ string) (map[string]struct{}, error) {
	if w.distinctErr != nil {
		return nil, w.distinctErr
	}
	return w.existing, nil
}

type fakeMeta struct {
	created      []*metastore.SyncLog
	statuses     []string
	finished     *metastore.SyncLog
	errsByFile   map[string][]validate.Error
	configStatus string
}

func newFakeMeta() *fakeMeta {
	return &fakeMeta{errsByFile: make(map[string][]validate.Error)}
}

func (m *fakeMeta) CreateSyncLog(_ context.Context, l *metastore.SyncLog) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	l.StartedAt = time.Now().UTC()
	m.created = append(m.created, l)
	return nil
}

func (m *fakeMeta) UpdateSyncLogStatus(_ context.Context, _ uuid.UUID, status string) error {
	m.statuses = append(m.statuses, status)
	return nil
}

func (m *fakeMeta) UpdateSyncLogTotals(_ context.Context, _ uuid.UUID, _, _ int) error {
	return nil
}

func (m *fakeMeta) FinishSyncLog(_ context.Context, l *metastore.SyncLog) error {
	var cp = *l
	m.finished = &cp
	return nil
}

func (m *fakeMeta) InsertValidationErrors(_ context.Context, _ uuid.UUID, fileType string, errs []validate.Error) error {
	m.errsByFile[fileType] = append(m.errsByFile[fileType], errs...)
	return nil
}

func (m *fakeMeta) UpdateSyncConfig(_ context.Context, _, status string, _ time.Time) error {
	m.configStatus = status
	return nil
}

type fakeLocker struct {
	freeAfter int
	attempts  int
	released  int
	err       error
}

func (l *fakeLocker) Acquire(_ context.Context, _, _, _ string, _ time.Duration) error {
	if l.err != nil {
		return l.err
	}
	l.attempts++
	if l.attempts > l.freeAfter {
		return nil
	}
	return locking.ErrNotAcquired
}

func (l *fakeLocker) Release(_ context.Context, _, _ string) error {
	l.released++
	return nil
}

type fakeCache struct{ invalidated int }

func (c *fakeCache) AfterSync(_ context.Context, _, _ string) error {
	c.invalidated++
	return nil
}

type testHarness struct {
	fetcher *fakeFetcher
	wh      *fakeWarehouse
	meta    *fakeMeta
	locker  *fakeLocker
	cache   *fakeCache
	engine  *Engine
}

func newHarness(cfg Config) *testHarness {
	var h = &testHarness{
		fetcher: newFakeFetcher(),
		wh:      &fakeWarehouse{},
		meta:    newFakeMeta(),
		locker:  &fakeLocker{},
		cache:   &fakeCache{},
	}
	var t = tenant.Tenant{ID: "BANK001", PGSchema: "bank001", CHDatabase: "bank001_dw"}
	h.engine = NewEngine(t, h.fetcher, h.wh, h.meta, h.locker, h.cache, cfg)
	return h
}

func validCredit(loanID string) map[string]string {
	return map[string]string{
		"loan_account_number":           loanID,
		"customer_id":                   "CUST01",
		"customer_type":                 "I",
		"loan_status_code":              "A",
		"original_loan_amount":          "100000",
		"outstanding_principal_balance": "75000",
		"nominal_interest_rate":         "5.14",
		"total_installment_count":       "36",
		"final_maturity_date":           "20261231",
	}
}

func validPayment(loanID string, n int) map[string]string {
	return map[string]string{
		"loan_account_number":    loanID,
		"installment_number":     strconv.Itoa(n),
		"installment_amount":     "2500.50",
		"principal_component":    "2000",
		"installment_status":     "K",
		"scheduled_payment_date": "2026-01-15",
	}
}

func TestSyncHappyPath(t *testing.T) {
	var h = newHarness(Config{})
	h.fetcher.rows[warehouse.FileCredit] = []map[string]string{validCredit("TR001")}
	h.fetcher.rows[warehouse.FilePaymentPlan] = []map[string]string{validPayment("TR001", 1)}

	var l = h.engine.Sync(context.Background(), LoanRetail, false)

	require.Equal(t, metastore.StatusCompleted, l.Status)
	require.Equal(t, 1, l.TotalCreditRows)
	require.Equal(t, 1, l.ValidCreditRows)
	require.Equal(t, 1, l.ValidPaymentRows)
	require.Equal(t, 0, l.ErrorCount)
	require.NotNil(t, l.CompletedAt)

	require.ElementsMatch(t, []string{warehouse.FileCredit, warehouse.FilePaymentPlan}, h.wh.replaced)
	require.Empty(t, h.wh.stagingCredits)
	require.Empty(t, h.wh.stagingPayments)
	require.Len(t, h.wh.factCredits, 1)

	var row = h.wh.factCredits[0]
	require.Equal(t, "INDIVIDUAL", row.CustomerType)
	require.Equal(t, "ACTIVE", row.LoanStatusCode)
	require.True(t, decimal.NewFromFloat(0.0514).Equal(row.NominalInterestRate),
		"rate %s", row.NominalInterestRate)
	require.NotNil(t, row.FinalMaturityDate)
	require.Equal(t, "2026-12-31", row.FinalMaturityDate.Format("2006-01-02"))
	require.Equal(t, uint32(1), row.InstallmentFrequency)

	require.Equal(t, "CLOSED", h.wh.factPayments[0].InstallmentStatus)

	require.ElementsMatch(t, []string{warehouse.FileCredit, warehouse.FilePaymentPlan}, h.fetcher.cleared)
	require.Equal(t, metastore.StatusCompleted, h.meta.configStatus)
	require.Equal(t, 1, h.cache.invalidated)
	require.Equal(t, 1, h.locker.released)
}

func TestSyncConcurrentRejected(t *testing.T) {
	var h = newHarness(Config{})
	h.locker.freeAfter = 100
	h.fetcher.rows[warehouse.FileCredit] = []map[string]string{validCredit("TR001")}

	var l = h.engine.Sync(context.Background(), LoanRetail, false)

	require.Equal(t, metastore.StatusFailed, l.Status)
	require.Equal(t, "Concurrent sync in progress", l.ErrorSummary["reason"])
	require.Empty(t, h.wh.factCredits)
	require.Empty(t, h.fetcher.cleared, "upload data must survive a rejected sync")
	require.Zero(t, h.locker.released)
}

func TestSyncLockStoreErrorRecordsException(t *testing.T) {
	var h = newHarness(Config{})
	h.locker.err = errors.New("lock store unreachable")
	h.fetcher.rows[warehouse.FileCredit] = []map[string]string{validCredit("TR001")}

	var l = h.engine.Sync(context.Background(), LoanRetail, false)

	require.Equal(t, metastore.StatusFailed, l.Status)
	require.Contains(t, l.ErrorSummary["exception"], "lock store unreachable")
	require.NotContains(t, l.ErrorSummary, "reason", "a lock store failure is not contention")
	require.Empty(t, h.wh.factCredits)
}

func TestSyncWaitsForLock(t *testing.T) {
	var h = newHarness(Config{LockPoll: time.Millisecond, LockTTL: time.Second})
	h.locker.freeAfter = 2
	h.fetcher.rows[warehouse.FileCredit] = []map[string]string{validCredit("TR001")}

	var l = h.engine.Sync(context.Background(), LoanRetail, true)

	require.Equal(t, metastore.StatusCompleted, l.Status)
	require.Equal(t, 3, h.locker.attempts)
}

func TestSyncOrphanPaymentAborts(t *testing.T) {
	var h = newHarness(Config{})
	h.fetcher.rows[warehouse.FilePaymentPlan] = []map[string]string{validPayment("TR999", 1)}

	var l = h.engine.Sync(context.Background(), LoanRetail, false)

	require.Equal(t, metastore.StatusFailed, l.Status)
	require.Contains(t, l.ErrorSummary["reason"], "old data preserved")
	require.Equal(t, 1, l.ErrorSummary[validate.ErrCrossReference])
	require.Equal(t, 1, l.ErrorCount)
	require.Empty(t, h.wh.replaced, "no partition swap on abort")
	require.Empty(t, h.wh.stagingPayments, "staging truncated on abort")

	require.Len(t, h.meta.errsByFile[warehouse.FilePaymentPlan], 1)
	require.Equal(t, "loan_account_number TR999 not found in credit records",
		h.meta.errsByFile[warehouse.FilePaymentPlan][0].Message)
	require.Len(t, h.fetcher.failed[warehouse.FilePaymentPlan], 1)

	require.ElementsMatch(t, []string{warehouse.FileCredit, warehouse.FilePaymentPlan}, h.fetcher.cleared)
	require.Equal(t, metastore.StatusFailed, h.meta.configStatus)
	require.Equal(t, 1, h.cache.invalidated)
}

func TestSyncExactlyHalfInvalidCommits(t *testing.T) {
	var h = newHarness(Config{})
	var bad = validCredit("TR002")
	bad["customer_type"] = "X"
	h.fetcher.rows[warehouse.FileCredit] = []map[string]string{validCredit("TR001"), bad}

	var l = h.engine.Sync(context.Background(), LoanRetail, false)

	require.Equal(t, metastore.StatusCompleted, l.Status, "gate is strict greater-than")
	require.Equal(t, 1, l.ValidCreditRows)
	require.Len(t, h.wh.factCredits, 1)
}

func TestSyncCrossCheckAgainstWarehouseLoans(t *testing.T) {
	var h = newHarness(Config{})
	h.wh.existing = map[string]struct{}{"TR777": {}}
	h.fetcher.rows[warehouse.FilePaymentPlan] = []map[string]string{validPayment("TR777", 1)}

	var l = h.engine.Sync(context.Background(), LoanRetail, false)

	require.Equal(t, metastore.StatusCompleted, l.Status)
	require.Equal(t, 1, l.ValidPaymentRows)
}

func TestSyncDistinctLoanFailureFallsBackToBatch(t *testing.T) {
	var h = newHarness(Config{})
	h.wh.distinctErr = errors.New("clickhouse timeout")
	h.fetcher.rows[warehouse.FileCredit] = []map[string]string{
		validCredit("TR001"), validCredit("TR002"), validCredit("TR003"),
	}
	h.fetcher.rows[warehouse.FilePaymentPlan] = []map[string]string{
		validPayment("TR001", 1),
		validPayment("TR777", 1), // only in the warehouse, unreachable now
	}

	var l = h.engine.Sync(context.Background(), LoanRetail, false)

	require.Equal(t, metastore.StatusCompleted, l.Status)
	require.Equal(t, 3, l.ValidCreditRows)
	require.Equal(t, 1, l.ValidPaymentRows)
	require.Equal(t, 1, l.ErrorSummary[validate.ErrCrossReference])
}

func TestSyncFailedRowBufferCapped(t *testing.T) {
	var h = newHarness(Config{MaxFailedRows: 2, MaxStoredErrors: 3})
	var rows []map[string]string
	rows = append(rows, validCredit("TR001"))
	for i := 0; i < 5; i++ {
		var bad = validCredit(fmt.Sprintf("TR90%d", i))
		bad["customer_type"] = "X"
		bad["loan_status_code"] = "Z"
		rows = append(rows, bad)
	}
	h.fetcher.rows[warehouse.FileCredit] = rows

	var l = h.engine.Sync(context.Background(), LoanRetail, false)

	require.Equal(t, metastore.StatusFailed, l.Status)
	require.Equal(t, 10, l.ErrorCount, "counters keep counting past the buffer caps")
	require.Equal(t, 10, l.ErrorSummary[validate.ErrValue])
	require.Len(t, h.fetcher.failed[warehouse.FileCredit], 2)
	require.Len(t, h.meta.errsByFile[warehouse.FileCredit], 3)
}

func TestSyncEmptyDataset(t *testing.T) {
	var h = newHarness(Config{})

	var l = h.engine.Sync(context.Background(), LoanRetail, false)

	require.Equal(t, metastore.StatusCompleted, l.Status)
	require.Zero(t, l.TotalCreditRows)
	require.Empty(t, h.wh.replaced, "no partition swap for empty staging")
	require.Equal(t, 1, h.cache.invalidated)
}

func TestSyncInsertFailureRecordsException(t *testing.T) {
	var h = newHarness(Config{})
	h.wh.insertCreditErr = errors.New("connection reset")
	h.fetcher.rows[warehouse.FileCredit] = []map[string]string{validCredit("TR001")}

	var l = h.engine.Sync(context.Background(), LoanRetail, false)

	require.Equal(t, metastore.StatusFailed, l.Status)
	require.Contains(t, l.ErrorSummary["exception"], "connection reset")
	require.Empty(t, h.wh.stagingCredits)
	require.Empty(t, h.fetcher.cleared, "upload data survives an exception for retry")
	require.Equal(t, metastore.StatusFailed, h.meta.configStatus)
	require.Equal(t, 1, h.locker.released)
}

func TestSyncChunkedProcessing(t *testing.T) {
	var h = newHarness(Config{})
	h.fetcher.chunkSize = 2
	var rows []map[string]string
	for i := 0; i < 5; i++ {
		rows = append(rows, validCredit(fmt.Sprintf("TR%03d", i)))
	}
	h.fetcher.rows[warehouse.FileCredit] = rows
	h.fetcher.rows[warehouse.FilePaymentPlan] = []map[string]string{validPayment("TR004", 1)}

	var l = h.engine.Sync(context.Background(), LoanRetail, false)

	require.Equal(t, metastore.StatusCompleted, l.Status)
	require.Equal(t, 5, l.ValidCreditRows)
	require.Equal(t, 1, l.ValidPaymentRows, "cross-check sees loans from every chunk")
	require.Len(t, h.wh.factCredits, 5)
}
