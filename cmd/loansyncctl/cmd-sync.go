package main

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/loansync/loansync/cache"
	"github.com/loansync/loansync/ingest"
	"github.com/loansync/loansync/locking"
	"github.com/loansync/loansync/metastore"
	"github.com/loansync/loansync/staging"
	"github.com/loansync/loansync/tenant"
	"github.com/loansync/loansync/warehouse"
)

type cmdSync struct {
	Tenant       string  `long:"tenant" env:"TENANT_ID" required:"true" description:"Tenant identifier"`
	LoanType     string  `long:"loan-type" env:"LOAN_TYPE" required:"true" choice:"RETAIL" choice:"COMMERCIAL" description:"Loan type partition to sync"`
	Wait         bool    `long:"wait" description:"Wait for a concurrent sync to release the lock instead of failing"`
	LockTTL      int     `long:"lock-ttl" env:"SYNC_LOCK_TTL_SECONDS" default:"600" description:"Sync lock TTL in seconds"`
	MaxErrorRate float64 `long:"max-error-rate" env:"MAX_ERROR_RATE" default:"0.5" description:"Invalid-row fraction above which the sync aborts"`
	ChunkSize    int     `long:"chunk-size" env:"CHUNK_SIZE" default:"50000" description:"Rows fetched and validated per chunk"`

	Postgres   postgresOptions   `group:"Postgres" namespace:"pg" env-namespace:"PG"`
	ClickHouse clickhouseOptions `group:"ClickHouse" namespace:"ch" env-namespace:"CLICKHOUSE"`
	Redis      redisOptions      `group:"Redis" namespace:"redis" env-namespace:"REDIS"`
	Log        logOptions        `group:"Logging" namespace:"log" env-namespace:"LOG"`
}

func (cmd cmdSync) Execute(_ []string) error {
	cmd.Log.init()
	var ctx = context.Background()

	shared, err := metastore.Open(ctx, cmd.Postgres.config(), "public")
	if err != nil {
		return err
	}
	defer shared.Close()

	t, err := tenant.NewRegistry(shared.Pool()).Get(ctx, cmd.Tenant)
	if err != nil {
		return err
	}
	var meta = metastore.NewStore(shared.Pool(), t.PGSchema)

	wh, err := warehouse.Open(ctx, cmd.ClickHouse.config(), t.CHDatabase)
	if err != nil {
		return err
	}
	defer wh.Close()

	var rdb = cmd.Redis.client()
	defer rdb.Close()

	var engine = ingest.NewEngine(
		t,
		staging.NewStore(rdb, cmd.ChunkSize),
		wh,
		meta,
		locking.NewMutex(rdb),
		cache.NewInvalidator(rdb),
		ingest.Config{
			MaxErrorRate: cmd.MaxErrorRate,
			LockTTL:      time.Duration(cmd.LockTTL) * time.Second,
		},
	)

	var result = engine.Sync(ctx, cmd.LoanType, cmd.Wait)
	log.WithFields(log.Fields{
		"syncLog": result.ID,
		"status":  result.Status,
	}).Info("sync finished")

	if result.Status != metastore.StatusCompleted {
		return fmt.Errorf("sync %s finished with status %s", result.ID, result.Status)
	}
	return nil
}
