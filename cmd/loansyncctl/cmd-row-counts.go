package main

import (
	"context"
	"fmt"

	"github.com/loansync/loansync/metastore"
	"github.com/loansync/loansync/tenant"
	"github.com/loansync/loansync/warehouse"
)

type cmdRowCounts struct {
	Tenant   string `long:"tenant" env:"TENANT_ID" required:"true" description:"Tenant identifier"`
	LoanType string `long:"loan-type" env:"LOAN_TYPE" required:"true" choice:"RETAIL" choice:"COMMERCIAL" description:"Loan type partition"`

	Postgres   postgresOptions   `group:"Postgres" namespace:"pg" env-namespace:"PG"`
	ClickHouse clickhouseOptions `group:"ClickHouse" namespace:"ch" env-namespace:"CLICKHOUSE"`
	Log        logOptions        `group:"Logging" namespace:"log" env-namespace:"LOG"`
}

func (cmd cmdRowCounts) Execute(_ []string) error {
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

	wh, err := warehouse.Open(ctx, cmd.ClickHouse.config(), t.CHDatabase)
	if err != nil {
		return err
	}
	defer wh.Close()

	for _, fileType := range []string{warehouse.FileCredit, warehouse.FilePaymentPlan} {
		count, err := wh.CountRows(ctx, fileType, cmd.LoanType)
		if err != nil {
			return err
		}
		fmt.Printf("%s\t%s\t%d\n", cmd.LoanType, fileType, count)
	}
	return nil
}
