package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/loansync/loansync/staging"
)

type cmdFailedRows struct {
	Tenant   string `long:"tenant" env:"TENANT_ID" required:"true" description:"Tenant identifier"`
	LoanType string `long:"loan-type" env:"LOAN_TYPE" required:"true" choice:"RETAIL" choice:"COMMERCIAL" description:"Loan type"`
	FileType string `long:"file-type" default:"credit" choice:"credit" choice:"payment_plan" description:"File type to inspect"`
	Clear    bool   `long:"clear" description:"Delete the captured rows after printing"`

	Redis redisOptions `group:"Redis" namespace:"redis" env-namespace:"REDIS"`
	Log   logOptions   `group:"Logging" namespace:"log" env-namespace:"LOG"`
}

func (cmd cmdFailedRows) Execute(_ []string) error {
	cmd.Log.init()
	var ctx = context.Background()

	var rdb = cmd.Redis.client()
	defer rdb.Close()
	var store = staging.NewStore(rdb, 0)

	rows, err := store.FailedRows(ctx, cmd.Tenant, cmd.LoanType, cmd.FileType)
	if err != nil {
		return err
	}

	var enc = json.NewEncoder(os.Stdout)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return err
		}
	}

	if cmd.Clear {
		return store.ClearFailed(ctx, cmd.Tenant, cmd.LoanType, cmd.FileType)
	}
	return nil
}
