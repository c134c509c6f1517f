package main

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/loansync/loansync/tenant"
	"github.com/loansync/loansync/warehouse"
)

type cmdInitWarehouse struct {
	Tenant string `long:"tenant" env:"TENANT_ID" description:"Limit initialization to one tenant ID"`

	ClickHouse clickhouseOptions `group:"ClickHouse" namespace:"ch" env-namespace:"CLICKHOUSE"`
	Log        logOptions        `group:"Logging" namespace:"log" env-namespace:"LOG"`
}

func (cmd cmdInitWarehouse) Execute(_ []string) error {
	cmd.Log.init()
	var ctx = context.Background()

	for _, t := range tenant.Seeds() {
		if cmd.Tenant != "" && t.ID != cmd.Tenant {
			continue
		}
		if err := warehouse.InitTenant(ctx, cmd.ClickHouse.config(), t.CHDatabase); err != nil {
			return err
		}
		log.WithFields(log.Fields{
			"tenant":   t.ID,
			"database": t.CHDatabase,
		}).Info("initialized warehouse")
	}
	return nil
}
