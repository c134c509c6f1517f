package main

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/loansync/loansync/metastore"
	"github.com/loansync/loansync/tenant"
)

type cmdProvisionTenants struct {
	Postgres postgresOptions `group:"Postgres" namespace:"pg" env-namespace:"PG"`
	Log      logOptions      `group:"Logging" namespace:"log" env-namespace:"LOG"`
}

func (cmd cmdProvisionTenants) Execute(_ []string) error {
	cmd.Log.init()
	var ctx = context.Background()

	shared, err := metastore.Open(ctx, cmd.Postgres.config(), "public")
	if err != nil {
		return err
	}
	defer shared.Close()

	var registry = tenant.NewRegistry(shared.Pool())
	if err := registry.EnsureTable(ctx); err != nil {
		return err
	}

	for _, t := range tenant.Seeds() {
		if err := registry.Upsert(ctx, t); err != nil {
			return err
		}
		var meta = metastore.NewStore(shared.Pool(), t.PGSchema)
		if err := meta.EnsureSchema(ctx); err != nil {
			return err
		}
		if err := meta.SeedSyncConfigs(ctx, t.ExternalURL); err != nil {
			return err
		}
		log.WithFields(log.Fields{
			"tenant": t.ID,
			"schema": t.PGSchema,
		}).Info("provisioned tenant")
	}
	return nil
}
