package main

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
)

func main() {
	var parser = flags.NewParser(nil, flags.HelpFlag|flags.PassDoubleDash)

	addCmd(parser, "sync", "Run a sync for one tenant and loan type", `
Run the full sync pipeline for one tenant and loan type: validate and
normalize the staged credit and payment-plan uploads, land them in the
warehouse staging tables, and commit them as an atomic partition swap.
The command exits non-zero unless the sync completes.
`, &cmdSync{})

	addCmd(parser, "provision-tenants", "Provision the tenant registry and metadata schemas", `
Create the shared tenants table, upsert the seed tenants, and create each
tenant's Postgres schema with its sync metadata tables and default sync
configurations.
`, &cmdProvisionTenants{})

	addCmd(parser, "init-warehouse", "Create warehouse databases and tables for all tenants", `
Create each tenant's ClickHouse database with its fact and staging tables.
Idempotent; existing databases and tables are left untouched.
`, &cmdInitWarehouse{})

	addCmd(parser, "row-counts", "Show committed fact-partition row counts", `
Print the number of rows committed to fact_credit and fact_payment for one
tenant and loan type.
`, &cmdRowCounts{})

	addCmd(parser, "failed-rows", "Show raw rows captured from the last failed validation", `
Print the raw uploaded rows that failed validation for one tenant, loan type
and file type, as captured by the most recent sync. Rows expire 24 hours
after capture.
`, &cmdFailedRows{})

	if _, err := parser.Parse(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func addCmd(to interface {
	AddCommand(string, string, string, interface{}) (*flags.Command, error)
}, a, b, c string, iface interface{}) *flags.Command {
	var cmd, err = to.AddCommand(a, b, c, iface)
	if err != nil {
		panic(fmt.Sprintf("failed to add flags parser command: %v", err))
	}
	return cmd
}
