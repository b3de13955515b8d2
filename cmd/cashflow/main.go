/*
main.go - Application entry point

PURPOSE:
  Runs the cashflow CLI. The HTTP server is the "serve" subcommand.

EXAMPLES:
  # Run the API on an in-memory ledger
  ./cashflow serve --db-driver=memory

  # Run with a config file
  ./cashflow serve --config=cashflow.yaml

  # Project six months ahead for an owner
  ./cashflow project --owner=alice --months=6

  # Price a payment made 30 days early
  ./cashflow anticipate --face=1000 --due=2024-06-30 --paid=2024-05-31 --rate=0.0002

ENVIRONMENT:
  CASHFLOW_PORT, CASHFLOW_DB_DRIVER, CASHFLOW_DB_DSN, LOG_LEVEL and
  CASHFLOW_SMTP_* override the config file.

SEE ALSO:
  - commands/: Subcommands
  - api/server.go: Router configuration
*/
package main

import (
	"os"

	"github.com/warp/cashflow-engine/commands"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
