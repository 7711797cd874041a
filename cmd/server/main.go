/*
main.go - Application entry point

PURPOSE:
  Starts the accrual engine CLI. All behaviour lives in cobra commands:

  serve      HTTP API over the SQLite store
  consume    Kafka change-event consumer
  calculate  One-shot recalculation from a JSON file

CONFIGURATION:
  $HOME/.accrual-engine.yaml or --config, overridden by ACCRUAL_* env vars
  and command flags. See config/config.go for every key.

EXAMPLES:
  # API on a file database
  accrual-engine serve --db ./data/accruals.db

  # API on an in-memory database, demo scenarios enabled
  accrual-engine serve --db :memory:

  # Consumer writing through a remote API
  ACCRUAL_BALANCE_API_BASE_URL=http://accruals:8080 accrual-engine consume

  # Dry-run one change
  accrual-engine calculate --file change.json --dry-run

SEE ALSO:
  - root.go: Config and logging setup
  - wiring.go: Component construction shared by the commands
*/
package main

func main() {
	Execute()
}
