// Command statetable serves named in-memory record tables.
package main

import (
	"os"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/stevemurr/state-table-server/cli"
)

func main() {
	os.Exit(cli.Execute())
}
