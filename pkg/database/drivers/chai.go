package drivers

import (
	"database/sql"
	"database/sql/driver"

	sqlite "modernc.org/sqlite"
)

// init wires up the "chai" driver name so callers can request it via
// database/sql.  Chai stores data in SQLite-compatible files, so reusing the
// modernc backend keeps the build simple and CGO-free.
func init() {
	sql.Register("chai", newChaiDriver())
}

// newChaiDriver returns a driver.Driver backed by modernc SQLite.  The
// helper keeps the registration explicit and testable in isolation.
func newChaiDriver() driver.Driver {
	return &sqlite.Driver{}
}
