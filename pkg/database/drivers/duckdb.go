//go:build cgo && duckdb && (linux || darwin || windows) && (amd64 || arm64)

// DuckDB talks to its C/C++ engine over CGO, so the driver stays behind a
// build tag to keep default builds CGO-free and cross compilation
// predictable.
//
// Build example:
//
//	CGO_ENABLED=1 go build -tags duckdb
package drivers

import (
	_ "github.com/marcboeker/go-duckdb/v2"
)
