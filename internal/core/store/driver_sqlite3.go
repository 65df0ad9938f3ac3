//go:build sqlite3

package store

import (
	_ "github.com/mattn/go-sqlite3"
)

// localDriver is the embedded SQLite engine linked into this build.
// Build with -tags sqlite3 to use mattn/go-sqlite3 instead of libsql.
const localDriver = driverSQLite3
