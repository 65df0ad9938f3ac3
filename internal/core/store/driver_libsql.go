//go:build !sqlite3

package store

// localDriver is the embedded SQLite engine linked into this build. libsql and
// mattn/go-sqlite3 both export the sqlite3 C symbols, so only one is linked.
const localDriver = driverLibsql
