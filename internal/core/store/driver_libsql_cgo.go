//go:build cgo && !sqlite3

package store

import (
	_ "github.com/tursodatabase/go-libsql"
)
