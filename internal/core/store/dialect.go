package store

import (
	"fmt"
	"strings"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
	dialectMySQL
)

func (d dialect) String() string {
	switch d {
	case dialectPostgres:
		return "postgres"
	case dialectMySQL:
		return "mysql"
	default:
		return "sqlite"
	}
}

// keyColumn quotes the "key" column, which MySQL reserves.
func (d dialect) keyColumn() string {
	if d == dialectMySQL {
		return "`key`"
	}
	return `"key"`
}

// nullSafeEq compares a column to a placeholder treating NULL as equal to NULL.
func (d dialect) nullSafeEq(column string) string {
	switch d {
	case dialectPostgres:
		return column + " IS NOT DISTINCT FROM ?"
	case dialectMySQL:
		return column + " <=> ?"
	default:
		return column + " IS ?"
	}
}

// rebind converts ? placeholders to $1, $2, ... for postgres.
func (d dialect) rebind(query string) string {
	if d != dialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	paramNum := 1
	for _, c := range query {
		if c == '?' {
			fmt.Fprintf(&b, "$%d", paramNum)
			paramNum++
		} else {
			b.WriteRune(c)
		}
	}
	return b.String()
}

func (d dialect) createTableSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		%s VARCHAR(128) PRIMARY KEY,
		val TEXT,
		ival BIGINT
	)`, table, d.keyColumn())
}

func (d dialect) upsertSQL(table string) string {
	key := d.keyColumn()
	if d == dialectMySQL {
		return fmt.Sprintf(`INSERT INTO %s (%s, val, ival) VALUES (?, ?, ?)
			ON DUPLICATE KEY UPDATE val = VALUES(val), ival = VALUES(ival)`, table, key)
	}
	return d.rebind(fmt.Sprintf(`INSERT INTO %s (%s, val, ival) VALUES (?, ?, ?)
		ON CONFLICT(%s) DO UPDATE SET val = excluded.val, ival = excluded.ival`, table, key, key))
}

func (d dialect) insertIfAbsentSQL(table string) string {
	key := d.keyColumn()
	if d == dialectMySQL {
		return fmt.Sprintf(`INSERT IGNORE INTO %s (%s, val, ival) VALUES (?, ?, ?)`, table, key)
	}
	return d.rebind(fmt.Sprintf(`INSERT INTO %s (%s, val, ival) VALUES (?, ?, ?)
		ON CONFLICT(%s) DO NOTHING`, table, key, key))
}

func (d dialect) swapSQL(table string) string {
	return d.rebind(fmt.Sprintf(`UPDATE %s SET val = ?, ival = ? WHERE %s = ? AND %s AND %s`,
		table, d.keyColumn(), d.nullSafeEq("val"), d.nullSafeEq("ival")))
}

// likeEscape escapes LIKE wildcards so a prefix matches literally.
func likeEscape(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix)
}
