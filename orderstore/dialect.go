package orderstore

import (
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// DialectOf reports the SQL dialect behind db.
func DialectOf(db bun.IDB) dialect.Name {
	return db.Dialect().Name()
}

// Concat joins SQL expressions as strings.
func Concat(d dialect.Name, parts ...string) string {
	switch d {
	case dialect.SQLite:
		return "(" + strings.Join(parts, " || ") + ")"
	default:
		return "CONCAT(" + strings.Join(parts, ", ") + ")"
	}
}

// NumericCast converts a text expression to a number for comparisons.
func NumericCast(d dialect.Name, expr string) string {
	switch d {
	case dialect.SQLite:
		return "CAST(" + expr + " AS REAL)"
	case dialect.MySQL:
		return "CAST(" + expr + " AS DECIMAL(12,2))"
	default:
		return "CAST(" + expr + " AS NUMERIC)"
	}
}

// GroupConcat aggregates expr per group, ordered by orderBy and joined with
// sep. SQLite ignores orderBy; callers feed it pre-ordered rows.
func GroupConcat(d dialect.Name, expr, orderBy, sep string) string {
	quoted := "'" + strings.ReplaceAll(sep, "'", "''") + "'"
	switch d {
	case dialect.SQLite:
		return "group_concat(" + expr + ", " + quoted + ")"
	case dialect.MySQL:
		return "GROUP_CONCAT(" + expr + " ORDER BY " + orderBy + " SEPARATOR " + quoted + ")"
	default:
		return "string_agg(" + expr + ", " + quoted + " ORDER BY " + orderBy + ")"
	}
}

// TextCast renders a non-text expression as text.
func TextCast(d dialect.Name, expr string) string {
	switch d {
	case dialect.MySQL:
		return "CAST(" + expr + " AS CHAR)"
	default:
		return "CAST(" + expr + " AS TEXT)"
	}
}
