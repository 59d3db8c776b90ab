package sqlstore

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/mattn/go-sqlite3"
)

// Dialect names a supported database.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

type dialect struct {
	driver        string
	goose         string
	migrationsDir string
	numbered      bool
	unique        func(error) bool
}

var dialects = map[Dialect]dialect{
	DialectSQLite: {
		driver:        "sqlite3",
		goose:         "sqlite3",
		migrationsDir: "migrations/sqlite",
		unique:        sqliteUniqueViolation,
	},
	DialectPostgres: {
		driver:        "pgx",
		goose:         "postgres",
		migrationsDir: "migrations/postgres",
		numbered:      true,
		unique:        postgresUniqueViolation,
	},
}

func lookupDialect(d Dialect) (dialect, error) {
	dl, ok := dialects[d]
	if !ok {
		return dialect{}, fmt.Errorf("unsupported dialect %q", d)
	}
	return dl, nil
}

// rebind rewrites "?" placeholders to "$n" for dialects that number them.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func sqliteUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func postgresUniqueViolation(err error) bool {
	var pe *pgconn.PgError
	return errors.As(err, &pe) && pe.Code == "23505"
}
