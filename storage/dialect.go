package storage

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/LucasAro/JuscashCase/domain"
)

// sqliteTimeLayout is fixed width so that text ordering matches time ordering.
const sqliteTimeLayout = "2006-01-02T15:04:05.000Z"

type dialect struct {
	name            string
	like            string
	forUpdate       string
	placeholder     func(n int) string
	timeArg         func(time.Time) any
	dateArg         func(domain.Date) any
	uniqueViolation func(error) bool
	schema          []string
}

var postgresDialect = dialect{
	name:        "postgres",
	like:        "ILIKE",
	forUpdate:   " FOR UPDATE",
	placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	timeArg:     func(t time.Time) any { return t.UTC() },
	dateArg:     func(d domain.Date) any { return d.Time },
	uniqueViolation: func(err error) bool {
		var pgErr *pgconn.PgError
		return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
	},
	schema: []string{
		`CREATE TABLE IF NOT EXISTS documentos (
	id BIGSERIAL PRIMARY KEY,
	arquivo TEXT,
	data_disponibilizacao DATE,
	processo TEXT,
	autores TEXT,
	advogados TEXT,
	valor_principal_bruto_liquido NUMERIC(15, 2),
	valor_juros_moratorios NUMERIC(15, 2),
	valor_honorarios_advocaticios NUMERIC(15, 2),
	paragrafo TEXT,
	reu TEXT,
	status TEXT NOT NULL DEFAULT 'new',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`CREATE INDEX IF NOT EXISTS documentos_status_updated_idx ON documentos (status, updated_at DESC, id DESC)`,
		`CREATE TABLE IF NOT EXISTS users (
	id BIGSERIAL PRIMARY KEY,
	nome TEXT NOT NULL,
	email TEXT NOT NULL UNIQUE,
	senha TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	},
}

var sqliteDialect = dialect{
	name:        "sqlite",
	like:        "LIKE",
	placeholder: func(int) string { return "?" },
	timeArg:     func(t time.Time) any { return t.UTC().Format(sqliteTimeLayout) },
	dateArg:     func(d domain.Date) any { return d.String() },
	uniqueViolation: func(err error) bool {
		var sqliteErr *sqlite.Error
		if !errors.As(err, &sqliteErr) {
			return false
		}
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	},
	schema: []string{
		`CREATE TABLE IF NOT EXISTS documentos (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	arquivo TEXT,
	data_disponibilizacao TEXT,
	processo TEXT,
	autores TEXT,
	advogados TEXT,
	valor_principal_bruto_liquido NUMERIC,
	valor_juros_moratorios NUMERIC,
	valor_honorarios_advocaticios NUMERIC,
	paragrafo TEXT,
	reu TEXT,
	status TEXT NOT NULL DEFAULT 'new',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS documentos_status_updated_idx ON documentos (status, updated_at DESC, id DESC)`,
		`CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	nome TEXT NOT NULL,
	email TEXT NOT NULL UNIQUE,
	senha TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`,
	},
}

// escapeLike escapes the LIKE wildcards of a user supplied term.
func escapeLike(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(term)
}

// timeValue scans timestamps and dates from either backend. pgx hands over
// time.Time values, SQLite hands over text.
type timeValue struct {
	Time  time.Time
	Valid bool
}

var timeLayouts = []string{
	sqliteTimeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

func (v *timeValue) Scan(src any) error {
	switch t := src.(type) {
	case nil:
		v.Time, v.Valid = time.Time{}, false
		return nil
	case time.Time:
		v.Time, v.Valid = t, true
		return nil
	case []byte:
		return v.parse(string(t))
	case string:
		return v.parse(t)
	default:
		return errors.New("storage: unsupported time value")
	}
}

func (v *timeValue) parse(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		v.Time, v.Valid = time.Time{}, false
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			v.Time, v.Valid = t, true
			return nil
		}
	}
	return errors.New("storage: cannot parse time " + strconv.Quote(raw))
}
