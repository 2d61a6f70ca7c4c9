package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"github.com/xo/dburl"
	_ "modernc.org/sqlite"
)

const (
	// DefaultPageSize is used when a cursor carries no limit.
	DefaultPageSize = 30
	// MaxSearchResults caps the flat search endpoint.
	MaxSearchResults = 500
)

// Store persists publications and users in Postgres or SQLite.
type Store struct {
	db      database
	dialect dialect
	log     *log.Logger
}

// Open connects to the database named by rawURL and applies the schema.
// Supported schemes are postgres:// and sqlite:, e.g. sqlite:publications.db
// or sqlite::memory:.
func Open(ctx context.Context, rawURL string, logger *log.Logger) (*Store, error) {
	const op = "storage.Open"

	if logger == nil {
		logger = log.StandardLogger()
	}
	u, err := dburl.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var s *Store
	switch u.Driver {
	case "postgres":
		dsn := u.DSN
		if strings.HasPrefix(rawURL, "postgres://") || strings.HasPrefix(rawURL, "postgresql://") {
			dsn = rawURL
		}
		s, err = openPostgres(ctx, dsn, logger)
	case "sqlite3":
		s, err = openSQLite(ctx, sqlitePath(u), logger)
	default:
		err = fmt.Errorf("unsupported database scheme %q", u.Scheme)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	logger.WithFields(log.Fields{"backend": s.dialect.name}).Info("record store ready")
	return s, nil
}

func openPostgres(ctx context.Context, dsn string, logger *log.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{db: newPgxDB(pool), dialect: postgresDialect, log: logger}, nil
}

func sqlitePath(u *dburl.URL) string {
	if u.DSN != "" {
		return u.DSN
	}
	if u.Opaque != "" {
		return u.Opaque
	}
	return u.Path
}

func openSQLite(ctx context.Context, path string, logger *log.Logger) (*Store, error) {
	memory := strings.HasPrefix(path, ":memory:")
	if !memory {
		if dir := filepath.Dir(strings.SplitN(path, "?", 2)[0]); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating db directory: %w", err)
			}
		}
	}

	dsn := "file:" + path
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn += sep + "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if memory {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: newSQLDB(db), dialect: sqliteDialect, log: logger}, nil
}

// Migrate creates the tables and indexes when they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	const op = "storage.Migrate"

	for _, stmt := range s.dialect.schema {
		if _, err := s.db.exec(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil
}

// Backend names the database engine in use.
func (s *Store) Backend() string { return s.dialect.name }

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.ping(ctx)
}

// Close releases the underlying connections.
func (s *Store) Close() {
	s.db.close()
}
