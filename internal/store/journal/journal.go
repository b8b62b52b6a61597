// Package journal keeps the history of evaluations and transitions in SQL.
// SQLite (WAL mode) is the default; a postgres:// DSN selects PostgreSQL.
package journal

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

type dialect struct {
	driver string
	idCol  string
	real   string
}

var (
	sqliteDialect   = dialect{driver: "sqlite3", idCol: "id INTEGER PRIMARY KEY AUTOINCREMENT", real: "REAL"}
	postgresDialect = dialect{driver: "postgres", idCol: "id BIGSERIAL PRIMARY KEY", real: "DOUBLE PRECISION"}
)

// Store reads and writes the journal tables.
type Store struct {
	db      *sqlx.DB
	dialect dialect
	log     *slog.Logger
}

// Open connects to dsn and creates the schema. dsn is either a SQLite file
// path or a postgres:// (postgresql://) URL.
func Open(ctx context.Context, dsn string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	d := sqliteDialect
	source := dsn + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		d = postgresDialect
		source = dsn
	}

	db, err := sqlx.Open(d.driver, source)
	if err != nil {
		return nil, fmt.Errorf("journal open: %w", err)
	}
	if d == sqliteDialect {
		// Single writer
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal ping: %w", err)
	}

	s := &Store{db: db, dialect: d, log: log}
	if err := s.createSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}
	log.Info("journal opened", "driver", d.driver)
	return s, nil
}

func (s *Store) createSchema(ctx context.Context) error {
	r := s.dialect.real
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS evaluations (
			` + s.dialect.idCol + `,
			cycle_id    TEXT    NOT NULL,
			cycle_kind  TEXT    NOT NULL,
			symbol      TEXT    NOT NULL,
			resolution  TEXT    NOT NULL,
			state       TEXT    NOT NULL,
			price       ` + r + ` NOT NULL,
			volume      ` + r + ` NOT NULL,
			rsi         ` + r + `,
			macd        ` + r + `,
			macd_signal ` + r + `,
			ema20       ` + r + `,
			ema50       ` + r + `,
			sma20       ` + r + `,
			support     ` + r + `,
			resistance  ` + r + `,
			liquidity   ` + r + `,
			bar_ts      BIGINT  NOT NULL,
			recorded_at BIGINT  NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_evaluations_symbol ON evaluations (symbol, id)`,
		`CREATE TABLE IF NOT EXISTS transitions (
			id          TEXT    PRIMARY KEY,
			symbol      TEXT    NOT NULL,
			resolution  TEXT    NOT NULL,
			previous    TEXT,
			state       TEXT    NOT NULL,
			price       ` + r + ` NOT NULL,
			explanation TEXT    NOT NULL,
			at          BIGINT  NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transitions_at ON transitions (at)`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// Ping checks the connection (health checks).
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }
