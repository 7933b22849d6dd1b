// Package history persists a row per transport/session event (play,
// pause, stop, record, time-range, load, save) to a SQL database, so an operator can
// audit how a deployed engine has been driven over time. Grounded on the
// teacher's datastore package picking a driver from conf.Settings
// (internal/datastore/v2/startup.go's sqlite/mysql DSN construction) and
// internal/backup/sources/sqlite.go's direct database/sql + mattn/go-
// sqlite3 usage — adapted down from the teacher's gorm-backed ORM layer
// to plain database/sql, since gorm itself has no other use in this
// engine and a one-table event log doesn't need an ORM.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"github.com/gndl/talkgraph/internal/conf"
)

// Log records engine events to a SQL table, one row per call to Record.
type Log struct {
	db *sql.DB
}

// Open connects (and, for sqlite, creates) the configured history
// database and ensures its single table exists. Returns nil, nil if
// history is disabled in settings.
func Open(s *conf.Settings) (*Log, error) {
	if !s.History.Enabled {
		return nil, nil
	}

	driver, dsn, err := dataSource(s)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", driver, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: ping %s: %w", driver, err)
	}

	idColumn := "id         INTEGER PRIMARY KEY AUTOINCREMENT"
	if driver == "mysql" {
		idColumn = "id         BIGINT PRIMARY KEY AUTO_INCREMENT"
	}
	createTable := `
CREATE TABLE IF NOT EXISTS play_events (
	` + idColumn + `,
	kind       TEXT NOT NULL,
	session    TEXT NOT NULL,
	tick       BIGINT NOT NULL,
	occurred_at TIMESTAMP NOT NULL
)`
	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: create table: %w", err)
	}

	return &Log{db: db}, nil
}

func dataSource(s *conf.Settings) (driver, dsn string, err error) {
	switch s.History.Driver {
	case "", "sqlite":
		return "sqlite3", s.History.SQLite.Path, nil
	case "mysql":
		cfg := mysql.Config{
			User:   s.History.MySQL.User,
			Passwd: s.History.MySQL.Password,
			Net:    "tcp",
			Addr:   fmt.Sprintf("%s:%s", s.History.MySQL.Host, s.History.MySQL.Port),
			DBName: s.History.MySQL.Database,
			Params: map[string]string{
				"parseTime": "True",
				"loc":       "Local",
			},
		}
		return "mysql", cfg.FormatDSN(), nil
	default:
		return "", "", fmt.Errorf("history: unknown driver %q", s.History.Driver)
	}
}

// Record inserts one event row. kind is a short event tag ("play",
// "stop", "load", ...); sessionPath and tick identify what was playing.
func (l *Log) Record(ctx context.Context, kind, sessionPath string, tick int64) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO play_events (kind, session, tick, occurred_at) VALUES (?, ?, ?, ?)`,
		kind, sessionPath, tick, time.Now().UTC())
	return err
}

// Close releases the underlying database connection.
func (l *Log) Close() error {
	return l.db.Close()
}
