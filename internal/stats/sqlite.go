package stats

import (
	"database/sql"
	"log"
	"time"

	_ "modernc.org/sqlite"
)

// NewSQLite opens (or creates) an event log at dbPath.
func NewSQLite(dbPath string, retention time.Duration) (Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS lookup_events (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			at         INTEGER NOT NULL,
			identity   TEXT    NOT NULL,
			number     TEXT    NOT NULL,
			outcome    TEXT    NOT NULL,
			cached     BOOLEAN NOT NULL,
			asn        INTEGER NOT NULL,
			asn_org    TEXT    NOT NULL,
			hosting    BOOLEAN NOT NULL,
			latency_ms INTEGER NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_lookup_events_at ON lookup_events(at)`); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("[stats] SQLite sink opened: %s (retention: %s)", dbPath, retention)
	return newSQLStore(db, "sqlite", retention), nil
}
