package stats

import (
	"database/sql"
	"log"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// NewMySQL connects to dsn and ensures the event table exists.
func NewMySQL(dsn string, retention time.Duration) (Store, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS lookup_events (
			id         BIGINT AUTO_INCREMENT PRIMARY KEY,
			at         BIGINT       NOT NULL,
			identity   VARCHAR(64)  NOT NULL,
			number     VARCHAR(20)  NOT NULL,
			outcome    VARCHAR(32)  NOT NULL,
			cached     BOOLEAN      NOT NULL,
			asn        INT          NOT NULL,
			asn_org    VARCHAR(255) NOT NULL,
			hosting    BOOLEAN      NOT NULL,
			latency_ms BIGINT       NOT NULL,
			INDEX idx_lookup_events_at (at)
		)
	`); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("[stats] MySQL sink opened (retention: %s)", retention)
	return newSQLStore(db, "mysql", retention), nil
}
