package stats

import (
	"context"
	"database/sql"
	"log"
	"time"
)

const insertEvent = `INSERT INTO lookup_events
	(at, identity, number, outcome, cached, asn, asn_org, hosting, latency_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

// sqlStore appends events to a lookup_events table and prunes rows older
// than the retention window once an hour.
type sqlStore struct {
	db        *sql.DB
	name      string
	retention time.Duration
	stop      chan struct{}
}

func newSQLStore(db *sql.DB, name string, retention time.Duration) *sqlStore {
	s := &sqlStore{
		db:        db,
		name:      name,
		retention: retention,
		stop:      make(chan struct{}),
	}
	if retention > 0 {
		go s.cleanupLoop()
	}
	return s
}

func (s *sqlStore) Record(ctx context.Context, ev Event) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx, insertEvent,
		at.UnixMilli(), ev.Identity, ev.Number, ev.Outcome, ev.Cached,
		ev.ASN, ev.ASNOrg, ev.Hosting, ev.Latency.Milliseconds(),
	)
	return err
}

// Outcomes counts events per outcome within the retention window.
func (s *sqlStore) Outcomes() map[string]int64 {
	rows, err := s.db.Query("SELECT outcome, COUNT(*) FROM lookup_events GROUP BY outcome")
	if err != nil {
		return nil
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var outcome string
		var n int64
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil
		}
		out[outcome] = n
	}
	return out
}

func (s *sqlStore) Size() int {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM lookup_events").Scan(&count); err != nil {
		return 0
	}
	return count
}

// Cleanup removes events older than the retention window.
func (s *sqlStore) Cleanup(now time.Time) {
	cutoff := now.Add(-s.retention).UnixMilli()
	result, err := s.db.Exec("DELETE FROM lookup_events WHERE at <= ?", cutoff)
	if err != nil {
		log.Printf("[stats] %s cleanup error: %v", s.name, err)
		return
	}
	if affected, _ := result.RowsAffected(); affected > 0 {
		log.Printf("[stats] %s cleanup: removed %d expired events", s.name, affected)
	}
}

func (s *sqlStore) cleanupLoop() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Cleanup(time.Now())
		case <-s.stop:
			return
		}
	}
}

func (s *sqlStore) Close() error {
	close(s.stop)
	err := s.db.Close()
	log.Printf("[stats] %s sink closed", s.name)
	return err
}
