package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/encodeous/ratemesh/state"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sugawarayuuta/sonnet"
)

// Store persists the advertisements a node learned from its peers, so that a restarted node can
// quote through them before the next round of updates arrives.
type Store struct {
	db *sql.DB
}

// Entry is one advertisement as it was received from Peer.
type Entry struct {
	Peer          string
	Advertisement *state.Advertisement
	SavedAt       time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS learned_routes (
	peer               TEXT NOT NULL,
	source_ledger      TEXT NOT NULL,
	destination_ledger TEXT NOT NULL,
	target_prefix      TEXT NOT NULL,
	advertisement      BLOB NOT NULL,
	saved_at           INTEGER NOT NULL,
	PRIMARY KEY (peer, source_ledger, target_prefix)
) WITHOUT ROWID;`

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot store %s: %w", path, err)
	}
	for _, stmt := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		schema,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", stmt, err)
		}
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSnapshot replaces the stored snapshot with entries, atomically.
func (s *Store) SaveSnapshot(ctx context.Context, entries []Entry, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM learned_routes`); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO learned_routes
			(peer, source_ledger, destination_ledger, target_prefix, advertisement, saved_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		raw, err := sonnet.Marshal(e.Advertisement)
		if err != nil {
			return fmt.Errorf("failed to encode advertisement from %s: %w", e.Peer, err)
		}
		target := e.Advertisement.TargetPrefix
		if target == "" {
			target = e.Advertisement.DestinationLedger
		}
		if _, err := stmt.ExecContext(ctx, e.Peer, e.Advertisement.SourceLedger,
			e.Advertisement.DestinationLedger, target, raw, at.UnixMilli()); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadSnapshot returns the stored entries saved at or after since, ordered by peer, source ledger and
// target prefix.
func (s *Store) LoadSnapshot(ctx context.Context, since time.Time) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT peer, advertisement, saved_at FROM learned_routes
		WHERE saved_at >= ?
		ORDER BY peer, source_ledger, target_prefix`, since.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			peer    string
			raw     []byte
			savedAt int64
		)
		if err := rows.Scan(&peer, &raw, &savedAt); err != nil {
			return nil, err
		}
		adv := &state.Advertisement{}
		if err := sonnet.Unmarshal(raw, adv); err != nil {
			return nil, fmt.Errorf("corrupt advertisement from %s: %w", peer, err)
		}
		entries = append(entries, Entry{Peer: peer, Advertisement: adv, SavedAt: time.UnixMilli(savedAt)})
	}
	return entries, rows.Err()
}
