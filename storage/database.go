package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logging "github.com/ipfs/go-log/v2"
	_ "github.com/mattn/go-sqlite3"
)

var log = logging.Logger("storage")

// DefaultDBFileName is the SQLite file under the data directory.
const DefaultDBFileName = "contacts.db"

type migration struct {
	name string
	stmt string
}

// migrations run in order; PRAGMA user_version records how many are applied.
var migrations = []migration{
	{
		name: "create contacts",
		stmt: `
CREATE TABLE IF NOT EXISTS contacts (
  contact_id           TEXT PRIMARY KEY,
  display_name         TEXT NOT NULL DEFAULT '',
  encounter_started_at INTEGER NOT NULL,
  duration_ms          INTEGER NOT NULL CHECK(duration_ms >= 0),
  average_rssi         INTEGER NOT NULL DEFAULT 0,
  latitude             REAL,
  longitude            REAL,
  health_status        TEXT NOT NULL CHECK(health_status IN ('UNKNOWN','SICK')) DEFAULT 'UNKNOWN'
);`,
	},
	{
		name: "index contacts by start",
		stmt: `
CREATE INDEX IF NOT EXISTS idx_contacts_started_at
ON contacts (encounter_started_at DESC, contact_id);`,
	},
	{
		name: "index contacts by health status",
		stmt: `
CREATE INDEX IF NOT EXISTS idx_contacts_health_status
ON contacts (health_status, encounter_started_at DESC);`,
	},
}

// Store keeps recorded contacts in SQLite.
type Store struct {
	db        *sql.DB
	closeOnce sync.Once
}

// Open opens (or creates) contacts.db under dataDir and returns its path.
func Open(dataDir string) (*Store, string, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, "", fmt.Errorf("create storage directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DefaultDBFileName)
	store, err := OpenPath(dbPath)
	if err != nil {
		return nil, "", err
	}
	return store, dbPath, nil
}

// OpenPath opens the database at dbPath in WAL mode and migrates it.
func OpenPath(dbPath string) (*Store, error) {
	dsn := "file:" + filepath.ToSlash(dbPath) + "?_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open contact database: %w", err)
	}

	store := &Store{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) init() error {
	var journalMode string
	if err := s.db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("read journal mode: %w", err)
	}
	if !strings.EqualFold(journalMode, "wal") {
		return fmt.Errorf("contact database not in WAL mode (got %q)", journalMode)
	}
	return s.migrate()
}

func (s *Store) migrate() error {
	var applied int
	if err := s.db.QueryRow("PRAGMA user_version;").Scan(&applied); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if applied >= len(migrations) {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, m := range migrations[applied:] {
		version := applied + i + 1
		if _, err := tx.Exec(m.stmt); err != nil {
			return fmt.Errorf("migration %d (%s): %w", version, m.name, err)
		}
		// PRAGMA does not take bound parameters.
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d;", version)); err != nil {
			return fmt.Errorf("record schema version %d: %w", version, err)
		}
		log.Debugf("applied migration %d: %s", version, m.name)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	log.Infof("contact schema at version %d", len(migrations))
	return nil
}

// Close truncates the WAL and closes the database. It is safe to call twice.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	var err error
	s.closeOnce.Do(func() {
		if _, cpErr := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE);"); cpErr != nil {
			log.Warnf("wal checkpoint on close: %v", cpErr)
		}
		err = s.db.Close()
	})
	return err
}
