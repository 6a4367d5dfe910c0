// Package storage is the durable local store: device preference and the
// optional TURN override, surviving process restarts.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/dkeye/Meet/internal/domain"
)

const (
	keyDevicePreference   = "mediaDevicePreference"
	keyTURNServer         = "turnServer"
	keyICETransportPolicy = "iceTransportPolicy"
)

// Store wraps a small SQLite key/value database.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
}

// Open opens or creates the database under dataDir.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	dbPath := filepath.Join(dataDir, "meet.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS settings (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create settings table: %w", err)
	}

	return &Store{db: db, path: dbPath}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value;
	`, key, value)
	return err
}

// get returns ("", nil) when the key is absent.
func (s *Store) get(key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

func (s *Store) delete(keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		if _, err := s.db.Exec(`DELETE FROM settings WHERE key = ?`, key); err != nil {
			return err
		}
	}
	return nil
}

// SaveDevicePreference overwrites the stored preference.
func (s *Store) SaveDevicePreference(pref domain.DevicePreference) error {
	b, err := json.Marshal(pref)
	if err != nil {
		return fmt.Errorf("encode device preference: %w", err)
	}
	return s.set(keyDevicePreference, string(b))
}

// LoadDevicePreference returns a zero preference when nothing is stored.
func (s *Store) LoadDevicePreference() (domain.DevicePreference, error) {
	raw, err := s.get(keyDevicePreference)
	if err != nil || raw == "" {
		return domain.DevicePreference{}, err
	}
	var pref domain.DevicePreference
	if err := json.Unmarshal([]byte(raw), &pref); err != nil {
		return domain.DevicePreference{}, fmt.Errorf("decode device preference: %w", err)
	}
	return pref, nil
}

func (s *Store) ClearDevicePreference() error {
	return s.delete(keyDevicePreference)
}

// SaveTURNServer stores the override; nil clears it along with the
// transport policy.
func (s *Store) SaveTURNServer(t *domain.TURNServer) error {
	if t == nil {
		return s.delete(keyTURNServer, keyICETransportPolicy)
	}
	b, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode turn server: %w", err)
	}
	if err := s.set(keyTURNServer, string(b)); err != nil {
		return err
	}
	policy := "all"
	if t.RelayOnly {
		policy = "relay"
	}
	return s.set(keyICETransportPolicy, policy)
}

// LoadTURNServer returns (nil, nil) when no override is stored, which
// means "use engine defaults".
func (s *Store) LoadTURNServer() (*domain.TURNServer, error) {
	raw, err := s.get(keyTURNServer)
	if err != nil || raw == "" {
		return nil, err
	}
	var t domain.TURNServer
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return nil, fmt.Errorf("decode turn server: %w", err)
	}
	policy, err := s.get(keyICETransportPolicy)
	if err != nil {
		return nil, err
	}
	t.RelayOnly = policy == "relay"
	return &t, nil
}
