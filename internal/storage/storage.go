// Package storage persists wallet key material in a local SQLite
// database. It is the only component with access to stored keys; all
// other packages receive it as an explicit dependency.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/swapdeck/walletd/internal/chain"
)

// ErrKeyNotFound is returned when no key material exists for the
// requested chain and role.
var ErrKeyNotFound = errors.New("storage: key not found")

// Role distinguishes the kinds of key material stored per chain.
type Role string

const (
	// RolePrimary is the active account key (hex for EVM, WIF for UTXO).
	RolePrimary Role = "primary"
	// RoleMnemonic is the key derived from the user mnemonic, kept for
	// sweep bookkeeping.
	RoleMnemonic Role = "mnemonic"
)

// Store is a SQLite-backed key store.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the key store under dataDir.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	path := filepath.Join(dataDir, "walletd.db")
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS keys (
			chain      TEXT NOT NULL,
			role       TEXT NOT NULL,
			material   TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (chain, role)
		);
	`)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// PutKey stores key material for a chain and role, replacing any
// previous value.
func (s *Store) PutKey(id chain.ID, role Role, material string) error {
	_, err := s.db.Exec(
		`INSERT INTO keys (chain, role, material, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (chain, role) DO UPDATE SET material = excluded.material, updated_at = excluded.updated_at`,
		id.Key(), string(role), material, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("put key %s/%s: %w", id, role, err)
	}
	return nil
}

// Key returns the stored key material for a chain and role.
func (s *Store) Key(id chain.ID, role Role) (string, error) {
	var material string
	err := s.db.QueryRow(
		`SELECT material FROM keys WHERE chain = ? AND role = ?`,
		id.Key(), string(role),
	).Scan(&material)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get key %s/%s: %w", id, role, err)
	}
	return material, nil
}

// DeleteKey removes stored key material for a chain and role. Deleting
// a missing key is not an error.
func (s *Store) DeleteKey(id chain.ID, role Role) error {
	_, err := s.db.Exec(
		`DELETE FROM keys WHERE chain = ? AND role = ?`,
		id.Key(), string(role),
	)
	return err
}

// KeysByRole returns all stored key material for a role, keyed by
// chain ID.
func (s *Store) KeysByRole(role Role) (map[chain.ID]string, error) {
	rows, err := s.db.Query(`SELECT chain, material FROM keys WHERE role = ?`, string(role))
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	out := make(map[chain.ID]string)
	for rows.Next() {
		var chainKey, material string
		if err := rows.Scan(&chainKey, &material); err != nil {
			return nil, err
		}
		for _, id := range chain.List() {
			if id.Key() == chainKey {
				out[id] = material
				break
			}
		}
	}
	return out, rows.Err()
}
