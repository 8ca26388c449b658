// Package state persists the tiny piece of crash-safe bot state: which
// signal birth the bot has already acted on.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

type dedupRecord struct {
	LastActedBirthTS *float64 `json:"last_acted_birth_ts"`
}

// DedupStore persists the birth timestamp of the last signal an order was
// committed for. It is written synchronously before every order submission,
// so a crash between persistence and submission forfeits the trade rather
// than risking a duplicate.
type DedupStore struct {
	path string
}

func NewDedupStore(path string) *DedupStore {
	return &DedupStore{path: path}
}

// Load reads the persisted record. A missing file is a fresh start and
// returns (nil, nil).
func (s *DedupStore) Load() (*float64, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("state: read dedup file: %w", err)
	}

	var rec dedupRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("state: decode dedup file: %w", err)
	}
	return rec.LastActedBirthTS, nil
}

// Save rewrites the record durably: write to a temp file in the same
// directory, fsync, then rename over the target. Pass nil to clear the
// record, which re-arms the current signal after a rollback.
func (s *DedupStore) Save(birthTS *float64) error {
	data, err := json.Marshal(dedupRecord{LastActedBirthTS: birthTS})
	if err != nil {
		return fmt.Errorf("state: encode dedup record: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".dedup-*")
	if err != nil {
		return fmt.Errorf("state: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("state: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("state: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("state: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("state: rename into place: %w", err)
	}
	return nil
}
