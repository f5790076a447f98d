// Package jsonfile stores the attendance ledger as a single human-readable
// JSON document keyed by ISO date.
package jsonfile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio"
	"github.com/kozaktomas/face-attendance/internal/attendance"
)

// LedgerStore persists the ledger at path. Writes go to a temp file that is
// renamed over the original, so readers never see a half-written document.
type LedgerStore struct {
	path string
}

// NewLedgerStore creates a JSON file ledger store
func NewLedgerStore(path string) *LedgerStore {
	return &LedgerStore{path: path}
}

// Path returns the document location
func (s *LedgerStore) Path() string {
	return s.path
}

// Load reads the ledger. A missing file is an empty ledger. A file that
// cannot be decoded is moved aside so the next save cannot overwrite history.
func (s *LedgerStore) Load(ctx context.Context) (attendance.Days, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(attendance.Days), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return make(attendance.Days), nil
	}

	var days attendance.Days
	if err := json.Unmarshal(data, &days); err != nil {
		aside := fmt.Sprintf("%s.corrupt-%d", s.path, time.Now().Unix())
		if renameErr := os.Rename(s.path, aside); renameErr != nil {
			return nil, fmt.Errorf("decode %s: %w (moving aside failed: %v)", s.path, err, renameErr)
		}
		return nil, fmt.Errorf("decode %s (moved to %s): %w", s.path, aside, err)
	}
	if days == nil {
		days = make(attendance.Days)
	}
	return days, nil
}

// Save writes the full ledger
func (s *LedgerStore) Save(ctx context.Context, days attendance.Days) error {
	data, err := Marshal(days)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create ledger directory: %w", err)
	}
	if err := renameio.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}

// Marshal renders the ledger as indented UTF-8 JSON without HTML escaping,
// keeping names with diacritics readable in diffs.
func Marshal(days attendance.Days) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(days); err != nil {
		return nil, fmt.Errorf("encode ledger: %w", err)
	}
	return buf.Bytes(), nil
}
