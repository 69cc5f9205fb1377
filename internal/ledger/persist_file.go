package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"numcheck/pkg/domain"
	"numcheck/pkg/platform/sentinel"
)

// FileStore persists the ledger as one JSON document on local disk.
type FileStore struct {
	path string
}

// NewFileStore stores the document at path; the parent directory is created
// on first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the document location.
func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) Load(_ context.Context) (*Snapshot, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger %s: %w", f.path, err)
	}
	snap, err := decodeSnapshot(raw)
	if err != nil {
		return nil, fmt.Errorf("ledger %s: %w", f.path, err)
	}
	return snap, nil
}

// Save writes to a temp file in the same directory, syncs it and renames it
// over the document. Readers see the old or the new document, never a mix.
func (f *FileStore) Save(_ context.Context, snap *Snapshot) error {
	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp ledger: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp ledger: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replace ledger: %w", err)
	}
	committed = true
	return nil
}

// decodeSnapshot parses a JSON ledger document and checks record invariants.
func decodeSnapshot(raw []byte) (*Snapshot, error) {
	snap := NewSnapshot()
	if err := json.Unmarshal(raw, snap); err != nil {
		return nil, fmt.Errorf("%w: %v", sentinel.ErrCorrupt, err)
	}
	if snap.CheckedNumbers == nil {
		snap.CheckedNumbers = make(map[domain.CanonicalNumber]Record)
	}
	if snap.UserData == nil {
		snap.UserData = make(map[domain.SessionKey]UserStats)
	}
	for number, rec := range snap.CheckedNumbers {
		if err := validateRecord(number, rec); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

func validateRecord(number domain.CanonicalNumber, rec Record) error {
	if !rec.Status.IsValid() {
		return fmt.Errorf("%w: number %s has unknown status %q", sentinel.ErrCorrupt, number, rec.Status)
	}
	if rec.Attempts < 1 {
		return fmt.Errorf("%w: number %s has attempts %d", sentinel.ErrCorrupt, number, rec.Attempts)
	}
	if (rec.Status == domain.StatusNotOnService) != (rec.NextRetry != nil) {
		return fmt.Errorf("%w: number %s violates the retry invariant", sentinel.ErrCorrupt, number)
	}
	return nil
}
