// Package atomicio owns the tmp+fsync+rename write protocol used by every
// persisted JSON store. Sequential renames give per-file atomicity; callers
// that need a multi-file update go through Commit so the ordering lives in
// one place.
package atomicio

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// WriteFileAtomic writes data to path via a temp file in the same directory,
// fsyncs, then renames over the target.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp for %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("fsync temp for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp for %s: %w", path, err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("chmod temp for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// WriteJSONAtomic marshals v with indentation and writes it atomically.
func WriteJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	return WriteFileAtomic(path, data)
}

// Write is one pending payload for Commit.
type Write struct {
	Path    string
	Payload any
}

// Commit serializes every payload up front, then renames each file in order.
// Marshal failures abort before any file is touched, so a bad record can
// never leave the pair half-written. Rename failures after the first file are
// logged and returned; callers reconstruct idempotently on reload.
func Commit(writes []Write) error {
	encoded := make([][]byte, len(writes))
	for i, w := range writes {
		data, err := json.MarshalIndent(w.Payload, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal %s: %w", w.Path, err)
		}
		encoded[i] = data
	}

	for i, w := range writes {
		if err := WriteFileAtomic(w.Path, encoded[i]); err != nil {
			log.Error().Err(err).Str("path", w.Path).Int("index", i).
				Msg("multi-file commit failed mid-sequence")
			return err
		}
	}
	return nil
}

// ReadJSON loads path into v. A missing file is not an error: v is left
// untouched and ok=false is returned. A corrupt file is treated as empty per
// the persistence error policy, with the error logged.
func ReadJSON(path string, v any) (ok bool, err error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		log.Error().Err(err).Str("path", path).Msg("corrupt JSON store, treating as empty")
		return false, nil
	}
	return true, nil
}
