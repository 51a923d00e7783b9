// Package local persists schedule files under the output root.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/JakeFAU/jadwal-sholat-crawler/internal/crawler"
)

// Config captures the parameters for the schedule store.
type Config struct {
	// Root is the directory holding {city}/{year}/{MM}.json.
	Root string
}

// Store writes schedule files to an afero filesystem.
type Store struct {
	fs   afero.Fs
	root string
}

// New creates a store rooted at cfg.Root, creating the directory when missing.
func New(fs afero.Fs, cfg Config) (*Store, error) {
	if fs == nil {
		return nil, fmt.Errorf("filesystem is required")
	}
	root := strings.TrimSpace(cfg.Root)
	if root == "" {
		return nil, fmt.Errorf("output root is required")
	}
	root = filepath.Clean(root)

	info, err := fs.Stat(root)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if mkErr := fs.MkdirAll(root, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create output root: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat output root: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("output root %s is not a directory", root)
	}

	probe := filepath.Join(root, ".writable_test")
	if err := afero.WriteFile(fs, probe, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("output root is not writable: %w", err)
	}
	if err := fs.Remove(probe); err != nil {
		return nil, fmt.Errorf("clean up probe file: %w", err)
	}

	return &Store{fs: fs, root: root}, nil
}

// Root returns the cleaned output root.
func (s *Store) Root() string {
	return s.root
}

// Path returns the full path of a unit's file.
func (s *Store) Path(u crawler.Unit) (string, error) {
	city := string(u.City)
	if city == "" || city == "." || city == ".." || strings.ContainsAny(city, `/\`) {
		return "", fmt.Errorf("invalid city folder %q", city)
	}
	if !u.Period.Valid() {
		return "", fmt.Errorf("invalid period %s", u.Period)
	}
	full := filepath.Join(s.root, filepath.FromSlash(u.RelPath()))
	if !strings.HasPrefix(full, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	return full, nil
}

// Exists reports whether the unit's file is already on disk.
func (s *Store) Exists(u crawler.Unit) (bool, error) {
	path, err := s.Path(u)
	if err != nil {
		return false, err
	}
	ok, err := afero.Exists(s.fs, path)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	return ok, nil
}

// Write persists records for u. Under SkipExisting an existing file is left
// untouched and OutcomeSkipped is returned. The file is replaced atomically.
func (s *Store) Write(ctx context.Context, u crawler.Unit, records []crawler.ScheduleRecord, policy crawler.WritePolicy) (crawler.Outcome, string, error) {
	path, err := s.Path(u)
	if err != nil {
		return crawler.OutcomeFailed, "", fmt.Errorf("%w: %v", crawler.ErrWrite, err)
	}
	if len(records) == 0 {
		return crawler.OutcomeFailed, path, crawler.ErrEmptySchedule
	}
	if policy == crawler.SkipExisting {
		exists, err := afero.Exists(s.fs, path)
		if err != nil {
			return crawler.OutcomeFailed, path, fmt.Errorf("%w: stat %s: %v", crawler.ErrWrite, path, err)
		}
		if exists {
			return crawler.OutcomeSkipped, path, nil
		}
	}

	data, err := Encode(records)
	if err != nil {
		return crawler.OutcomeFailed, path, fmt.Errorf("%w: %v", crawler.ErrWrite, err)
	}
	if err := ctx.Err(); err != nil {
		return crawler.OutcomeCanceled, path, fmt.Errorf("write %s: %w", path, err)
	}
	if err := s.replace(path, data); err != nil {
		return crawler.OutcomeFailed, path, fmt.Errorf("%w: %v", crawler.ErrWrite, err)
	}
	return crawler.OutcomeWritten, path, nil
}

// replace writes data to a temp file in the target directory and renames it
// over path.
func (s *Store) replace(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := s.fs.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(s.fs, dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := s.fs.Chmod(tmpName, 0o644); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := s.fs.Rename(tmpName, path); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// Open returns a reader over the unit's file.
func (s *Store) Open(u crawler.Unit) (io.ReadCloser, error) {
	path, err := s.Path(u)
	if err != nil {
		return nil, err
	}
	f, err := s.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}

// Read decodes the unit's file.
func (s *Store) Read(u crawler.Unit) ([]crawler.ScheduleRecord, error) {
	path, err := s.Path(u)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var records []crawler.ScheduleRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return records, nil
}

// Reset removes every city directory under the root.
func (s *Store) Reset(ctx context.Context) (int, error) {
	if s.root == "." || s.root == string(filepath.Separator) {
		return 0, fmt.Errorf("refusing to reset output root %q", s.root)
	}
	entries, err := afero.ReadDir(s.fs, s.root)
	if err != nil {
		return 0, fmt.Errorf("list output root: %w", err)
	}
	removed := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return removed, fmt.Errorf("reset output root: %w", err)
		}
		if err := s.fs.RemoveAll(filepath.Join(s.root, e.Name())); err != nil {
			return removed, fmt.Errorf("remove %s: %w", e.Name(), err)
		}
		removed++
	}
	return removed, nil
}

// Encode renders records as the on-disk JSON array.
func Encode(records []crawler.ScheduleRecord) ([]byte, error) {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode records: %w", err)
	}
	return append(data, '\n'), nil
}
