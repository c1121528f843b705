// Package storage persists the bot state as a single JSON snapshot file and
// keeps a short rotation of backups next to it.
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/m3rciful/gatebot/core/logger"
)

const (
	// DefaultKeepBackups is how many backups survive pruning.
	DefaultKeepBackups = 5

	backupPrefix     = "backup_"
	backupSuffix     = ".json"
	backupTimeLayout = "2006-01-02T15-04-05.000000000Z"

	component = "storage"
)

// Options configures a FileStore.
type Options struct {
	DataFile    string
	BackupDir   string
	KeepBackups int
	// Now overrides the clock used for backup names and lastUpdated.
	Now func() time.Time
}

// FileInfo describes the snapshot file for diagnostics.
type FileInfo struct {
	Exists       bool
	Size         int64
	LastModified time.Time
}

// FileStore reads and writes the snapshot file.
type FileStore struct {
	path      string
	backupDir string
	keep      int
	now       func() time.Time
	write     func(path string, data []byte) error
}

// NewFileStore creates the data and backup directories if needed.
func NewFileStore(opts Options) (*FileStore, error) {
	if strings.TrimSpace(opts.DataFile) == "" {
		return nil, fmt.Errorf("storage: data file path is required")
	}
	backupDir := opts.BackupDir
	if strings.TrimSpace(backupDir) == "" {
		backupDir = filepath.Join(filepath.Dir(opts.DataFile), "backups")
	}
	keep := opts.KeepBackups
	if keep <= 0 {
		keep = DefaultKeepBackups
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	if err := os.MkdirAll(filepath.Dir(opts.DataFile), 0o755); err != nil {
		return nil, fmt.Errorf("storage: create data dir: %w", err)
	}
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create backup dir: %w", err)
	}

	return &FileStore{
		path:      opts.DataFile,
		backupDir: backupDir,
		keep:      keep,
		now:       now,
		write:     writeAtomic,
	}, nil
}

// Path returns the snapshot file location.
func (s *FileStore) Path() string { return s.path }

// BackupDir returns the directory holding rotated backups.
func (s *FileStore) BackupDir() string { return s.backupDir }

// Load reads the snapshot. A missing or unreadable file yields an empty
// snapshot; the failure is logged and never returned.
func (s *FileStore) Load() *Snapshot {
	ctx := logger.Background()
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Error(ctx, component, "load.fail",
				slog.String("path", s.path),
				slog.String("err", err.Error()),
			)
		} else {
			logger.Info(ctx, component, "load.missing", slog.String("path", s.path))
		}
		return s.defaultSnapshot()
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		logger.Error(ctx, component, "load.malformed",
			slog.String("path", s.path),
			slog.Int("bytes", len(data)),
			slog.String("err", err.Error()),
		)
		return s.defaultSnapshot()
	}

	logger.Debug(ctx, component, "load.ok",
		slog.String("path", s.path),
		slog.Int("referrals", len(snap.Referrals)),
		slog.Int("users", len(snap.Users)),
	)
	return &snap
}

// Save backs up the current file, prunes old backups and atomically replaces
// the file with snap. Only the write itself can fail the call.
func (s *FileStore) Save(snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("storage: nil snapshot")
	}
	ctx := logger.Background()
	start := time.Now()

	s.backup()
	s.prune()

	snap.LastUpdated = s.now().UnixMilli()
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: encode snapshot: %w", err)
	}
	if err := s.write(s.path, data); err != nil {
		logger.Error(ctx, component, "save.fail",
			slog.String("path", s.path),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("storage: write snapshot: %w", err)
	}

	logger.Debug(ctx, component, "save.ok",
		slog.String("path", s.path),
		slog.Int("bytes", len(data)),
		slog.Duration("duration", logger.Took(start)),
	)
	return nil
}

// FileInfo reports whether the snapshot exists, its size and mtime.
func (s *FileStore) FileInfo() FileInfo {
	st, err := os.Stat(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warn(logger.Background(), component, "stat.fail",
				slog.String("path", s.path),
				slog.String("err", err.Error()),
			)
		}
		return FileInfo{}
	}
	return FileInfo{
		Exists:       true,
		Size:         st.Size(),
		LastModified: st.ModTime(),
	}
}

// Backups lists backup files, newest first.
func (s *FileStore) Backups() ([]string, error) {
	entries, err := s.backupEntries()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.name)
	}
	return names, nil
}

func (s *FileStore) defaultSnapshot() *Snapshot {
	snap := NewSnapshot()
	snap.LastUpdated = s.now().UnixMilli()
	return snap
}

func (s *FileStore) backup() {
	ctx := logger.Background()
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warn(ctx, component, "backup.read_fail",
				slog.String("path", s.path),
				slog.String("err", err.Error()),
			)
		}
		return
	}

	stamp := s.now().UTC().Format(backupTimeLayout)
	target := filepath.Join(s.backupDir, backupPrefix+stamp+backupSuffix)
	for i := 1; fileExists(target); i++ {
		target = filepath.Join(s.backupDir, fmt.Sprintf("%s%s_%d%s", backupPrefix, stamp, i, backupSuffix))
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		logger.Warn(ctx, component, "backup.write_fail",
			slog.String("path", target),
			slog.String("err", err.Error()),
		)
	}
}

type backupEntry struct {
	name    string
	modTime time.Time
}

func (s *FileStore) backupEntries() ([]backupEntry, error) {
	dirEntries, err := os.ReadDir(s.backupDir)
	if err != nil {
		return nil, fmt.Errorf("storage: read backup dir: %w", err)
	}
	var out []backupEntry
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || !strings.HasPrefix(name, backupPrefix) || !strings.HasSuffix(name, backupSuffix) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		out = append(out, backupEntry{name: name, modTime: info.ModTime()})
	}
	// Names embed the timestamp, so they break mtime ties.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].modTime.Equal(out[j].modTime) {
			return out[i].modTime.After(out[j].modTime)
		}
		return out[i].name > out[j].name
	})
	return out, nil
}

func (s *FileStore) prune() {
	ctx := logger.Background()
	entries, err := s.backupEntries()
	if err != nil {
		logger.Warn(ctx, component, "backup.list_fail", slog.String("err", err.Error()))
		return
	}
	if len(entries) <= s.keep {
		return
	}
	removed := 0
	for _, e := range entries[s.keep:] {
		path := filepath.Join(s.backupDir, e.name)
		if err := os.Remove(path); err != nil {
			logger.Warn(ctx, component, "backup.remove_fail",
				slog.String("path", path),
				slog.String("err", err.Error()),
			)
			continue
		}
		removed++
	}
	logger.Debug(ctx, component, "backup.pruned",
		slog.Int("removed", removed),
		slog.Int("kept", s.keep),
	)
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
