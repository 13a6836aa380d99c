// Package backup snapshots the local store on a daily schedule and keeps a
// bounded number of snapshots.
//
// The Scheduler only sequences calls; the work itself is done by an Executor.
// BoltExecutor is the Executor for the bbolt store engine.
package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Combine-Capital/vigil/pkg/errors"
	"github.com/jonboulle/clockwork"
	"go.etcd.io/bbolt"
)

const (
	filePrefix = "vigil-"
	fileSuffix = ".db"
	timeLayout = "20060102T150405.000000000Z"
)

// Info describes one backup file.
type Info struct {
	FileName  string    `json:"file_name"`
	CreatedAt time.Time `json:"created_at"`
	Size      int64     `json:"size"`
}

// Executor performs backup operations.
type Executor interface {
	// BackupNow writes a new backup.
	BackupNow(ctx context.Context) (Info, error)

	// ListBackups returns existing backups, newest first.
	ListBackups(ctx context.Context) ([]Info, error)

	// Prune deletes all but the keepLatest newest backups and returns how many
	// were deleted.
	Prune(ctx context.Context, keepLatest int) (int, error)

	// Restore writes the named backup to the executor's restore target.
	Restore(ctx context.Context, fileName string) error
}

// BoltExecutor snapshots a bbolt database into a directory.
type BoltExecutor struct {
	db          *bbolt.DB
	dir         string
	restorePath string
	clock       clockwork.Clock
}

var _ Executor = (*BoltExecutor)(nil)

// NewBoltExecutor creates an executor writing snapshots of db into dir.
// Restore copies a snapshot to restorePath. A nil clock uses the real clock.
func NewBoltExecutor(db *bbolt.DB, dir, restorePath string, clock clockwork.Clock) (*BoltExecutor, error) {
	if db == nil {
		return nil, errors.NewInvalidInput("db", "bbolt database is required")
	}
	if dir == "" {
		return nil, errors.NewInvalidInput("dir", "backup directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &BoltExecutor{db: db, dir: dir, restorePath: restorePath, clock: clock}, nil
}

// BackupNow copies a consistent snapshot of the database inside a read transaction.
func (e *BoltExecutor) BackupNow(ctx context.Context) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, errors.NewCancelled("backup", err)
	}

	created := e.clock.Now().UTC()
	name := filePrefix + created.Format(timeLayout) + fileSuffix
	path := filepath.Join(e.dir, name)

	err := e.db.View(func(tx *bbolt.Tx) error {
		return tx.CopyFile(path, 0o600)
	})
	if err != nil {
		_ = os.Remove(path)
		return Info{}, errors.NewUnavailable("bolt", err)
	}

	st, err := os.Stat(path)
	if err != nil {
		return Info{}, fmt.Errorf("failed to stat backup %s: %w", name, err)
	}
	return Info{FileName: name, CreatedAt: created, Size: st.Size()}, nil
}

// ListBackups lists snapshot files in the backup directory, newest first.
// Files not named by BackupNow are ignored.
func (e *BoltExecutor) ListBackups(ctx context.Context) ([]Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelled("list backups", err)
	}

	entries, err := os.ReadDir(e.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	backups := make([]Info, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		created, ok := parseFileName(entry.Name())
		if !ok {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, Info{FileName: entry.Name(), CreatedAt: created, Size: fi.Size()})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})
	return backups, nil
}

// Prune removes the oldest snapshots beyond keepLatest.
func (e *BoltExecutor) Prune(ctx context.Context, keepLatest int) (int, error) {
	if keepLatest < 0 {
		return 0, errors.NewInvalidInput("keepLatest", "must not be negative")
	}

	backups, err := e.ListBackups(ctx)
	if err != nil {
		return 0, err
	}
	if len(backups) <= keepLatest {
		return 0, nil
	}

	removed := 0
	for _, b := range backups[keepLatest:] {
		if err := os.Remove(filepath.Join(e.dir, b.FileName)); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("failed to remove backup %s: %w", b.FileName, err)
		}
		removed++
	}
	return removed, nil
}

// Restore copies the named snapshot to the restore path.
func (e *BoltExecutor) Restore(ctx context.Context, fileName string) error {
	if err := ctx.Err(); err != nil {
		return errors.NewCancelled("restore", err)
	}
	if e.restorePath == "" {
		return errors.NewInvalidInput("restore_path", "no restore target configured")
	}
	if fileName == "" || fileName != filepath.Base(fileName) {
		return errors.NewInvalidInput("fileName", "must be a backup file name")
	}
	if _, ok := parseFileName(fileName); !ok {
		return errors.NewInvalidInput("fileName", "not a backup file name")
	}

	src, err := os.Open(filepath.Join(e.dir, fileName))
	if err != nil {
		if os.IsNotExist(err) {
			return errors.NewNotFoundWithCause("backup", fileName, err)
		}
		return fmt.Errorf("failed to open backup: %w", err)
	}
	defer src.Close()

	tmp := e.restorePath + ".tmp"
	dst, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create restore target: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to copy backup: %w", err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write restore target: %w", err)
	}
	return os.Rename(tmp, e.restorePath)
}

func parseFileName(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
		return time.Time{}, false
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
	t, err := time.Parse(timeLayout, stamp)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
