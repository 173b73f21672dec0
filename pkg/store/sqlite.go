package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/exp/slog"

	_ "modernc.org/sqlite"
)

// File layout and limits for the SQLite store.
const (
	DBFileName = "keysmith.db"
	FileMode   = 0600 // Owner read/write only
	DirMode    = 0700 // Owner read/write/execute only

	// Disk capacity thresholds
	MinDiskSpaceBytes  = 10 * 1024 * 1024 // 10 MB minimum free space
	DiskWarningPercent = 90               // Warn when disk is 90% full
)

// ErrInsufficientDisk indicates a write was refused for lack of space.
var ErrInsufficientDisk = errors.New("store: insufficient disk space")

// SQLite is a Store backed by a single SQLite database file.
type SQLite struct {
	dir    string
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLite opens (creating if needed) the store in dir.
func OpenSQLite(dir string, logger *slog.Logger) (*SQLite, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, DirMode); err != nil {
		return nil, fmt.Errorf("store: failed to create directory: %w", err)
	}

	dbPath := filepath.Join(dir, DBFileName)
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("store: failed to open database: %w", err)
	}

	// Single connection: CLI usage, avoids "database is locked" errors.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLite{dir: dir, db: db, logger: logger}
	if err := migrate(context.Background(), db); err != nil {
		db.Close()
		return nil, err
	}
	if err := os.Chmod(dbPath, FileMode); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: failed to set file permissions: %w", err)
	}
	s.checkAndWarnPermissions()
	return s, nil
}

// Dir returns the store directory.
func (s *SQLite) Dir() string { return s.dir }

// checkAndWarnPermissions logs a warning if the directory or database file
// is readable by group or others. It never blocks.
func (s *SQLite) checkAndWarnPermissions() {
	if info, err := os.Stat(s.dir); err == nil {
		if perm := info.Mode().Perm(); perm&0077 != 0 {
			s.logger.Warn("store directory has insecure permissions",
				"perm", fmt.Sprintf("%04o", perm), "expected", "0700")
		}
	}
	if info, err := os.Stat(filepath.Join(s.dir, DBFileName)); err == nil {
		if perm := info.Mode().Perm(); perm&0077 != 0 {
			s.logger.Warn("database file has insecure permissions",
				"perm", fmt.Sprintf("%04o", perm), "expected", "0600")
		}
	}
}

func (s *SQLite) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM kv WHERE bucket = ? AND key = ?", bucket, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: failed to read %s/%s: %w", bucket, key, err)
	}
	return value, nil
}

// Put upserts value inside a transaction so a failed write leaves the
// previous value in place.
func (s *SQLite) Put(ctx context.Context, bucket, key string, value []byte) error {
	if err := s.checkDiskSpaceForWrite(len(value)); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO kv (bucket, key, value, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(bucket, key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`, bucket, key, value)
	if err != nil {
		return fmt.Errorf("store: failed to write %s/%s: %w", bucket, key, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: failed to commit transaction: %w", err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, bucket, key string) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM kv WHERE bucket = ? AND key = ?", bucket, key); err != nil {
		return fmt.Errorf("store: failed to delete %s/%s: %w", bucket, key, err)
	}
	return nil
}

// GetAll returns every item in bucket ordered by key.
func (s *SQLite) GetAll(ctx context.Context, bucket string) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT key, value FROM kv WHERE bucket = ? ORDER BY key", bucket)
	if err != nil {
		return nil, fmt.Errorf("store: failed to list %s: %w", bucket, err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.Key, &it.Value); err != nil {
			return nil, fmt.Errorf("store: failed to scan %s: %w", bucket, err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: failed to iterate %s: %w", bucket, err)
	}
	return items, nil
}

// CheckIntegrity runs SQLite's integrity check.
func (s *SQLite) CheckIntegrity(ctx context.Context) error {
	var result string
	if err := s.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("store: integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("store: database is corrupted: %s", result)
	}
	return nil
}

func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// DiskSpaceInfo contains disk usage information
type DiskSpaceInfo struct {
	Total     uint64 `json:"total"`     // Total disk space in bytes
	Free      uint64 `json:"free"`      // Free disk space in bytes
	Available uint64 `json:"available"` // Available to non-root users
	UsedPct   int    `json:"used_pct"`  // Percentage of disk used
}

// CheckDiskSpace returns disk space information for the store directory.
func (s *SQLite) CheckDiskSpace() (*DiskSpaceInfo, error) {
	return DiskSpace(s.dir)
}

// checkDiskSpaceForWrite refuses writes when the volume is nearly full.
func (s *SQLite) checkDiskSpaceForWrite(dataSize int) error {
	info, err := s.CheckDiskSpace()
	if err != nil {
		s.logger.Warn("failed to check disk space", "error", err)
		return nil
	}

	// Need at least MinDiskSpaceBytes or 2x the data size, whichever is larger
	required := uint64(MinDiskSpaceBytes)
	if uint64(dataSize*2) > required {
		required = uint64(dataSize * 2)
	}

	if info.Available < required {
		return fmt.Errorf("%w: only %d MB available, need at least %d MB",
			ErrInsufficientDisk,
			info.Available/(1024*1024),
			required/(1024*1024))
	}

	if info.UsedPct >= DiskWarningPercent {
		s.logger.Warn("disk is nearly full", "used_pct", info.UsedPct)
	}
	return nil
}
