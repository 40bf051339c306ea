package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrArchiveExists is returned when an archive with the same ID is present.
var ErrArchiveExists = errors.New("archive already exists")

// ArchiveInfo describes a saved copy of the database.
type ArchiveInfo struct {
	CreatedAt time.Time
	ID        string
	Path      string
	Records   int
}

// ArchivesDir is where archives of dbPath are written.
func ArchivesDir(dbPath string) string {
	return filepath.Join(filepath.Dir(dbPath), "archives")
}

// Archive copies the database into ArchivesDir with VACUUM INTO. It is
// taken before the settlement log is cleared for a new statement.
func (s *SQLiteStorage) Archive(ctx context.Context, id string) (*ArchiveInfo, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if s.dbPath == ":memory:" {
		return nil, fmt.Errorf("cannot archive an in-memory database")
	}
	if id == "" {
		id = "log-" + time.Now().UTC().Format("20060102-150405")
	}
	if strings.ContainsAny(id, `/\'";`) || strings.Contains(id, "..") {
		return nil, fmt.Errorf("invalid archive id %q", id)
	}

	dir := ArchivesDir(s.dbPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create archives directory: %w", err)
	}
	dest, err := filepath.Abs(filepath.Join(dir, id+".db"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve archive path: %w", err)
	}
	if strings.ContainsAny(dest, `'";`) {
		return nil, fmt.Errorf("invalid archive path %q", dest)
	}
	if _, err := os.Stat(dest); err == nil {
		return nil, ErrArchiveExists
	}

	var records int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM settlement_records").Scan(&records); err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return nil, fmt.Errorf("failed to checkpoint WAL: %w", err)
	}
	// #nosec G201 - dest is validated above
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", dest)); err != nil {
		return nil, fmt.Errorf("failed to archive database: %w", err)
	}

	info := &ArchiveInfo{ID: id, Path: dest, Records: records, CreatedAt: time.Now().UTC()}
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO archives (id, path, records, created_at) VALUES (?, ?, ?, ?)",
		info.ID, info.Path, info.Records, info.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to record archive: %w", err)
	}
	return info, nil
}

// ListArchives returns archives, newest first.
func (s *SQLiteStorage) ListArchives(ctx context.Context) ([]ArchiveInfo, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, "SELECT id, path, records, created_at FROM archives ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list archives: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ArchiveInfo
	for rows.Next() {
		var a ArchiveInfo
		if err := rows.Scan(&a.ID, &a.Path, &a.Records, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan archive: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
