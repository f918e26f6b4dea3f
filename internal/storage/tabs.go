package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/lotas/tabecho/internal/analyzer"
	"github.com/lotas/tabecho/internal/types"
)

const tabColumns = "id, url, title, favicon_url, domain, timestamp_ms, idle_ms, tags, project, screenshot, archived"

// ImportResult reports how an import went. Duplicates lists ids that were
// already stored and were skipped.
type ImportResult struct {
	Imported   int
	Duplicates []string
}

// Add inserts a new record. The domain is always derived from the URL.
func (s *Store) Add(ctx context.Context, rec types.ArchivedTab) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertTab(ctx, tx, rec); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func insertTab(ctx context.Context, tx *sql.Tx, rec types.ArchivedTab) error {
	if rec.ID == "" {
		return errors.New("insert tab: empty id")
	}
	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM archived_tabs WHERE id = ?", rec.ID).Scan(&exists); err != nil {
		return fmt.Errorf("check tab %s: %w", rec.ID, err)
	}
	if exists > 0 {
		return fmt.Errorf("add tab %s: %w", rec.ID, ErrDuplicateKey)
	}

	tags, err := json.Marshal(dedupeTags(rec.Tags))
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO archived_tabs (`+tabColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		rec.ID, rec.URL, rec.Title, rec.FaviconURL, analyzer.Domain(rec.URL),
		rec.Timestamp.UnixMilli(), rec.IdleDuration.Milliseconds(), string(tags),
		nullString(rec.Project), nullBlob(rec.Screenshot),
	)
	if err != nil {
		return fmt.Errorf("insert tab %s: %w", rec.ID, err)
	}
	return nil
}

// Get returns the record with the given id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (types.ArchivedTab, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+tabColumns+" FROM archived_tabs WHERE id = ?", id)
	rec, err := scanTab(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.ArchivedTab{}, fmt.Errorf("get tab %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return types.ArchivedTab{}, fmt.Errorf("get tab %s: %w", id, err)
	}
	return rec, nil
}

// List returns records newest first. offset skips that many records; a
// limit <= 0 returns everything after the offset.
func (s *Store) List(ctx context.Context, limit, offset int) ([]types.ArchivedTab, error) {
	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}
	return s.query(ctx,
		"SELECT "+tabColumns+" FROM archived_tabs ORDER BY timestamp_ms DESC, id DESC LIMIT ? OFFSET ?",
		limit, offset,
	)
}

// ExportAll returns every record, newest first.
func (s *Store) ExportAll(ctx context.Context) ([]types.ArchivedTab, error) {
	return s.List(ctx, 0, 0)
}

// Search returns records whose title, url, domain, project or any tag contains
// query, ignoring case. An empty query matches everything.
func (s *Store) Search(ctx context.Context, query string) ([]types.ArchivedTab, error) {
	all, err := s.ExportAll(ctx)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return all, nil
	}
	var result []types.ArchivedTab
	for _, rec := range all {
		if matches(rec, q) {
			result = append(result, rec)
		}
	}
	return result, nil
}

func matches(rec types.ArchivedTab, q string) bool {
	for _, field := range []string{rec.Title, rec.URL, rec.Domain, rec.Project} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	for _, tag := range rec.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}

// ByDomain returns records archived from the given host, newest first.
func (s *Store) ByDomain(ctx context.Context, domain string) ([]types.ArchivedTab, error) {
	return s.query(ctx,
		"SELECT "+tabColumns+" FROM archived_tabs WHERE domain = ? ORDER BY timestamp_ms DESC, id DESC",
		strings.ToLower(domain),
	)
}

// ByProject returns records labelled with project, newest first.
func (s *Store) ByProject(ctx context.Context, project string) ([]types.ArchivedTab, error) {
	return s.query(ctx,
		"SELECT "+tabColumns+" FROM archived_tabs WHERE project = ? ORDER BY timestamp_ms DESC, id DESC",
		project,
	)
}

// ByRange returns records archived between start and end inclusive, newest first.
func (s *Store) ByRange(ctx context.Context, start, end time.Time) ([]types.ArchivedTab, error) {
	return s.query(ctx,
		"SELECT "+tabColumns+" FROM archived_tabs WHERE timestamp_ms BETWEEN ? AND ? ORDER BY timestamp_ms DESC, id DESC",
		start.UnixMilli(), end.UnixMilli(),
	)
}

// Update merges the non-nil fields of u into the record. Returns ErrNotFound
// if the record does not exist.
func (s *Store) Update(ctx context.Context, id string, u types.UpdateFields) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	rec, err := scanTab(tx.QueryRowContext(ctx, "SELECT "+tabColumns+" FROM archived_tabs WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("update tab %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("update tab %s: %w", id, err)
	}
	if u.Tags != nil {
		rec.Tags = *u.Tags
	}
	if u.Project != nil {
		rec.Project = *u.Project
	}
	if u.Title != nil {
		rec.Title = *u.Title
	}

	tags, err := json.Marshal(dedupeTags(rec.Tags))
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE archived_tabs SET title = ?, tags = ?, project = ? WHERE id = ?",
		rec.Title, string(tags), nullString(rec.Project), id,
	); err != nil {
		return fmt.Errorf("update tab %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Delete removes a record. Deleting a missing id is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM archived_tabs WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete tab %s: %w", id, err)
	}
	return nil
}

// DeleteOlderThan removes records archived strictly before cutoff.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM archived_tabs WHERE timestamp_ms < ?", cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("delete old tabs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check rows affected: %w", err)
	}
	return int(n), nil
}

// TrimToNewest keeps the n most recent records and deletes the rest.
// n <= 0 is a no-op.
func (s *Store) TrimToNewest(ctx context.Context, n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, `
DELETE FROM archived_tabs WHERE id NOT IN (
    SELECT id FROM archived_tabs ORDER BY timestamp_ms DESC, id DESC LIMIT ?
)`, n)
	if err != nil {
		return 0, fmt.Errorf("trim tabs: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check rows affected: %w", err)
	}
	return int(deleted), nil
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM archived_tabs").Scan(&n); err != nil {
		return 0, fmt.Errorf("count tabs: %w", err)
	}
	return n, nil
}

// ImportMany adds every record in one transaction. Records whose id is
// already stored are skipped and reported; any other failure aborts the import.
func (s *Store) ImportMany(ctx context.Context, recs []types.ArchivedTab) (ImportResult, error) {
	var result ImportResult
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, rec := range recs {
		err := insertTab(ctx, tx, rec)
		if errors.Is(err, ErrDuplicateKey) {
			result.Duplicates = append(result.Duplicates, rec.ID)
			continue
		}
		if err != nil {
			return ImportResult{}, err
		}
		result.Imported++
	}
	if err := tx.Commit(); err != nil {
		return ImportResult{}, fmt.Errorf("commit transaction: %w", err)
	}
	return result, nil
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]types.ArchivedTab, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query tabs: %w", err)
	}
	defer rows.Close()

	var result []types.ArchivedTab
	for rows.Next() {
		rec, err := scanTab(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tab: %w", err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tabs: %w", err)
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTab(row scanner) (types.ArchivedTab, error) {
	var (
		rec     types.ArchivedTab
		tsMs    int64
		idleMs  int64
		tags    string
		project sql.NullString
		shot    []byte
	)
	if err := row.Scan(&rec.ID, &rec.URL, &rec.Title, &rec.FaviconURL, &rec.Domain,
		&tsMs, &idleMs, &tags, &project, &shot, &rec.Archived); err != nil {
		return types.ArchivedTab{}, err
	}
	rec.Timestamp = time.UnixMilli(tsMs)
	rec.IdleDuration = time.Duration(idleMs) * time.Millisecond
	if project.Valid {
		rec.Project = project.String
	}
	if len(shot) > 0 {
		rec.Screenshot = shot
	}
	if tags != "" {
		if err := json.Unmarshal([]byte(tags), &rec.Tags); err != nil {
			return types.ArchivedTab{}, fmt.Errorf("decode tags for %s: %w", rec.ID, err)
		}
		if len(rec.Tags) == 0 {
			rec.Tags = nil
		}
	}
	return rec, nil
}

// dedupeTags drops empty and repeated tags, keeping first occurrences in order.
func dedupeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullBlob(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
