package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"multiscribe/internal/config"
)

// Store manages cache persistence backed by SQLite. It is the single source
// of truth for per-URL processing state. Access is single-writer: Open takes
// a lock file so a second process fails fast instead of racing on skip
// decisions.
type Store struct {
	db   *sql.DB
	lock *flock.Flock
	path string
}

// Open initializes or connects to the cache database, verifies integrity,
// and applies the schema. A corrupt database returns ErrCorrupt; a database
// held by another process returns ErrLocked.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	lock := flock.New(filepath.Join(cfg.Paths.CacheDir, "cache.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire cache lock: %w", err)
	}
	if !locked {
		return nil, ErrLocked
	}

	dbPath := filepath.Join(cfg.Paths.CacheDir, "cache.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	store := &Store{db: db, lock: lock, path: dbPath}

	// Integrity runs before any other statement so a database that is not
	// SQLite at all surfaces as ErrCorrupt rather than a pragma failure.
	if err := store.checkIntegrity(context.Background()); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, err
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			_ = lock.Unlock()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, err
	}

	return store, nil
}

// Close closes the database connection and releases the cache lock.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	var err error
	if s.db != nil {
		err = s.db.Close()
	}
	if s.lock != nil {
		if unlockErr := s.lock.Unlock(); unlockErr != nil && err == nil {
			err = unlockErr
		}
	}
	return err
}

// Path returns the cache database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) checkIntegrity(ctx context.Context) error {
	var result string
	row := s.db.QueryRowContext(ctx, "PRAGMA integrity_check")
	if err := row.Scan(&result); err != nil {
		return fmt.Errorf("%w: integrity check failed: %v", ErrCorrupt, err)
	}
	if !strings.EqualFold(result, "ok") {
		return fmt.Errorf("%w: integrity check reported %q", ErrCorrupt, result)
	}
	return nil
}

// Reset removes the cache database files so a fresh store can be opened.
// This is the explicit destructive recovery for a corrupt cache; callers are
// expected to log loudly before invoking it.
func Reset(cfg *config.Config) error {
	dbPath := filepath.Join(cfg.Paths.CacheDir, "cache.db")
	for _, path := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", path, err)
		}
	}
	return nil
}

// NewEntry inserts a pending entry for a URL never seen before and returns it.
func (s *Store) NewEntry(ctx context.Context, rawURL string) (*Entry, error) {
	canonical, err := Canonical(rawURL)
	if err != nil {
		return nil, err
	}

	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO entries (url, original_url, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?)`,
		canonical,
		strings.TrimSpace(rawURL),
		StatusPending,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert entry: %w", err)
	}

	return s.Lookup(ctx, canonical)
}

// Lookup normalizes the URL and returns the stored entry, or nil when the URL
// has never been seen. It has no side effects.
func (s *Store) Lookup(ctx context.Context, rawURL string) (*Entry, error) {
	canonical, err := Canonical(rawURL)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE url = ?`, canonical)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup entry: %w", err)
	}
	return entry, nil
}

// Upsert writes or overwrites the entry keyed by its canonical URL. Each call
// is a single implicit transaction, so a crash mid-run loses at most the
// in-flight stage. A committed transcript is never overwritten unless the
// entry was reset to pending first.
func (s *Store) Upsert(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return errors.New("entry is nil")
	}
	canonical, err := Canonical(entry.URL)
	if err != nil {
		return err
	}
	entry.URL = canonical
	if entry.OriginalURL == "" {
		entry.OriginalURL = canonical
	}

	if entry.Status != StatusPending {
		existing, err := s.Lookup(ctx, canonical)
		if err != nil {
			return err
		}
		if existing != nil && existing.HasTranscript() && entry.TranscriptText != existing.TranscriptText {
			if entry.HasTranscript() {
				return fmt.Errorf("entry %s: transcript is immutable once committed", canonical)
			}
			entry.TranscriptText = existing.TranscriptText
		}
	}

	entry.UpdatedAt = time.Now().UTC()
	timestamp := entry.UpdatedAt.Format(time.RFC3339Nano)

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO entries (
            url, original_url, title, status, audio_path, transcript_text,
            summary_text, error_message, audio_duration_secs, transcribe_seconds,
            created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(url) DO UPDATE SET
            original_url = excluded.original_url,
            title = excluded.title,
            status = excluded.status,
            audio_path = excluded.audio_path,
            transcript_text = excluded.transcript_text,
            summary_text = excluded.summary_text,
            error_message = excluded.error_message,
            audio_duration_secs = excluded.audio_duration_secs,
            transcribe_seconds = excluded.transcribe_seconds,
            updated_at = excluded.updated_at`,
		entry.URL,
		entry.OriginalURL,
		nullableString(entry.Title),
		entry.Status,
		nullableString(entry.AudioPath),
		nullableString(entry.TranscriptText),
		nullableString(entry.SummaryText),
		nullableString(entry.ErrorMessage),
		entry.AudioDurationSecs,
		entry.TranscribeSeconds,
		timestamp,
		timestamp,
	)
	if err != nil {
		return fmt.Errorf("upsert entry: %w", err)
	}
	return nil
}

// List returns entries filtered by status set (or all entries when no status
// is provided), ordered by creation time.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Entry, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + entryColumns + ` FROM entries`
	orderClause := ` ORDER BY created_at, id`

	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// RetryFailed resets failed entries back to pending, discarding partial
// artifacts. With no URLs it resets every failed entry; otherwise only the
// listed URLs. Returns the number of entries reset.
func (s *Store) RetryFailed(ctx context.Context, rawURLs ...string) (int64, error) {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	if len(rawURLs) == 0 {
		res, err := s.db.ExecContext(
			ctx,
			`UPDATE entries
            SET status = ?, audio_path = NULL, transcript_text = NULL,
                summary_text = NULL, error_message = NULL,
                audio_duration_secs = 0, transcribe_seconds = 0, updated_at = ?
            WHERE status = ?`,
			StatusPending,
			timestamp,
			StatusFailed,
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed entries: %w", err)
		}
		return res.RowsAffected()
	}

	canonical := make([]any, 0, len(rawURLs)+2)
	canonical = append(canonical, StatusPending, timestamp)
	for _, raw := range rawURLs {
		key, err := Canonical(raw)
		if err != nil {
			return 0, err
		}
		canonical = append(canonical, key)
	}
	placeholders := makePlaceholders(len(rawURLs))
	query := `UPDATE entries
        SET status = ?, audio_path = NULL, transcript_text = NULL,
            summary_text = NULL, error_message = NULL,
            audio_duration_secs = 0, transcribe_seconds = 0, updated_at = ?
        WHERE url IN (` + placeholders + `) AND status = '` + string(StatusFailed) + `'`
	res, err := s.db.ExecContext(ctx, query, canonical...)
	if err != nil {
		return 0, fmt.Errorf("retry selected entries: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns a count of entries grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM entries GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("cache stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Remove deletes an entry by URL.
func (s *Store) Remove(ctx context.Context, rawURL string) (bool, error) {
	canonical, err := Canonical(rawURL)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE url = ?`, canonical)
	if err != nil {
		return false, fmt.Errorf("delete entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ClearFailed removes only failed entries from the cache.
func (s *Store) ClearFailed(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE status = ?`, StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("clear failed: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes all entries from the cache.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM entries`)
	if err != nil {
		return 0, fmt.Errorf("clear cache: %w", err)
	}
	return res.RowsAffected()
}

const entryColumns = "id, url, original_url, title, status, audio_path, transcript_text, summary_text, error_message, audio_duration_secs, transcribe_seconds, created_at, updated_at"

func scanEntry(scanner interface{ Scan(dest ...any) error }) (*Entry, error) {
	var (
		id             int64
		urlValue       string
		originalURL    sql.NullString
		title          sql.NullString
		statusStr      string
		audioPath      sql.NullString
		transcriptText sql.NullString
		summaryText    sql.NullString
		errorMessage   sql.NullString
		audioDuration  sql.NullFloat64
		transcribeSecs sql.NullFloat64
		createdRaw     sql.NullString
		updatedRaw     sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&urlValue,
		&originalURL,
		&title,
		&statusStr,
		&audioPath,
		&transcriptText,
		&summaryText,
		&errorMessage,
		&audioDuration,
		&transcribeSecs,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	entry := &Entry{
		ID:                id,
		URL:               urlValue,
		OriginalURL:       originalURL.String,
		Title:             title.String,
		Status:            Status(statusStr),
		AudioPath:         audioPath.String,
		TranscriptText:    transcriptText.String,
		SummaryText:       summaryText.String,
		ErrorMessage:      errorMessage.String,
		AudioDurationSecs: audioDuration.Float64,
		TranscribeSeconds: transcribeSecs.Float64,
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		entry.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		entry.UpdatedAt = updated
	}
	return entry, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
