package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"multiscribe/internal/config"
)

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.Paths.CacheDir = filepath.Join(root, "cache")
	cfg.Paths.AudioDir = filepath.Join(root, "audio")
	cfg.Paths.OutputDir = filepath.Join(root, "output")
	cfg.Paths.LogDir = filepath.Join(root, "logs")
	return &cfg
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(newTestConfig(t))
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Close returned error: %v", err)
		}
	})
	return store
}

func TestNewEntryAndLookup(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	entry, err := store.NewEntry(ctx, "HTTPS://Example.com/watch?v=abc")
	if err != nil {
		t.Fatalf("NewEntry returned error: %v", err)
	}
	if entry.Status != StatusPending {
		t.Fatalf("expected pending status, got %s", entry.Status)
	}
	if entry.URL != "https://example.com/watch?v=abc" {
		t.Fatalf("unexpected canonical URL %q", entry.URL)
	}
	if entry.OriginalURL != "HTTPS://Example.com/watch?v=abc" {
		t.Fatalf("unexpected original URL %q", entry.OriginalURL)
	}

	// Lookup with a differently-cased variant must hit the same entry.
	found, err := store.Lookup(ctx, "https://EXAMPLE.com/watch?v=abc")
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}
	if found == nil {
		t.Fatal("expected entry, got nil")
	}
	if found.ID != entry.ID {
		t.Fatalf("expected id %d, got %d", entry.ID, found.ID)
	}
}

func TestLookupMissingReturnsNil(t *testing.T) {
	store := openTestStore(t)

	entry, err := store.Lookup(context.Background(), "https://example.com/never-seen")
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}
	if entry != nil {
		t.Fatalf("expected nil for unknown URL, got %+v", entry)
	}
}

func TestUpsertAdvancesStatus(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	entry, err := store.NewEntry(ctx, "https://example.com/watch?v=abc")
	if err != nil {
		t.Fatalf("NewEntry returned error: %v", err)
	}

	entry.Status = StatusDownloaded
	entry.AudioPath = "/tmp/audio/abc.mp3"
	entry.Title = "Example Video"
	if err := store.Upsert(ctx, entry); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}

	stored, err := store.Lookup(ctx, entry.URL)
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}
	if stored.Status != StatusDownloaded {
		t.Fatalf("expected downloaded, got %s", stored.Status)
	}
	if stored.AudioPath != "/tmp/audio/abc.mp3" {
		t.Fatalf("unexpected audio path %q", stored.AudioPath)
	}
	if stored.Title != "Example Video" {
		t.Fatalf("unexpected title %q", stored.Title)
	}
}

func TestUpsertPreservesCommittedTranscript(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	entry, err := store.NewEntry(ctx, "https://example.com/watch?v=abc")
	if err != nil {
		t.Fatalf("NewEntry returned error: %v", err)
	}

	entry.Status = StatusTranscribed
	entry.TranscriptText = "original transcript"
	if err := store.Upsert(ctx, entry); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}

	// Writing a different transcript must be rejected.
	clobber := *entry
	clobber.TranscriptText = "replacement transcript"
	if err := store.Upsert(ctx, &clobber); err == nil {
		t.Fatal("expected error overwriting committed transcript")
	}

	// A later stage that carries an empty transcript keeps the stored one.
	summary := *entry
	summary.Status = StatusSummarized
	summary.TranscriptText = ""
	summary.SummaryText = "short summary"
	if err := store.Upsert(ctx, &summary); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}

	stored, err := store.Lookup(ctx, entry.URL)
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}
	if stored.TranscriptText != "original transcript" {
		t.Fatalf("transcript changed to %q", stored.TranscriptText)
	}
	if stored.SummaryText != "short summary" {
		t.Fatalf("unexpected summary %q", stored.SummaryText)
	}
}

func TestRetryFailedResetsEntries(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	failed, err := store.NewEntry(ctx, "https://example.com/failed")
	if err != nil {
		t.Fatalf("NewEntry returned error: %v", err)
	}
	failed.SetFailed("download exploded")
	failed.AudioPath = "/tmp/partial.mp3"
	if err := store.Upsert(ctx, failed); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}

	done, err := store.NewEntry(ctx, "https://example.com/done")
	if err != nil {
		t.Fatalf("NewEntry returned error: %v", err)
	}
	done.Status = StatusTranscribed
	done.TranscriptText = "finished"
	if err := store.Upsert(ctx, done); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}

	count, err := store.RetryFailed(ctx)
	if err != nil {
		t.Fatalf("RetryFailed returned error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 reset entry, got %d", count)
	}

	reset, err := store.Lookup(ctx, failed.URL)
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}
	if reset.Status != StatusPending {
		t.Fatalf("expected pending after retry, got %s", reset.Status)
	}
	if reset.AudioPath != "" || reset.ErrorMessage != "" {
		t.Fatalf("expected cleared artifacts, got %+v", reset)
	}

	untouched, err := store.Lookup(ctx, done.URL)
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}
	if untouched.Status != StatusTranscribed {
		t.Fatalf("transcribed entry should be untouched, got %s", untouched.Status)
	}
}

func TestRetryFailedSelectedURLs(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, url := range []string{"https://example.com/a", "https://example.com/b"} {
		entry, err := store.NewEntry(ctx, url)
		if err != nil {
			t.Fatalf("NewEntry returned error: %v", err)
		}
		entry.SetFailed("boom")
		if err := store.Upsert(ctx, entry); err != nil {
			t.Fatalf("Upsert returned error: %v", err)
		}
	}

	count, err := store.RetryFailed(ctx, "https://example.com/a")
	if err != nil {
		t.Fatalf("RetryFailed returned error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 reset entry, got %d", count)
	}

	other, err := store.Lookup(ctx, "https://example.com/b")
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}
	if other.Status != StatusFailed {
		t.Fatalf("unlisted entry should stay failed, got %s", other.Status)
	}
}

func TestListFiltersByStatus(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	pending, err := store.NewEntry(ctx, "https://example.com/pending")
	if err != nil {
		t.Fatalf("NewEntry returned error: %v", err)
	}
	_ = pending

	failed, err := store.NewEntry(ctx, "https://example.com/failed")
	if err != nil {
		t.Fatalf("NewEntry returned error: %v", err)
	}
	failed.SetFailed("boom")
	if err := store.Upsert(ctx, failed); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(all))
	}

	onlyFailed, err := store.List(ctx, StatusFailed)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(onlyFailed) != 1 || onlyFailed[0].Status != StatusFailed {
		t.Fatalf("unexpected failed listing: %+v", onlyFailed)
	}
}

func TestStatsCountsByStatus(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i, url := range []string{"https://example.com/1", "https://example.com/2", "https://example.com/3"} {
		entry, err := store.NewEntry(ctx, url)
		if err != nil {
			t.Fatalf("NewEntry returned error: %v", err)
		}
		if i == 0 {
			entry.SetFailed("boom")
			if err := store.Upsert(ctx, entry); err != nil {
				t.Fatalf("Upsert returned error: %v", err)
			}
		}
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats returned error: %v", err)
	}
	if stats[StatusPending] != 2 {
		t.Fatalf("expected 2 pending, got %d", stats[StatusPending])
	}
	if stats[StatusFailed] != 1 {
		t.Fatalf("expected 1 failed, got %d", stats[StatusFailed])
	}
}

func TestRemoveAndClear(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.NewEntry(ctx, "https://example.com/1"); err != nil {
		t.Fatalf("NewEntry returned error: %v", err)
	}
	if _, err := store.NewEntry(ctx, "https://example.com/2"); err != nil {
		t.Fatalf("NewEntry returned error: %v", err)
	}

	removed, err := store.Remove(ctx, "https://example.com/1")
	if err != nil {
		t.Fatalf("Remove returned error: %v", err)
	}
	if !removed {
		t.Fatal("expected Remove to report a deletion")
	}

	removed, err = store.Remove(ctx, "https://example.com/1")
	if err != nil {
		t.Fatalf("Remove returned error: %v", err)
	}
	if removed {
		t.Fatal("expected second Remove to be a no-op")
	}

	cleared, err := store.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear returned error: %v", err)
	}
	if cleared != 1 {
		t.Fatalf("expected 1 remaining entry cleared, got %d", cleared)
	}
}

func TestOpenSecondStoreFailsFast(t *testing.T) {
	cfg := newTestConfig(t)

	first, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer first.Close()

	if _, err := Open(cfg); err != ErrLocked {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
}

func TestReopenAfterReset(t *testing.T) {
	cfg := newTestConfig(t)

	store, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if _, err := store.NewEntry(context.Background(), "https://example.com/1"); err != nil {
		t.Fatalf("NewEntry returned error: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	if err := Reset(cfg); err != nil {
		t.Fatalf("Reset returned error: %v", err)
	}

	fresh, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open after reset returned error: %v", err)
	}
	defer fresh.Close()

	entries, err := fresh.List(context.Background())
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty cache after reset, got %d entries", len(entries))
	}
}

func TestOpenCorruptDatabaseFailsFast(t *testing.T) {
	cfg := newTestConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories returned error: %v", err)
	}

	dbPath := filepath.Join(cfg.Paths.CacheDir, "cache.db")
	if err := os.WriteFile(dbPath, []byte("this is not a sqlite database"), 0o644); err != nil {
		t.Fatalf("write garbage db: %v", err)
	}

	store, err := Open(cfg)
	if err == nil {
		store.Close()
		t.Fatal("expected error opening a corrupt database")
	}
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}

	// Reset is the only recovery path; a fresh store must open afterwards.
	if err := Reset(cfg); err != nil {
		t.Fatalf("Reset returned error: %v", err)
	}
	fresh, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open after reset returned error: %v", err)
	}
	fresh.Close()
}
