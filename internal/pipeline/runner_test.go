package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"multiscribe/internal/cache"
	"multiscribe/internal/config"
	"multiscribe/internal/stage"
)

type fakeHandler struct {
	name    string
	calls   int
	execute func(ctx context.Context, entry *cache.Entry) error
}

func (f *fakeHandler) Execute(ctx context.Context, entry *cache.Entry) error {
	f.calls++
	if f.execute != nil {
		return f.execute(ctx, entry)
	}
	return nil
}

func (f *fakeHandler) HealthCheck(ctx context.Context) stage.Health {
	return stage.Healthy(f.name)
}

type testHarness struct {
	cfg         *config.Config
	store       *cache.Store
	downloader  *fakeHandler
	transcriber *fakeHandler
	summarizer  *fakeHandler
	runner      *Runner
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.Paths.CacheDir = filepath.Join(root, "cache")
	cfg.Paths.AudioDir = filepath.Join(root, "audio")
	cfg.Paths.OutputDir = filepath.Join(root, "output")
	cfg.Paths.LogDir = filepath.Join(root, "logs")
	cfg.Output.KeepAudio = true

	store, err := cache.Open(&cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	h := &testHarness{
		cfg:   &cfg,
		store: store,
		downloader: &fakeHandler{name: "download", execute: func(ctx context.Context, entry *cache.Entry) error {
			entry.Title = "Video " + entry.URL[strings.LastIndex(entry.URL, "=")+1:]
			entry.AudioPath = filepath.Join(cfg.Paths.AudioDir, "clip.mp3")
			return nil
		}},
		transcriber: &fakeHandler{name: "transcribe", execute: func(ctx context.Context, entry *cache.Entry) error {
			entry.TranscriptText = "transcript for " + entry.URL
			entry.AudioDurationSecs = 120
			entry.TranscribeSeconds = 30
			return nil
		}},
		summarizer: &fakeHandler{name: "summarize", execute: func(ctx context.Context, entry *cache.Entry) error {
			entry.SummaryText = "summary for " + entry.URL
			return nil
		}},
	}
	h.runner = New(h.cfg, h.store, h.downloader, h.transcriber, h.summarizer, nil)
	h.runner.WithEventSink(NopSink{})
	return h
}

func TestRunProcessesNewURL(t *testing.T) {
	h := newHarness(t)

	result, err := h.runner.Run(context.Background(), []string{"https://example.com/watch?v=abc"}, Options{})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.Processed() != 1 || result.Failed() != 0 {
		t.Fatalf("unexpected totals: %+v", result)
	}
	if h.downloader.calls != 1 || h.transcriber.calls != 1 {
		t.Fatalf("expected one call each, got download=%d transcribe=%d", h.downloader.calls, h.transcriber.calls)
	}
	if h.summarizer.calls != 0 {
		t.Fatal("summarizer should not run without the option")
	}

	entry, err := h.store.Lookup(context.Background(), "https://example.com/watch?v=abc")
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}
	if entry.Status != cache.StatusTranscribed {
		t.Fatalf("expected transcribed, got %s", entry.Status)
	}
	if !entry.HasTranscript() {
		t.Fatal("transcript not persisted")
	}
}

func TestRunSkipsCachedTranscription(t *testing.T) {
	h := newHarness(t)
	url := "https://example.com/watch?v=abc"

	if _, err := h.runner.Run(context.Background(), []string{url}, Options{}); err != nil {
		t.Fatalf("first Run returned error: %v", err)
	}

	result, err := h.runner.Run(context.Background(), []string{url}, Options{})
	if err != nil {
		t.Fatalf("second Run returned error: %v", err)
	}
	if result.Skipped() != 1 {
		t.Fatalf("expected cache hit, got %+v", result.Outcomes)
	}
	if h.downloader.calls != 1 || h.transcriber.calls != 1 {
		t.Fatalf("cached URL was reprocessed: download=%d transcribe=%d", h.downloader.calls, h.transcriber.calls)
	}
}

func TestRunResumesFromDownloadedState(t *testing.T) {
	h := newHarness(t)
	url := "https://example.com/watch?v=abc"

	entry, err := h.store.NewEntry(context.Background(), url)
	if err != nil {
		t.Fatalf("NewEntry returned error: %v", err)
	}
	entry.Status = cache.StatusDownloaded
	entry.AudioPath = filepath.Join(h.cfg.Paths.AudioDir, "clip.mp3")
	if err := h.store.Upsert(context.Background(), entry); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}

	if _, err := h.runner.Run(context.Background(), []string{url}, Options{}); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if h.downloader.calls != 0 {
		t.Fatal("downloaded entry must never be downloaded again")
	}
	if h.transcriber.calls != 1 {
		t.Fatalf("expected transcription, got %d calls", h.transcriber.calls)
	}
}

func TestRunSummarizeOnlyForTranscribedEntry(t *testing.T) {
	h := newHarness(t)
	url := "https://example.com/watch?v=abc"

	if _, err := h.runner.Run(context.Background(), []string{url}, Options{}); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	result, err := h.runner.Run(context.Background(), []string{url}, Options{Summarize: true})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if h.downloader.calls != 1 || h.transcriber.calls != 1 {
		t.Fatal("earlier stages reran for summarize-only request")
	}
	if h.summarizer.calls != 1 {
		t.Fatalf("expected summarizer call, got %d", h.summarizer.calls)
	}
	if result.Outcomes[0].Status != cache.StatusSummarized {
		t.Fatalf("expected summarized status, got %s", result.Outcomes[0].Status)
	}
}

func TestRunSummarizeWithoutHandlerFails(t *testing.T) {
	h := newHarness(t)
	runner := New(h.cfg, h.store, h.downloader, h.transcriber, nil, nil)
	runner.WithEventSink(NopSink{})

	if _, err := runner.Run(context.Background(), []string{"https://example.com/x"}, Options{Summarize: true}); err == nil {
		t.Fatal("expected error when summarizer is not configured")
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	h := newHarness(t)
	h.downloader.execute = func(ctx context.Context, entry *cache.Entry) error {
		if strings.Contains(entry.URL, "bad") {
			return errors.New("download blew up")
		}
		entry.AudioPath = filepath.Join(h.cfg.Paths.AudioDir, "clip.mp3")
		return nil
	}

	urls := []string{"https://example.com/watch?v=bad", "https://example.com/watch?v=good"}
	result, err := h.runner.Run(context.Background(), urls, Options{})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.Failed() != 1 || result.Processed() != 1 {
		t.Fatalf("unexpected totals: failed=%d processed=%d", result.Failed(), result.Processed())
	}

	failed, err := h.store.Lookup(context.Background(), "https://example.com/watch?v=bad")
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}
	if failed.Status != cache.StatusFailed {
		t.Fatalf("expected failed status, got %s", failed.Status)
	}
	if failed.ErrorMessage == "" {
		t.Fatal("expected error message recorded")
	}

	good, err := h.store.Lookup(context.Background(), "https://example.com/watch?v=good")
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}
	if good.Status != cache.StatusTranscribed {
		t.Fatalf("good URL should finish, got %s", good.Status)
	}
}

func TestRunFailedEntrySkippedWithoutRetry(t *testing.T) {
	h := newHarness(t)
	url := "https://example.com/watch?v=abc"

	entry, err := h.store.NewEntry(context.Background(), url)
	if err != nil {
		t.Fatalf("NewEntry returned error: %v", err)
	}
	entry.SetFailed("earlier failure")
	if err := h.store.Upsert(context.Background(), entry); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}

	result, err := h.runner.Run(context.Background(), []string{url}, Options{})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.Skipped() != 1 {
		t.Fatalf("failed entry should be skipped without retry option: %+v", result.Outcomes)
	}
	if h.downloader.calls != 0 {
		t.Fatal("failed entry was reprocessed without retry option")
	}
	// The persisted error message must survive into the outcome so the
	// report can show why the URL is failed.
	if got := result.Outcomes[0].FailureReason(); got != "earlier failure" {
		t.Fatalf("expected stored failure reason, got %q", got)
	}
}

func TestRunRetryFailedRestartsFromScratch(t *testing.T) {
	h := newHarness(t)
	url := "https://example.com/watch?v=abc"

	entry, err := h.store.NewEntry(context.Background(), url)
	if err != nil {
		t.Fatalf("NewEntry returned error: %v", err)
	}
	entry.SetFailed("earlier failure")
	entry.AudioPath = "/tmp/partial.mp3"
	if err := h.store.Upsert(context.Background(), entry); err != nil {
		t.Fatalf("Upsert returned error: %v", err)
	}

	result, err := h.runner.Run(context.Background(), []string{url}, Options{RetryFailed: true})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.Processed() != 1 {
		t.Fatalf("expected retry to process, got %+v", result.Outcomes)
	}
	if h.downloader.calls != 1 || h.transcriber.calls != 1 {
		t.Fatalf("retry should run full sequence: download=%d transcribe=%d", h.downloader.calls, h.transcriber.calls)
	}

	stored, err := h.store.Lookup(context.Background(), url)
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}
	if stored.Status != cache.StatusTranscribed {
		t.Fatalf("expected transcribed after retry, got %s", stored.Status)
	}
	if stored.ErrorMessage != "" {
		t.Fatalf("error message should be cleared, got %q", stored.ErrorMessage)
	}
}

func TestRunWritesCombinedTranscript(t *testing.T) {
	h := newHarness(t)

	urls := []string{
		"https://example.com/watch?v=one",
		"https://example.com/watch?v=two",
	}
	result, err := h.runner.Run(context.Background(), urls, Options{})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.CombinedPath == "" {
		t.Fatal("expected combined transcript path")
	}

	data, err := os.ReadFile(result.CombinedPath)
	if err != nil {
		t.Fatalf("read combined transcript: %v", err)
	}
	content := string(data)
	first := strings.Index(content, "watch?v=one")
	second := strings.Index(content, "watch?v=two")
	if first < 0 || second < 0 {
		t.Fatalf("combined transcript missing sources:\n%s", content)
	}
	if first > second {
		t.Fatal("combined transcript must preserve input order")
	}
}

func TestRunRemovesAudioWhenNotKept(t *testing.T) {
	h := newHarness(t)
	h.cfg.Output.KeepAudio = false

	audioPath := filepath.Join(h.cfg.Paths.AudioDir, "clip.mp3")
	h.downloader.execute = func(ctx context.Context, entry *cache.Entry) error {
		if err := os.MkdirAll(filepath.Dir(audioPath), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(audioPath, []byte("audio"), 0o644); err != nil {
			return err
		}
		entry.AudioPath = audioPath
		return nil
	}

	if _, err := h.runner.Run(context.Background(), []string{"https://example.com/watch?v=abc"}, Options{}); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if _, err := os.Stat(audioPath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("audio file should be removed, stat err=%v", err)
	}
	entry, err := h.store.Lookup(context.Background(), "https://example.com/watch?v=abc")
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}
	if entry.AudioPath != "" {
		t.Fatalf("audio path should be cleared, got %q", entry.AudioPath)
	}
}

func TestRunInvalidURLReportedNotFatal(t *testing.T) {
	h := newHarness(t)

	result, err := h.runner.Run(context.Background(), []string{"ftp://example.com/file", "https://example.com/ok"}, Options{})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.Failed() != 1 || result.Processed() != 1 {
		t.Fatalf("unexpected totals: %+v", result.Outcomes)
	}
}

func TestRunCancelledContextAborts(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := h.runner.Run(ctx, []string{"https://example.com/x"}, Options{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestHealthCheckReportsMissingSummarizer(t *testing.T) {
	h := newHarness(t)
	runner := New(h.cfg, h.store, h.downloader, h.transcriber, nil, nil)

	checks := runner.HealthCheck(context.Background(), Options{Summarize: true})
	if len(checks) != 3 {
		t.Fatalf("expected 3 checks, got %d", len(checks))
	}
	if checks[2].Ready {
		t.Fatal("missing summarizer should be unhealthy")
	}
}
