package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"multiscribe/internal/cache"
	"multiscribe/internal/config"
	"multiscribe/internal/logging"
	"multiscribe/internal/services"
	"multiscribe/internal/stage"
)

// Options control a single batch run.
type Options struct {
	// Summarize requests the summarize stage for every URL.
	Summarize bool

	// RetryFailed reruns previously failed URLs from scratch instead of
	// reporting and skipping them.
	RetryFailed bool
}

// Runner drives the stage sequence for each URL in a batch, persisting
// progress to the cache after every stage so an interrupted run resumes
// where it stopped.
type Runner struct {
	cfg      *config.Config
	store    *cache.Store
	handlers map[stage.Stage]stage.Handler
	events   EventSink
	logger   *slog.Logger
}

// New constructs a runner. The summarizer handler may be nil when no API key
// is configured; requesting summarization then fails up front.
func New(cfg *config.Config, store *cache.Store, downloader, transcriber, summarizer stage.Handler, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	handlers := map[stage.Stage]stage.Handler{
		stage.Download:   downloader,
		stage.Transcribe: transcriber,
	}
	if summarizer != nil {
		handlers[stage.Summarize] = summarizer
	}
	return &Runner{
		cfg:      cfg,
		store:    store,
		handlers: handlers,
		events:   NewLogSink(logger),
		logger:   logging.NewComponentLogger(logger, "pipeline"),
	}
}

// WithEventSink replaces the default logging sink.
func (r *Runner) WithEventSink(sink EventSink) {
	if sink == nil {
		sink = NopSink{}
	}
	r.events = sink
}

// HealthCheck verifies every handler needed for the run is ready.
func (r *Runner) HealthCheck(ctx context.Context, opts Options) []stage.Health {
	order := []stage.Stage{stage.Download, stage.Transcribe}
	if opts.Summarize {
		order = append(order, stage.Summarize)
	}
	checks := make([]stage.Health, 0, len(order))
	for _, st := range order {
		handler, ok := r.handlers[st]
		if !ok || handler == nil {
			checks = append(checks, stage.Unhealthy(st.String(), "no handler configured"))
			continue
		}
		checks = append(checks, handler.HealthCheck(ctx))
	}
	return checks
}

// Run processes the URLs in order. Failures on one URL are recorded and do
// not stop the rest of the batch; only cache persistence errors and context
// cancellation abort the run. The combined transcript is rewritten at the
// end of every run from all entries in the batch that have transcripts.
func (r *Runner) Run(ctx context.Context, urls []string, opts Options) (*BatchResult, error) {
	if len(urls) == 0 {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "run", "no URLs given", nil)
	}
	if opts.Summarize {
		if _, ok := r.handlers[stage.Summarize]; !ok {
			return nil, services.Wrap(services.ErrConfiguration, "pipeline", "run",
				"summarization requested but no summarizer is configured", nil)
		}
	}

	batchID := uuid.NewString()
	ctx = services.WithBatchID(ctx, batchID)
	result := &BatchResult{BatchID: batchID, Started: time.Now()}

	r.logger.Info("batch started",
		logging.String(logging.FieldBatchID, batchID),
		logging.Int("url_count", len(urls)),
		logging.Bool("summarize", opts.Summarize),
		logging.Bool("retry_failed", opts.RetryFailed))

	var batchEntries []*cache.Entry
	for _, rawURL := range urls {
		if err := ctx.Err(); err != nil {
			result.Finished = time.Now()
			return result, err
		}

		outcome, entry, err := r.processURL(ctx, rawURL, opts)
		result.Outcomes = append(result.Outcomes, outcome)
		if entry != nil {
			batchEntries = append(batchEntries, entry)
		}
		if err != nil {
			// Persistence and cancellation errors stop the batch; the
			// outcome for the failing URL is already recorded.
			result.Finished = time.Now()
			return result, err
		}
	}

	combined := Combine(batchEntries)
	if combined != "" {
		path := r.cfg.CombinedTranscriptPath()
		if err := WriteCombined(path, combined); err != nil {
			result.Finished = time.Now()
			return result, fmt.Errorf("write combined transcript: %w", err)
		}
		result.CombinedPath = path
	}

	result.Finished = time.Now()
	r.events.BatchCompleted(ctx, result)
	return result, nil
}

// processURL runs the remaining stages for one URL. The returned error is
// only non-nil for batch-fatal conditions.
func (r *Runner) processURL(ctx context.Context, rawURL string, opts Options) (Outcome, *cache.Entry, error) {
	outcome := Outcome{URL: strings.TrimSpace(rawURL)}

	canonical, err := cache.Canonical(rawURL)
	if err != nil {
		outcome.Err = services.Wrap(services.ErrValidation, "pipeline", "normalize url", rawURL, err)
		outcome.Status = cache.StatusFailed
		return outcome, nil, nil
	}
	outcome.URL = canonical
	ctx = services.WithURL(ctx, canonical)

	entry, err := r.store.Lookup(ctx, canonical)
	if err != nil {
		outcome.Err = err
		return outcome, nil, fmt.Errorf("cache lookup for %s: %w", canonical, err)
	}

	stages := stage.Resolve(entry, stage.Options{Summarize: opts.Summarize, RetryFailed: opts.RetryFailed})

	if entry == nil {
		if entry, err = r.store.NewEntry(ctx, rawURL); err != nil {
			outcome.Err = err
			return outcome, nil, fmt.Errorf("create cache entry for %s: %w", canonical, err)
		}
	} else {
		outcome.CacheHit = true
	}
	outcome.Title = entry.Title
	outcome.Status = entry.Status

	if len(stages) == 0 {
		if entry.Status == cache.StatusFailed {
			outcome.Detail = entry.ErrorMessage
		}
		r.logger.Info("cache hit, nothing to do",
			logging.String(logging.FieldURL, canonical),
			logging.String("status", string(entry.Status)))
		return outcome, entry, nil
	}

	if entry.Status == cache.StatusFailed {
		entry.ResetForRetry()
		if err := r.store.Upsert(ctx, entry); err != nil {
			outcome.Err = err
			return outcome, entry, fmt.Errorf("persist retry reset for %s: %w", canonical, err)
		}
	}

	for _, st := range stages {
		ctx := services.WithStage(ctx, st.String())
		handler := r.handlers[st]
		if handler == nil {
			outcome.Err = services.Wrap(services.ErrConfiguration, st.String(), "execute", "no handler configured", nil)
			break
		}

		r.events.StageStarted(ctx, canonical, st)
		started := time.Now()
		execErr := handler.Execute(ctx, entry)
		if execErr != nil {
			if errors.Is(execErr, context.Canceled) || errors.Is(execErr, context.DeadlineExceeded) {
				outcome.Err = execErr
				return outcome, entry, execErr
			}
			r.events.StageFailed(ctx, canonical, st, execErr)
			entry.SetFailed(failureMessage(st, execErr))
			if err := r.store.Upsert(ctx, entry); err != nil {
				outcome.Err = err
				return outcome, entry, fmt.Errorf("persist failure for %s: %w", canonical, err)
			}
			outcome.Err = execErr
			outcome.Status = cache.StatusFailed
			return outcome, entry, nil
		}

		done, err := st.Completed()
		if err != nil {
			outcome.Err = err
			return outcome, entry, err
		}
		entry.Status = done
		entry.ErrorMessage = ""
		if err := r.store.Upsert(ctx, entry); err != nil {
			outcome.Err = err
			return outcome, entry, fmt.Errorf("persist %s result for %s: %w", st, canonical, err)
		}
		r.events.StageCompleted(ctx, canonical, st, time.Since(started))
		outcome.StagesRun = append(outcome.StagesRun, st)

		if st == stage.Transcribe && !r.cfg.Output.KeepAudio {
			r.cleanupAudio(ctx, entry)
		}
	}

	outcome.Title = entry.Title
	outcome.Status = entry.Status
	outcome.AudioSecs = entry.AudioDurationSecs
	outcome.ElapsedSecs = entry.TranscribeSeconds
	return outcome, entry, nil
}

// cleanupAudio removes the intermediate audio file once the transcript is
// committed. Failure to remove is logged, never fatal.
func (r *Runner) cleanupAudio(ctx context.Context, entry *cache.Entry) {
	if entry.AudioPath == "" {
		return
	}
	if err := os.Remove(entry.AudioPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		r.logger.Warn("audio cleanup failed",
			logging.String(logging.FieldURL, entry.URL),
			logging.String("audio_path", entry.AudioPath),
			logging.Error(err))
		return
	}
	entry.AudioPath = ""
	if err := r.store.Upsert(ctx, entry); err != nil {
		r.logger.Warn("persist audio cleanup failed",
			logging.String(logging.FieldURL, entry.URL),
			logging.Error(err))
	}
}

func failureMessage(st stage.Stage, err error) string {
	message := strings.TrimSpace(err.Error())
	if message == "" {
		return fmt.Sprintf("%s failed without error detail", st)
	}
	return message
}
