package ytdlp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"multiscribe/internal/cache"
	"multiscribe/internal/config"
	"multiscribe/internal/logging"
	"multiscribe/internal/services"
	"multiscribe/internal/stage"
)

// CommandRunner executes an external command and returns its combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) (string, error)

// Service downloads audio tracks from video URLs with yt-dlp.
type Service struct {
	binary       string
	audioFormat  string
	audioQuality string
	maxRetries   int
	retryDelay   time.Duration
	audioDir     string
	logger       *slog.Logger
	runner       CommandRunner
}

// NewService constructs the downloader from configuration.
func NewService(cfg *config.Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		binary:       cfg.Downloader.Binary,
		audioFormat:  cfg.Downloader.AudioFormat,
		audioQuality: cfg.Downloader.AudioQuality,
		maxRetries:   cfg.Downloader.MaxRetries,
		retryDelay:   time.Duration(cfg.Downloader.RetryDelaySeconds) * time.Second,
		audioDir:     cfg.Paths.AudioDir,
		logger:       logging.NewComponentLogger(logger, "ytdlp"),
		runner:       runCommand,
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner CommandRunner) {
	s.runner = runner
}

// AudioPath returns the deterministic destination for a canonical URL. The
// name is derived from the URL so reruns find the same file.
func (s *Service) AudioPath(canonicalURL string) string {
	sum := sha256.Sum256([]byte(canonicalURL))
	name := hex.EncodeToString(sum[:8]) + "." + s.audioFormat
	return filepath.Join(s.audioDir, name)
}

// Execute downloads the audio for the entry, retrying transient failures,
// and records the audio path and title on the entry.
func (s *Service) Execute(ctx context.Context, entry *cache.Entry) error {
	if entry == nil || entry.URL == "" {
		return services.Wrap(services.ErrValidation, "download", "execute", "entry has no url", nil)
	}
	if err := os.MkdirAll(s.audioDir, 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "download", "ensure audio dir", s.audioDir, err)
	}

	dest := s.AudioPath(entry.URL)
	sourceURL := entry.OriginalURL
	if sourceURL == "" {
		sourceURL = entry.URL
	}

	if title, err := s.fetchTitle(ctx, sourceURL); err == nil && title != "" {
		entry.Title = title
	} else if err != nil {
		s.logger.Warn("title lookup failed", logging.String(logging.FieldURL, entry.URL), logging.Error(err))
	}

	args := s.buildDownloadArgs(sourceURL, dest)
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts(); attempt++ {
		output, err := s.runner(ctx, s.binary, args...)
		if err == nil {
			if _, statErr := os.Stat(dest); statErr != nil {
				return services.Wrap(services.ErrExternalTool, "download", "verify output",
					fmt.Sprintf("expected audio file %s was not produced", dest), statErr)
			}
			entry.AudioPath = dest
			return nil
		}
		lastErr = fmt.Errorf("%w: %s", err, firstLine(output))
		s.logger.Warn("download attempt failed",
			logging.String(logging.FieldURL, entry.URL),
			logging.Int("attempt", attempt),
			logging.Error(err))

		if attempt < s.maxAttempts() {
			if waitErr := sleepContext(ctx, s.retryDelay); waitErr != nil {
				return waitErr
			}
		}
	}

	return services.Wrap(services.ErrExternalTool, "download", "yt-dlp",
		fmt.Sprintf("all %d attempts failed", s.maxAttempts()), lastErr)
}

// HealthCheck verifies the yt-dlp binary responds.
func (s *Service) HealthCheck(ctx context.Context) stage.Health {
	if _, err := s.runner(ctx, s.binary, "--version"); err != nil {
		return stage.Unhealthy("download", fmt.Sprintf("%s unavailable: %v", s.binary, err))
	}
	return stage.Healthy("download")
}

func (s *Service) fetchTitle(ctx context.Context, url string) (string, error) {
	output, err := s.runner(ctx, s.binary,
		"--print", "title",
		"--skip-download",
		"--no-playlist",
		"--no-warnings",
		url,
	)
	if err != nil {
		return "", err
	}
	return firstLine(output), nil
}

func (s *Service) buildDownloadArgs(url, dest string) []string {
	return []string{
		"--extract-audio",
		"--audio-format", s.audioFormat,
		"--audio-quality", s.audioQuality,
		"--no-playlist",
		"--no-warnings",
		"-o", dest,
		url,
	}
}

func (s *Service) maxAttempts() int {
	if s.maxRetries < 1 {
		return 1
	}
	return s.maxRetries
}

func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		return string(output), fmt.Errorf("%s: %w", name, err)
	}
	return string(output), nil
}

func firstLine(output string) string {
	trimmed := strings.TrimSpace(output)
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
