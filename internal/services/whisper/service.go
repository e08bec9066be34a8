package whisper

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
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

// Service transcribes downloaded audio with the whisper command line tool.
type Service struct {
	binary        string
	model         string
	language      string
	ffprobeBinary string
	logger        *slog.Logger
	runner        CommandRunner
	lookPath      func(string) (string, error)
	now           func() time.Time
}

// NewService constructs the transcriber from configuration.
func NewService(cfg *config.Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		binary:        cfg.Transcriber.Binary,
		model:         cfg.Transcriber.Model,
		language:      cfg.Transcriber.Language,
		ffprobeBinary: cfg.Transcriber.FFprobeBinary,
		logger:        logging.NewComponentLogger(logger, "whisper"),
		runner:        runCommand,
		lookPath:      exec.LookPath,
		now:           time.Now,
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner CommandRunner) {
	s.runner = runner
}

// Execute transcribes the entry's audio file and records the transcript and
// timing statistics on the entry.
func (s *Service) Execute(ctx context.Context, entry *cache.Entry) error {
	if entry == nil || entry.AudioPath == "" {
		return services.Wrap(services.ErrValidation, "transcribe", "execute", "entry has no audio path", nil)
	}
	if _, err := os.Stat(entry.AudioPath); err != nil {
		return services.Wrap(services.ErrValidation, "transcribe", "execute",
			fmt.Sprintf("audio file %s missing", entry.AudioPath), err)
	}

	if duration, err := s.AudioDuration(ctx, entry.AudioPath); err == nil {
		entry.AudioDurationSecs = duration
	} else {
		s.logger.Warn("audio duration probe failed",
			logging.String("audio_path", entry.AudioPath), logging.Error(err))
	}

	outputDir := filepath.Dir(entry.AudioPath)
	args := s.buildArgs(entry.AudioPath, outputDir)

	started := s.now()
	if _, err := s.runner(ctx, s.binary, args...); err != nil {
		return services.Wrap(services.ErrExternalTool, "transcribe", "whisper", "transcription failed", err)
	}
	entry.TranscribeSeconds = s.now().Sub(started).Seconds()

	baseName := strings.TrimSuffix(filepath.Base(entry.AudioPath), filepath.Ext(entry.AudioPath))
	jsonPath := filepath.Join(outputDir, baseName+".json")
	text, err := loadTranscriptText(jsonPath)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "transcribe", "read output",
			fmt.Sprintf("whisper produced no usable output at %s", jsonPath), err)
	}
	if strings.TrimSpace(text) == "" {
		return services.Wrap(services.ErrExternalTool, "transcribe", "read output", "transcript is empty", nil)
	}
	entry.TranscriptText = text

	if entry.AudioDurationSecs > 0 && entry.TranscribeSeconds > 0 {
		s.logger.Info("transcription complete",
			logging.String(logging.FieldURL, entry.URL),
			logging.Float64("audio_seconds", entry.AudioDurationSecs),
			logging.Float64("transcribe_seconds", entry.TranscribeSeconds),
			logging.Float64("speed_factor", entry.AudioDurationSecs/entry.TranscribeSeconds))
	}
	return nil
}

// HealthCheck verifies the whisper and ffprobe binaries are on PATH.
func (s *Service) HealthCheck(ctx context.Context) stage.Health {
	if _, err := s.lookPath(s.binary); err != nil {
		return stage.Unhealthy("transcribe", fmt.Sprintf("%s not found on PATH", s.binary))
	}
	if _, err := s.lookPath(s.ffprobeBinary); err != nil {
		return stage.Unhealthy("transcribe", fmt.Sprintf("%s not found on PATH", s.ffprobeBinary))
	}
	return stage.Healthy("transcribe")
}

// AudioDuration probes the audio file length in seconds with ffprobe.
func (s *Service) AudioDuration(ctx context.Context, audioPath string) (float64, error) {
	output, err := s.runner(ctx, s.ffprobeBinary,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		audioPath,
	)
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	duration, err := strconv.ParseFloat(strings.TrimSpace(output), 64)
	if err != nil {
		return 0, fmt.Errorf("parse ffprobe duration %q: %w", strings.TrimSpace(output), err)
	}
	return duration, nil
}

func (s *Service) buildArgs(audioPath, outputDir string) []string {
	args := []string{
		audioPath,
		"--model", s.model,
		"--output_format", "json",
		"--output_dir", outputDir,
		"--verbose", "False",
	}
	if s.language != "" {
		args = append(args, "--language", s.language)
	}
	return args
}

// Segment is one transcribed span from whisper JSON output.
type Segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type whisperPayload struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
}

// LoadSegments loads segments from a whisper JSON file.
func LoadSegments(jsonPath string) ([]Segment, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, err
	}
	var payload whisperPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse whisper json: %w", err)
	}
	return payload.Segments, nil
}

// loadTranscriptText concatenates segment text from a whisper JSON file,
// falling back to the top level text field when no segments are present.
func loadTranscriptText(jsonPath string) (string, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return "", err
	}
	var payload whisperPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", fmt.Errorf("parse whisper json: %w", err)
	}

	var parts []string
	for _, seg := range payload.Segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, " "), nil
	}
	return strings.TrimSpace(payload.Text), nil
}

func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		return string(output), fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return string(output), nil
}
