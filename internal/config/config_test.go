package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"multiscribe/internal/config"
)

func TestDefaultValues(t *testing.T) {
	cfg := config.Default()
	if cfg.Downloader.Binary != "yt-dlp" {
		t.Fatalf("unexpected downloader binary: %q", cfg.Downloader.Binary)
	}
	if cfg.Transcriber.Model != "base" {
		t.Fatalf("unexpected whisper model: %q", cfg.Transcriber.Model)
	}
	if cfg.Output.CombinedFilename != "full_transcription.txt" {
		t.Fatalf("unexpected combined filename: %q", cfg.Output.CombinedFilename)
	}
	if cfg.Logging.Format != "console" || cfg.Logging.Level != "info" {
		t.Fatalf("unexpected logging defaults: %+v", cfg.Logging)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatal("expected missing config file")
	}
	if resolved != path {
		t.Fatalf("expected resolved path %q, got %q", path, resolved)
	}
	if cfg.Downloader.MaxRetries != 3 {
		t.Fatalf("expected default max_retries, got %d", cfg.Downloader.MaxRetries)
	}
}

func TestLoadParsesAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := strings.Join([]string{
		"[paths]",
		`cache_dir = "` + filepath.Join(dir, "cache") + `"`,
		"[downloader]",
		`audio_format = "OPUS"`,
		"[transcriber]",
		`model = "large-v3"`,
		`language = " EN "`,
		"[logging]",
		`format = "JSON"`,
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if cfg.Downloader.AudioFormat != "opus" {
		t.Fatalf("expected normalized audio format, got %q", cfg.Downloader.AudioFormat)
	}
	if cfg.Transcriber.Model != "large-v3" {
		t.Fatalf("unexpected model: %q", cfg.Transcriber.Model)
	}
	if cfg.Transcriber.Language != "en" {
		t.Fatalf("expected normalized language, got %q", cfg.Transcriber.Language)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected json log format, got %q", cfg.Logging.Format)
	}
	if cfg.Paths.CacheDir != filepath.Join(dir, "cache") {
		t.Fatalf("unexpected cache dir: %q", cfg.Paths.CacheDir)
	}
}

func TestLoadRejectsInvalidAudioFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := "[downloader]\naudio_format = \"ogg-vorbis\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected validation error for unsupported audio format")
	}
}

func TestValidateRejectsCombinedFilenameWithPath(t *testing.T) {
	cfg := config.Default()
	cfg.Output.CombinedFilename = filepath.Join("nested", "out.txt")
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for combined filename containing a path separator")
	}
}

func TestSummaryAPIKeyEnvFallback(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	path := filepath.Join(t.TempDir(), "config.toml")
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Summary.APIKey != "sk-test" {
		t.Fatalf("expected env fallback for summary API key, got %q", cfg.Summary.APIKey)
	}
	if !cfg.SummaryEnabled() {
		t.Fatal("expected summarization to be enabled with API key present")
	}
}

func TestExpandPathTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}
	got, err := config.ExpandPath("~/transcripts")
	if err != nil {
		t.Fatalf("ExpandPath failed: %v", err)
	}
	if got != filepath.Join(home, "transcripts") {
		t.Fatalf("unexpected expansion: %q", got)
	}
}

func TestCombinedTranscriptPath(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.OutputDir = "/tmp/out"
	cfg.Output.CombinedFilename = "combined.txt"
	if got := cfg.CombinedTranscriptPath(); got != filepath.Join("/tmp/out", "combined.txt") {
		t.Fatalf("unexpected combined path: %q", got)
	}
}
