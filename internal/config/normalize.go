package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeDownloader()
	c.normalizeTranscriber()
	c.normalizeSummary()
	c.normalizeOutput()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		c.Paths.CacheDir = defaultCacheDir
	}
	if c.Paths.CacheDir, err = expandPath(c.Paths.CacheDir); err != nil {
		return fmt.Errorf("paths.cache_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.AudioDir) == "" {
		c.Paths.AudioDir = defaultAudioDir
	}
	if c.Paths.AudioDir, err = expandPath(c.Paths.AudioDir); err != nil {
		return fmt.Errorf("paths.audio_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeDownloader() {
	c.Downloader.Binary = strings.TrimSpace(c.Downloader.Binary)
	if c.Downloader.Binary == "" {
		c.Downloader.Binary = defaultYtdlpBinary
	}
	c.Downloader.AudioFormat = strings.ToLower(strings.TrimSpace(c.Downloader.AudioFormat))
	if c.Downloader.AudioFormat == "" {
		c.Downloader.AudioFormat = defaultAudioFormat
	}
	c.Downloader.AudioQuality = strings.TrimSpace(c.Downloader.AudioQuality)
	if c.Downloader.AudioQuality == "" {
		c.Downloader.AudioQuality = defaultAudioQuality
	}
	if c.Downloader.MaxRetries <= 0 {
		c.Downloader.MaxRetries = defaultMaxRetries
	}
	if c.Downloader.RetryDelaySeconds <= 0 {
		c.Downloader.RetryDelaySeconds = defaultRetryDelaySeconds
	}
}

func (c *Config) normalizeTranscriber() {
	c.Transcriber.Binary = strings.TrimSpace(c.Transcriber.Binary)
	if c.Transcriber.Binary == "" {
		c.Transcriber.Binary = defaultWhisperBinary
	}
	c.Transcriber.Model = strings.TrimSpace(c.Transcriber.Model)
	if c.Transcriber.Model == "" {
		c.Transcriber.Model = defaultWhisperModel
	}
	c.Transcriber.Language = strings.ToLower(strings.TrimSpace(c.Transcriber.Language))
	c.Transcriber.FFprobeBinary = strings.TrimSpace(c.Transcriber.FFprobeBinary)
	if c.Transcriber.FFprobeBinary == "" {
		c.Transcriber.FFprobeBinary = defaultFFprobeBinary
	}
}

func (c *Config) normalizeSummary() {
	c.Summary.APIKey = strings.TrimSpace(c.Summary.APIKey)
	if c.Summary.APIKey == "" {
		if value, ok := os.LookupEnv("OPENAI_API_KEY"); ok {
			c.Summary.APIKey = strings.TrimSpace(value)
		}
	}
	c.Summary.BaseURL = strings.TrimSpace(c.Summary.BaseURL)
	c.Summary.Model = strings.TrimSpace(c.Summary.Model)
	if c.Summary.Model == "" {
		c.Summary.Model = defaultSummaryModel
	}
	if c.Summary.TimeoutSeconds <= 0 {
		c.Summary.TimeoutSeconds = defaultSummaryTimeout
	}
}

func (c *Config) normalizeOutput() {
	c.Output.CombinedFilename = strings.TrimSpace(c.Output.CombinedFilename)
	if c.Output.CombinedFilename == "" {
		c.Output.CombinedFilename = defaultCombinedFilename
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
