package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateDownloader(); err != nil {
		return err
	}
	if err := c.validateTranscriber(); err != nil {
		return err
	}
	if err := c.validateSummary(); err != nil {
		return err
	}
	if err := c.validateOutput(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.CacheDir == "" {
		return errors.New("paths.cache_dir must be set")
	}
	if c.Paths.AudioDir == "" {
		return errors.New("paths.audio_dir must be set")
	}
	if c.Paths.OutputDir == "" {
		return errors.New("paths.output_dir must be set")
	}
	return nil
}

func (c *Config) validateDownloader() error {
	if c.Downloader.Binary == "" {
		return errors.New("downloader.binary must be set")
	}
	switch c.Downloader.AudioFormat {
	case "mp3", "m4a", "opus", "wav", "flac", "best":
	default:
		return fmt.Errorf("downloader.audio_format %q is not supported", c.Downloader.AudioFormat)
	}
	if err := ensurePositiveMap(map[string]int{
		"downloader.max_retries":         c.Downloader.MaxRetries,
		"downloader.retry_delay_seconds": c.Downloader.RetryDelaySeconds,
	}); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateTranscriber() error {
	if c.Transcriber.Binary == "" {
		return errors.New("transcriber.binary must be set")
	}
	if c.Transcriber.Model == "" {
		return errors.New("transcriber.model must be set")
	}
	return nil
}

func (c *Config) validateSummary() error {
	if c.Summary.TimeoutSeconds <= 0 {
		return errors.New("summary.timeout_seconds must be positive")
	}
	if c.Summary.Model == "" {
		return errors.New("summary.model must be set")
	}
	return nil
}

func (c *Config) validateOutput() error {
	if c.Output.CombinedFilename == "" {
		return errors.New("output.combined_filename must be set")
	}
	if strings.ContainsRune(c.Output.CombinedFilename, filepath.Separator) {
		return errors.New("output.combined_filename must be a bare filename, not a path")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
