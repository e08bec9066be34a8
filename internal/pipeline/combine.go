package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"multiscribe/internal/cache"
)

// Combine renders the combined transcript document. Sources appear in the
// order given, each under a header naming the video, so rerunning with the
// same inputs produces the same bytes.
func Combine(entries []*cache.Entry) string {
	var b strings.Builder
	for _, entry := range entries {
		if entry == nil || !entry.HasTranscript() {
			continue
		}
		// Failed entries are reported, never aggregated, even when a
		// transcript survived an earlier stage.
		if entry.Status == cache.StatusFailed {
			continue
		}
		title := strings.TrimSpace(entry.Title)
		if title == "" {
			title = entry.URL
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "=== %s ===\n", title)
		fmt.Fprintf(&b, "Source: %s\n\n", entry.URL)
		b.WriteString(strings.TrimSpace(entry.TranscriptText))
		b.WriteString("\n")
		if summary := strings.TrimSpace(entry.SummaryText); summary != "" {
			b.WriteString("\nSummary:\n")
			b.WriteString(summary)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// WriteCombined writes the combined transcript atomically by staging to a
// temp file in the destination directory and renaming over the target.
func WriteCombined(path, content string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure output dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write combined transcript: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace combined transcript: %w", err)
	}
	return nil
}
