// Package whisper wraps the whisper command line tool for transcription.
// It probes audio duration with ffprobe, parses whisper's JSON output into
// plain transcript text, and records timing statistics for reporting.
package whisper
