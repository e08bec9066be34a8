// Package ytdlp wraps the yt-dlp command line tool for audio extraction.
// Downloads land at a deterministic path derived from the canonical URL and
// transient failures are retried with a fixed delay.
package ytdlp
