// Package pipeline orchestrates the download, transcribe, and summarize
// stages for a batch of URLs. It consults the cache before every URL so
// completed work is never repeated, persists progress after each stage, and
// isolates per-URL failures from the rest of the batch.
package pipeline
