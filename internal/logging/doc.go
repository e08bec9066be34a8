// Package logging builds slog loggers with multiscribe's console and JSON
// handlers plus helpers for attaching standardized structured fields.
//
// The console handler renders compact single-line records with a leading
// component prefix; the JSON handler normalizes timestamp and level keys for
// machine consumption. Context helpers carry the batch ID, stage name, and
// source URL so every pipeline log line can be correlated without threading
// loggers through each call site.
package logging
