package cache

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a cached URL.
type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloaded  Status = "downloaded"
	StatusTranscribed Status = "transcribed"
	StatusSummarized  Status = "summarized"
	StatusFailed      Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusDownloaded,
	StatusTranscribed,
	StatusSummarized,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// statusRank orders forward progress. Failed sits outside the ladder.
var statusRank = map[Status]int{
	StatusPending:     0,
	StatusDownloaded:  1,
	StatusTranscribed: 2,
	StatusSummarized:  3,
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// Entry is the cached processing state for one normalized URL.
type Entry struct {
	ID                int64
	URL               string // canonical key
	OriginalURL       string // URL as submitted by the caller
	Title             string
	Status            Status
	AudioPath         string
	TranscriptText    string
	SummaryText       string
	ErrorMessage      string
	AudioDurationSecs float64
	TranscribeSeconds float64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HasTranscript reports whether a transcript has been committed for the entry.
func (e *Entry) HasTranscript() bool {
	return strings.TrimSpace(e.TranscriptText) != ""
}

// Terminal reports whether the entry needs no further work in a run that does
// not request summarization.
func (e *Entry) Terminal() bool {
	switch e.Status {
	case StatusTranscribed, StatusSummarized, StatusFailed:
		return true
	default:
		return false
	}
}

// AtLeast reports whether the entry has progressed to the given status.
// Failed entries report false for every target.
func (e *Entry) AtLeast(status Status) bool {
	have, ok := statusRank[e.Status]
	if !ok {
		return false
	}
	want, ok := statusRank[status]
	if !ok {
		return false
	}
	return have >= want
}

// SetFailed marks the entry as failed with the given error message.
func (e *Entry) SetFailed(message string) {
	e.Status = StatusFailed
	e.ErrorMessage = message
}

// ResetForRetry returns the entry to the starting state, discarding partial
// artifacts so a retry runs every stage from scratch.
func (e *Entry) ResetForRetry() {
	e.Status = StatusPending
	e.AudioPath = ""
	e.TranscriptText = ""
	e.SummaryText = ""
	e.ErrorMessage = ""
	e.AudioDurationSecs = 0
	e.TranscribeSeconds = 0
}
