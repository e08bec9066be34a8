package pipeline

import (
	"time"

	"multiscribe/internal/cache"
	"multiscribe/internal/stage"
)

// Outcome records what happened to a single URL in a batch.
type Outcome struct {
	URL         string
	Title       string
	Status      cache.Status
	StagesRun   []stage.Stage
	CacheHit    bool
	Err         error
	AudioSecs   float64
	ElapsedSecs float64

	// Detail carries the persisted error message of a cached failed entry
	// that was skipped rather than retried this run.
	Detail string
}

// Skipped reports whether the URL needed no work this run.
func (o Outcome) Skipped() bool {
	return o.Err == nil && len(o.StagesRun) == 0
}

// FailureReason returns the message to show for a failed URL. A cached
// failure carries its stored error message; a fresh failure carries the
// error from this run. Empty for successful outcomes.
func (o Outcome) FailureReason() string {
	if o.Err != nil {
		return o.Err.Error()
	}
	return o.Detail
}

// SpeedFactor is the ratio of audio length to transcription time, the
// "x realtime" figure shown in reports. Zero when timing is unknown.
func (o Outcome) SpeedFactor() float64 {
	if o.AudioSecs <= 0 || o.ElapsedSecs <= 0 {
		return 0
	}
	return o.AudioSecs / o.ElapsedSecs
}

// BatchResult aggregates the outcomes of one run.
type BatchResult struct {
	BatchID      string
	Outcomes     []Outcome
	CombinedPath string
	Started      time.Time
	Finished     time.Time
}

// Processed counts URLs that had at least one stage executed successfully.
func (r *BatchResult) Processed() int {
	count := 0
	for _, outcome := range r.Outcomes {
		if outcome.Err == nil && len(outcome.StagesRun) > 0 {
			count++
		}
	}
	return count
}

// Skipped counts URLs satisfied entirely from cache.
func (r *BatchResult) Skipped() int {
	count := 0
	for _, outcome := range r.Outcomes {
		if outcome.Skipped() {
			count++
		}
	}
	return count
}

// Failed counts URLs whose processing ended in an error.
func (r *BatchResult) Failed() int {
	count := 0
	for _, outcome := range r.Outcomes {
		if outcome.Err != nil {
			count++
		}
	}
	return count
}
