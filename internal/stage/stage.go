package stage

import (
	"context"
	"fmt"

	"multiscribe/internal/cache"
)

// Stage identifies one step of the processing sequence.
type Stage string

const (
	Download   Stage = "download"
	Transcribe Stage = "transcribe"
	Summarize  Stage = "summarize"
)

// fullSequence is the complete stage order for a URL with no prior progress.
var fullSequence = []Stage{Download, Transcribe, Summarize}

// Handler describes the contract the pipeline runner needs from each stage.
type Handler interface {
	Execute(context.Context, *cache.Entry) error
	HealthCheck(context.Context) Health
}

// Completed maps a finished stage to the cache status it establishes.
func (s Stage) Completed() (cache.Status, error) {
	switch s {
	case Download:
		return cache.StatusDownloaded, nil
	case Transcribe:
		return cache.StatusTranscribed, nil
	case Summarize:
		return cache.StatusSummarized, nil
	default:
		return "", fmt.Errorf("unknown stage %q", s)
	}
}

func (s Stage) String() string {
	return string(s)
}
