package stage

import "multiscribe/internal/cache"

// Options control how Resolve treats prior progress.
type Options struct {
	// Summarize adds the summarize stage to the sequence when the cached
	// entry has not been summarized yet.
	Summarize bool

	// RetryFailed reruns failed entries from scratch. Without it a failed
	// entry resolves to no stages and is reported rather than retried.
	RetryFailed bool
}

// Resolve returns the stages still needed for the entry given its cached
// progress. A nil entry means the URL was never seen and gets the full
// sequence. Stages already reflected in the entry status are never rerun;
// in particular a downloaded entry keeps its audio and is never
// re-downloaded, and a committed transcript is never regenerated.
func Resolve(entry *cache.Entry, opts Options) []Stage {
	sequence := func(stages ...Stage) []Stage {
		result := make([]Stage, 0, len(stages))
		for _, stage := range stages {
			if stage == Summarize && !opts.Summarize {
				continue
			}
			result = append(result, stage)
		}
		if len(result) == 0 {
			return nil
		}
		return result
	}

	if entry == nil {
		return sequence(fullSequence...)
	}

	switch entry.Status {
	case cache.StatusPending:
		return sequence(fullSequence...)
	case cache.StatusDownloaded:
		return sequence(Transcribe, Summarize)
	case cache.StatusTranscribed:
		// A transcribed entry that already carries a summary owes nothing.
		if entry.SummaryText != "" {
			return nil
		}
		return sequence(Summarize)
	case cache.StatusSummarized:
		return nil
	case cache.StatusFailed:
		if opts.RetryFailed {
			return sequence(fullSequence...)
		}
		return nil
	default:
		return nil
	}
}
