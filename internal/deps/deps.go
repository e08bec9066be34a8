package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"multiscribe/internal/config"
)

// Requirement defines an external tool the pipeline relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a requirement.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Required builds the requirement list for the configured binaries. ffmpeg
// is listed because yt-dlp shells out to it for audio extraction.
func Required(cfg *config.Config) []Requirement {
	return []Requirement{
		{
			Name:        "yt-dlp",
			Command:     cfg.Downloader.Binary,
			Description: "downloads audio from video URLs",
		},
		{
			Name:        "ffmpeg",
			Command:     "ffmpeg",
			Description: "audio extraction backend for yt-dlp",
		},
		{
			Name:        "ffprobe",
			Command:     cfg.Transcriber.FFprobeBinary,
			Description: "probes audio duration for timing statistics",
		},
		{
			Name:        "whisper",
			Command:     cfg.Transcriber.Binary,
			Description: "transcribes downloaded audio",
		},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

// Missing filters statuses down to required tools that are unavailable.
func Missing(statuses []Status) []Status {
	var missing []Status
	for _, status := range statuses {
		if !status.Available && !status.Optional {
			missing = append(missing, status)
		}
	}
	return missing
}

// Verify checks all required binaries and returns an error naming any that
// are missing.
func Verify(cfg *config.Config) error {
	missing := Missing(CheckBinaries(Required(cfg)))
	if len(missing) == 0 {
		return nil
	}
	names := make([]string, 0, len(missing))
	for _, status := range missing {
		names = append(names, status.Name)
	}
	return fmt.Errorf("missing required tools: %s", strings.Join(names, ", "))
}
