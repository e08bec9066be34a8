package config

const (
	defaultCacheDir          = "~/.local/share/multiscribe/cache"
	defaultAudioDir          = "~/.local/share/multiscribe/audio"
	defaultOutputDir         = "~/transcripts"
	defaultLogDir            = "~/.local/share/multiscribe/logs"
	defaultYtdlpBinary       = "yt-dlp"
	defaultAudioFormat       = "mp3"
	defaultAudioQuality      = "192"
	defaultMaxRetries        = 3
	defaultRetryDelaySeconds = 5
	defaultWhisperBinary     = "whisper"
	defaultWhisperModel      = "base"
	defaultFFprobeBinary     = "ffprobe"
	defaultSummaryModel      = "gpt-4o-mini"
	defaultSummaryTimeout    = 120
	defaultCombinedFilename  = "full_transcription.txt"
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			CacheDir:  defaultCacheDir,
			AudioDir:  defaultAudioDir,
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
		},
		Downloader: Downloader{
			Binary:            defaultYtdlpBinary,
			AudioFormat:       defaultAudioFormat,
			AudioQuality:      defaultAudioQuality,
			MaxRetries:        defaultMaxRetries,
			RetryDelaySeconds: defaultRetryDelaySeconds,
		},
		Transcriber: Transcriber{
			Binary:        defaultWhisperBinary,
			Model:         defaultWhisperModel,
			FFprobeBinary: defaultFFprobeBinary,
		},
		Summary: Summary{
			Model:          defaultSummaryModel,
			TimeoutSeconds: defaultSummaryTimeout,
		},
		Output: Output{
			CombinedFilename: defaultCombinedFilename,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
