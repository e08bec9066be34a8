package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"multiscribe/internal/cache"
	"multiscribe/internal/config"
	"multiscribe/internal/deps"
	"multiscribe/internal/logging"
	"multiscribe/internal/pipeline"
	"multiscribe/internal/services/summary"
	"multiscribe/internal/services/whisper"
	"multiscribe/internal/services/ytdlp"
	"multiscribe/internal/stage"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var inputPath string
	var summarize bool
	var retryFailed bool

	cmd := &cobra.Command{
		Use:   "run [url ...]",
		Short: "Process video URLs into transcripts",
		Long: "Downloads audio for each URL, transcribes it, and optionally summarizes the\n" +
			"transcript. Progress is cached per URL, so rerunning skips completed work.",
		RunE: func(cmd *cobra.Command, args []string) error {
			urls, err := collectURLs(args, inputPath)
			if err != nil {
				return err
			}
			if len(urls) == 0 {
				return fmt.Errorf("no URLs given; pass them as arguments or with --input")
			}

			return ctx.withStore(func(cfg *config.Config, store *cache.Store) error {
				if err := deps.Verify(cfg); err != nil {
					return fmt.Errorf("%w; run `multiscribe deps` for details", err)
				}

				logger, err := logging.NewFromConfig(cfg)
				if err != nil {
					return fmt.Errorf("initialize logging: %w", err)
				}

				downloader := ytdlp.NewService(cfg, logger)
				transcriber := whisper.NewService(cfg, logger)

				var summarizer *summary.Service
				if summarize {
					if summarizer, err = summary.NewService(cfg, logger); err != nil {
						return err
					}
				}

				runner := pipeline.New(cfg, store, downloader, transcriber, summarizerHandler(summarizer), logger)

				runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()

				opts := pipeline.Options{Summarize: summarize, RetryFailed: retryFailed}
				result, runErr := runner.Run(runCtx, urls, opts)
				if result != nil {
					out := cmd.OutOrStdout()
					fmt.Fprintln(out, renderBatchReport(out, result))
				}
				return runErr
			})
		},
	}

	cmd.Flags().StringVarP(&inputPath, "input", "i", "", "File with one URL per line")
	cmd.Flags().BoolVar(&summarize, "summarize", false, "Summarize each transcript")
	cmd.Flags().BoolVar(&retryFailed, "retry-failed", false, "Rerun previously failed URLs from scratch")
	return cmd
}

// summarizerHandler keeps the nil check out of pipeline.New; a typed nil
// pointer must not reach the handler map.
func summarizerHandler(svc *summary.Service) stage.Handler {
	if svc == nil {
		return nil
	}
	return svc
}

func collectURLs(args []string, inputPath string) ([]string, error) {
	urls := make([]string, 0, len(args))
	seen := make(map[string]struct{})

	appendURL := func(raw string) {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			return
		}
		if _, dup := seen[trimmed]; dup {
			return
		}
		seen[trimmed] = struct{}{}
		urls = append(urls, trimmed)
	}

	for _, arg := range args {
		appendURL(arg)
	}

	if inputPath != "" {
		file, err := os.Open(inputPath)
		if err != nil {
			return nil, fmt.Errorf("open input file: %w", err)
		}
		defer file.Close()

		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			appendURL(scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read input file: %w", err)
		}
	}

	return urls, nil
}

func renderBatchReport(out io.Writer, result *pipeline.BatchResult) string {
	headers := []string{"URL", "Title", "Status", "Stages", "Speed", "Detail"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft}

	rows := make([][]string, 0, len(result.Outcomes))
	for _, outcome := range result.Outcomes {
		status := string(outcome.Status)
		if outcome.Err != nil {
			status = "failed"
		} else if outcome.Skipped() {
			status = status + " (cached)"
		}

		stages := make([]string, 0, len(outcome.StagesRun))
		for _, st := range outcome.StagesRun {
			stages = append(stages, st.String())
		}

		speed := ""
		if factor := outcome.SpeedFactor(); factor > 0 {
			speed = fmt.Sprintf("%.1fx", factor)
		}

		rows = append(rows, []string{
			outcome.URL,
			truncate(outcome.Title, 40),
			status,
			strings.Join(stages, ","),
			speed,
			truncate(outcome.FailureReason(), 60),
		})
	}

	var b strings.Builder
	b.WriteString(renderTable(out, headers, rows, aligns))
	fmt.Fprintf(&b, "\nProcessed %d, skipped %d, failed %d in %s\n",
		result.Processed(), result.Skipped(), result.Failed(),
		result.Finished.Sub(result.Started).Round(100*time.Millisecond))
	if result.CombinedPath != "" {
		fmt.Fprintf(&b, "Combined transcript: %s\n", result.CombinedPath)
	}
	return b.String()
}

// truncate shortens value to limit runes, never splitting a multi-byte
// character.
func truncate(value string, limit int) string {
	if limit <= 3 || len(value) <= limit {
		return value
	}
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-3]) + "..."
}
