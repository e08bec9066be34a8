package summary

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"

	"multiscribe/internal/cache"
	"multiscribe/internal/config"
	"multiscribe/internal/logging"
	"multiscribe/internal/services"
	"multiscribe/internal/stage"
)

const systemPrompt = "You summarize transcripts of spoken audio. Produce a concise summary that captures the main points, conclusions, and any action items. Use short paragraphs, no preamble."

// maxTranscriptChars bounds the transcript sent per request. Longer
// transcripts are truncated rather than chunked.
const maxTranscriptChars = 48000

// ChatClient is the slice of the OpenAI client the summarizer needs.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Service produces summaries of transcripts through an OpenAI-compatible
// chat completion endpoint.
type Service struct {
	client  ChatClient
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewService constructs the summarizer from configuration. It returns an
// error when no API key is available.
func NewService(cfg *config.Config, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg.Summary.APIKey == "" {
		return nil, services.Wrap(services.ErrConfiguration, "summarize", "new service",
			"no API key configured; set summary.api_key or OPENAI_API_KEY", nil)
	}

	clientConfig := openai.DefaultConfig(cfg.Summary.APIKey)
	if cfg.Summary.BaseURL != "" {
		clientConfig.BaseURL = cfg.Summary.BaseURL
	}

	return &Service{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   cfg.Summary.Model,
		timeout: time.Duration(cfg.Summary.TimeoutSeconds) * time.Second,
		logger:  logging.NewComponentLogger(logger, "summary"),
	}, nil
}

// WithClient sets a custom chat client (for testing).
func (s *Service) WithClient(client ChatClient) {
	s.client = client
}

// Execute summarizes the entry's transcript and records the result.
func (s *Service) Execute(ctx context.Context, entry *cache.Entry) error {
	if entry == nil || !entry.HasTranscript() {
		return services.Wrap(services.ErrValidation, "summarize", "execute", "entry has no transcript", nil)
	}

	transcript := entry.TranscriptText
	if len(transcript) > maxTranscriptChars {
		cut := maxTranscriptChars
		// Back off to a rune boundary so the request stays valid UTF-8.
		for cut > 0 && !utf8.RuneStart(transcript[cut]) {
			cut--
		}
		transcript = transcript[:cut]
		s.logger.Warn("transcript truncated for summarization",
			logging.String(logging.FieldURL, entry.URL),
			logging.Int("limit_chars", maxTranscriptChars))
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: transcript},
		},
	})
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "summarize", "chat completion", "request failed", err)
	}
	if len(resp.Choices) == 0 {
		return services.Wrap(services.ErrExternalTool, "summarize", "chat completion", "response had no choices", nil)
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return services.Wrap(services.ErrExternalTool, "summarize", "chat completion", "summary is empty", nil)
	}
	entry.SummaryText = text
	return nil
}

// HealthCheck reports readiness. The client is constructed eagerly, so a
// missing key fails at NewService; here only the model name is validated.
func (s *Service) HealthCheck(ctx context.Context) stage.Health {
	if s.model == "" {
		return stage.Unhealthy("summarize", "no model configured")
	}
	return stage.Healthy("summarize")
}

// String names the configured model for logging.
func (s *Service) String() string {
	return fmt.Sprintf("summary(%s)", s.model)
}
