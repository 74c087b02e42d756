package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/phrazzld/scry-research/internal/config"
	"github.com/phrazzld/scry-research/internal/generation"
	"github.com/phrazzld/scry-research/internal/redact"
	"github.com/sethvargo/go-retry"
	"google.golang.org/genai"
)

const (
	defaultMaxRetries = 3
	defaultRetryDelay = 2 * time.Second
	maxRetryDelay     = time.Minute
)

// contentGenerator is the slice of genai.Models used by the generator.
type contentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		cfg *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// GeminiGenerator implements generation.Generator using the genai
// GenerateContent endpoint.
type GeminiGenerator struct {
	logger     *slog.Logger
	models     contentGenerator
	model      string
	apiKey     string
	maxRetries int
	baseDelay  time.Duration
}

var _ generation.Generator = (*GeminiGenerator)(nil)

// NewGeminiGenerator creates a GeminiGenerator from the LLM configuration.
func NewGeminiGenerator(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*GeminiGenerator, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	if timeout := cfg.RequestTimeout(); timeout > 0 {
		clientConfig.HTTPOptions.Timeout = &timeout
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %s",
			generation.ErrInvalidConfig, redact.Secret(err.Error(), cfg.GeminiAPIKey))
	}

	return newGeminiGenerator(logger, client.Models, cfg), nil
}

func newGeminiGenerator(logger *slog.Logger, models contentGenerator, cfg config.LLMConfig) *GeminiGenerator {
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		logger.Warn("invalid max retries value, using default", "max_retries", defaultMaxRetries)
		maxRetries = defaultMaxRetries
	}
	baseDelay := cfg.RetryDelay()
	if baseDelay <= 0 {
		baseDelay = defaultRetryDelay
	}

	return &GeminiGenerator{
		logger:     logger,
		models:     models,
		model:      cfg.ModelName,
		apiKey:     cfg.GeminiAPIKey,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
	}
}

// Generate sends role as the system instruction and topic as the user turn,
// retrying transient failures with exponential backoff.
func (g *GeminiGenerator) Generate(ctx context.Context, role, topic string) (string, error) {
	if strings.TrimSpace(topic) == "" {
		return "", ErrEmptyTopic
	}

	genConfig := &genai.GenerateContentConfig{}
	if strings.TrimSpace(role) != "" {
		genConfig.SystemInstruction = genai.NewContentFromText(role, genai.RoleUser)
	}

	return g.callGeminiWithRetry(ctx, genai.Text(topic), genConfig)
}

// backoff returns a fresh retry policy; go-retry backoffs are stateful.
func (g *GeminiGenerator) backoff() retry.Backoff {
	b := retry.NewExponential(g.baseDelay)
	b = retry.WithJitterPercent(25, b)
	b = retry.WithCappedDuration(maxRetryDelay, b)
	return retry.WithMaxRetries(uint64(g.maxRetries), b)
}

func (g *GeminiGenerator) callGeminiWithRetry(
	ctx context.Context,
	contents []*genai.Content,
	genConfig *genai.GenerateContentConfig,
) (string, error) {
	attempt := 0
	text, err := retry.DoValue(ctx, g.backoff(), func(ctx context.Context) (string, error) {
		attempt++
		g.logger.InfoContext(ctx, "making Gemini API call",
			"attempt", attempt,
			"max_attempts", g.maxRetries+1,
			"model", g.model)

		resp, err := g.models.GenerateContent(ctx, g.model, contents, genConfig)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			classified := g.classify(err)
			g.logger.ErrorContext(ctx, "Gemini API call failed",
				"attempt", attempt,
				"error", redact.Error(classified))
			if errors.Is(classified, generation.ErrTransientFailure) {
				return "", retry.RetryableError(classified)
			}
			return "", classified
		}

		text, err := responseText(resp)
		if err != nil {
			g.logger.WarnContext(ctx, "permanent error occurred, not retrying",
				"attempt", attempt,
				"error", err)
			return "", err
		}
		return text, nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return "", fmt.Errorf("%w: %w", generation.ErrTransientFailure, ctxErr)
		}
		return "", err
	}

	g.logger.InfoContext(ctx, "Gemini API call successful",
		"attempt", attempt,
		"text_length", len(text))
	return text, nil
}

// classify maps a GenerateContent error to a generation sentinel. Rate
// limits, server errors and network failures are transient.
func (g *GeminiGenerator) classify(err error) error {
	msg := redact.Secret(err.Error(), g.apiKey)

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == 429 || apiErr.Code >= 500 {
			return fmt.Errorf("%w: %s", generation.ErrTransientFailure, msg)
		}
		return fmt.Errorf("%w: %s", generation.ErrGenerationFailed, msg)
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", generation.ErrTransientFailure, msg)
	}
	return fmt.Errorf("%w: %s", generation.ErrGenerationFailed, msg)
}

// responseText concatenates the non-thought text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", fmt.Errorf("%w: nil response", generation.ErrInvalidResponse)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: prompt blocked (%s)", generation.ErrContentBlocked, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no content generated", generation.ErrInvalidResponse)
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w: content blocked by safety filters", generation.ErrContentBlocked)
	}
	if candidate.Content == nil {
		return "", fmt.Errorf("%w: empty content in response", generation.ErrInvalidResponse)
	}

	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		b.WriteString(part.Text)
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", fmt.Errorf("%w: response contained no text", generation.ErrInvalidResponse)
	}
	return b.String(), nil
}
