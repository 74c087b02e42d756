package gemini

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/phrazzld/scry-research/internal/config"
	"github.com/phrazzld/scry-research/internal/prompt"
	"github.com/phrazzld/scry-research/internal/redact"
	"github.com/phrazzld/scry-research/internal/research"
)

// DefaultBaseURL is the Gemini API host used when none is configured.
const DefaultBaseURL = "https://generativelanguage.googleapis.com"

const (
	interactionsPath = "/v1beta/interactions"
	maxErrorBody     = 4 << 10
)

type interactionRequest struct {
	Agent      string `json:"agent"`
	Input      string `json:"input"`
	Background bool   `json:"background"`
}

type interactionOutput struct {
	Type string `json:"type,omitempty"`
	Text string `json:"text,omitempty"`
}

type interaction struct {
	ID      string              `json:"id"`
	Status  string              `json:"status"`
	Outputs []interactionOutput `json:"outputs,omitempty"`
	Error   jsontext.Value      `json:"error,omitempty"`
}

// InteractionsClient implements research.Client against the Gemini
// Interactions REST API using a background deep-research agent.
type InteractionsClient struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	agent      string
	logger     *slog.Logger
}

var _ research.Client = (*InteractionsClient)(nil)

// NewInteractionsClient creates a client for cfg.ResearchAgent. A nil
// httpClient gets one bounded by cfg.RequestTimeout.
func NewInteractionsClient(cfg config.LLMConfig, httpClient *http.Client, logger *slog.Logger) (*InteractionsClient, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, errors.New("gemini API key cannot be empty")
	}
	if cfg.ResearchAgent == "" {
		return nil, errors.New("research agent cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.RequestTimeout()}
	}

	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}

	return &InteractionsClient{
		httpClient: httpClient,
		endpoint:   strings.TrimRight(base, "/") + interactionsPath,
		apiKey:     cfg.GeminiAPIKey,
		agent:      cfg.ResearchAgent,
		logger:     logger.With("component", "interactions_client"),
	}, nil
}

// Submit starts a background interaction and returns its id.
func (c *InteractionsClient) Submit(ctx context.Context, role, topic string) (string, error) {
	req := interactionRequest{
		Agent:      c.agent,
		Input:      prompt.Compose(role, topic),
		Background: true,
	}

	var out interaction
	if err := c.do(ctx, http.MethodPost, c.endpoint, req, &out); err != nil {
		return "", fmt.Errorf("%w: %w", research.ErrSubmission, err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("%w: provider returned no interaction id", research.ErrSubmission)
	}

	c.logger.InfoContext(ctx, "research interaction submitted",
		"interaction_id", out.ID,
		"agent", c.agent,
		"status", out.Status)
	return out.ID, nil
}

// Poll reads the current state of an interaction.
func (c *InteractionsClient) Poll(ctx context.Context, handleID string) (*research.PollResult, error) {
	if handleID == "" {
		return nil, fmt.Errorf("%w: empty interaction id", research.ErrPollTransient)
	}

	var out interaction
	if err := c.do(ctx, http.MethodGet, c.endpoint+"/"+handleID, nil, &out); err != nil {
		return nil, fmt.Errorf("%w: %w", research.ErrPollTransient, err)
	}

	result := &research.PollResult{
		Status:    mapStatus(out.Status),
		RawStatus: out.Status,
	}
	switch result.Status {
	case research.StatusCompleted:
		result.Output = research.NormalizeMarkdown(lastText(out.Outputs))
	case research.StatusFailed, research.StatusCancelled:
		result.ErrorDetail = c.scrub(errorDetail(out.Error))
	}
	return result, nil
}

func (c *InteractionsClient) do(ctx context.Context, method, url string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			Code: resp.StatusCode,
			Body: c.scrub(strings.TrimSpace(string(data))),
		}
	}

	if err := json.UnmarshalRead(resp.Body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *InteractionsClient) scrub(s string) string {
	return redact.String(redact.Secret(s, c.apiKey))
}

// mapStatus folds provider status strings into the research vocabulary.
// Anything unrecognised is treated as still running.
func mapStatus(raw string) research.Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "completed", "succeeded", "done":
		return research.StatusCompleted
	case "failed", "error":
		return research.StatusFailed
	case "cancelled", "canceled":
		return research.StatusCancelled
	default:
		return research.StatusInProgress
	}
}

// lastText returns the text of the last output that carries any.
func lastText(outputs []interactionOutput) string {
	for i := len(outputs) - 1; i >= 0; i-- {
		if outputs[i].Text != "" {
			return outputs[i].Text
		}
	}
	return ""
}

// errorDetail accepts either a bare string or an object with a message.
func errorDetail(raw jsontext.Value) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var obj struct {
		Message string `json:"message"`
		Status  string `json:"status"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		switch {
		case obj.Message != "":
			return obj.Message
		case obj.Status != "":
			return obj.Status
		}
	}
	return strings.TrimSpace(string(raw))
}
