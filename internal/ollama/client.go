package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kpauljoseph/studyguide/pkg/logger"
	"github.com/kpauljoseph/studyguide/pkg/models"
)

const (
	DefaultURL       = "http://localhost:11434"
	DefaultOCRModel  = "llama3.2-vision"
	DefaultChatModel = "orca-mini"
	DefaultTimeout   = 2 * time.Minute

	chatPath = "/api/chat"

	// cap on how much of an error body ends up in an ExtractionError
	maxErrorBody = 8 << 10
)

// ErrEmptyResponse is returned by Chat when the model answered with no choices.
var ErrEmptyResponse = errors.New("model returned no choices")

type Message struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// ChatRequest always carries stream:false. Ollama streams newline-delimited
// partial answers otherwise, and send decodes exactly one JSON body.
type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type Choice struct {
	Message struct {
		Role    string  `json:"role"`
		Content *string `json:"content"`
	} `json:"message"`
}

type ChatResponse struct {
	Choices []Choice `json:"choices"`
}

// ExtractionError is a failed call to the model endpoint: transport error,
// non-2xx status, or a body that is not the expected JSON.
type ExtractionError struct {
	StatusCode int
	Detail     string
	Err        error
}

func (e *ExtractionError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("extraction failed: status %d: %s: %v", e.StatusCode, e.Detail, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("extraction failed: status %d: %s", e.StatusCode, e.Detail)
	case e.Err != nil:
		return fmt.Sprintf("extraction failed: %s: %v", e.Detail, e.Err)
	default:
		return "extraction failed: " + e.Detail
	}
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

type Config struct {
	URL       string
	OCRModel  string
	ChatModel string
	// Timeout bounds each HTTP call. Zero means DefaultTimeout.
	Timeout time.Duration
}

// Client talks to an Ollama-style /api/chat endpoint. It never retries.
type Client struct {
	baseURL    string
	ocrModel   string
	chatModel  string
	httpClient *http.Client
	logger     *logger.Logger
}

func NewClient(cfg Config, log *logger.Logger) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.OCRModel == "" {
		cfg.OCRModel = DefaultOCRModel
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = DefaultChatModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.URL, "/"),
		ocrModel:  cfg.OCRModel,
		chatModel: cfg.ChatModel,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: log,
	}
}

// ExtractText transcribes every image in a single request. A well-formed
// answer without choices is an Empty outcome, not an error.
func (c *Client) ExtractText(ctx context.Context, images []string) (models.Outcome, error) {
	if len(images) == 0 {
		return models.Outcome{}, &ExtractionError{Detail: "no images to transcribe"}
	}

	c.logger.Info("Extracting text from %d image(s) with %s", len(images), c.ocrModel)

	resp, err := c.send(ctx, ChatRequest{
		Model: c.ocrModel,
		Messages: []Message{{
			Role:    "user",
			Content: TranscriptionPrompt,
			Images:  images,
		}},
	})
	if err != nil {
		return models.Outcome{}, err
	}

	text, ok := firstContent(resp)
	if !ok {
		c.logger.Warn("Model returned no choices for %d image(s)", len(images))
		return models.Empty(), nil
	}
	return models.OK(text), nil
}

// Chat sends a single user prompt to the chat model and returns its answer.
func (c *Client) Chat(ctx context.Context, prompt string) (string, error) {
	resp, err := c.send(ctx, ChatRequest{
		Model:    c.chatModel,
		Messages: []Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", err
	}

	text, ok := firstContent(resp)
	if !ok {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func firstContent(resp *ChatResponse) (string, bool) {
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == nil {
		return "", false
	}
	return strings.TrimSpace(*resp.Choices[0].Message.Content), true
}

func (c *Client) send(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	req.Stream = false
	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chatPath, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &ExtractionError{Detail: "request to " + c.baseURL + chatPath + " failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ExtractionError{StatusCode: resp.StatusCode, Detail: "failed to read response", Err: err}
	}
	c.logger.Trace("POST %s -> %d in %s (%d bytes)", chatPath, resp.StatusCode, time.Since(start), len(body))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ExtractionError{StatusCode: resp.StatusCode, Detail: truncate(strings.TrimSpace(string(body)), maxErrorBody)}
	}

	var parsed ChatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &ExtractionError{StatusCode: resp.StatusCode, Detail: "malformed response body", Err: err}
	}
	return &parsed, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
