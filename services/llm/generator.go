// Package llm turns prompts and screenshots into component source with an
// OpenAI chat model.
package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/LivePreview/services/preview/generation"
)

const (
	// DefaultModel is used when neither config nor OPENAI_MODEL names one.
	DefaultModel = "gpt-4.1-mini"

	secretPath = "/run/secrets/openai_api_key"

	// sharedCallTimeout bounds a completion shared by several callers. The
	// shared call does not inherit any one caller's cancellation.
	sharedCallTimeout = 90 * time.Second
)

var (
	// ErrNoAPIKey is returned by the vision path when no key is configured.
	ErrNoAPIKey = errors.New("no OPENAI_API_KEY set; vision endpoint cannot call OpenAI")

	// ErrEmptyCompletion is returned when the model answers with no text.
	ErrEmptyCompletion = errors.New("model returned no content")
)

// Config configures a Generator. Empty fields fall back to the environment.
type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// LoadAPIKey reads OPENAI_API_KEY, then the mounted secret file.
func LoadAPIKey() string {
	if key := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); key != "" {
		return key
	}
	if data, err := os.ReadFile(secretPath); err == nil {
		return strings.TrimSpace(string(data))
	}
	return ""
}

// Generator calls the chat completions API.
//
// # Thread Safety
//
// Safe for concurrent use. Identical text prompts in flight at the same
// time share one upstream call.
type Generator struct {
	client *openai.Client
	model  string
	logger *slog.Logger
	group  singleflight.Group
}

// NewGenerator creates a generator. Without an API key it still works and
// serves FallbackCode for text prompts.
func NewGenerator(cfg Config) *Generator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "llm")

	model := cfg.Model
	if model == "" {
		model = os.Getenv("OPENAI_MODEL")
	}
	if model == "" {
		model = DefaultModel
	}

	g := &Generator{model: model, logger: logger}
	if cfg.APIKey == "" {
		logger.Warn("OPENAI_API_KEY not set; text generation will serve fallback code")
		return g
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}
	g.client = openai.NewClientWithConfig(clientCfg)
	logger.Info("Initializing OpenAI generator", "model", model)
	return g
}

// Model returns the configured model name.
func (g *Generator) Model() string {
	return g.model
}

// HasKey reports whether upstream calls are possible.
func (g *Generator) HasKey() bool {
	return g.client != nil
}

// GenerateUI answers a text prompt.
//
// # Outputs
//
//   - code: Component source. FallbackCode when no key is configured or the
//     upstream quota is exhausted.
//   - notice: Set together with fallback code, empty otherwise.
//   - err: ErrEmptyCompletion, or the wrapped upstream error.
func (g *Generator) GenerateUI(ctx context.Context, prompt string) (code, notice string, err error) {
	if g.client == nil {
		return FallbackCode, NoticeNoAPIKey, nil
	}

	type answer struct{ code, notice string }
	ch := g.group.DoChan("text\x00"+prompt, func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedCallTimeout)
		defer cancel()

		code, err := g.complete(callCtx, []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		})
		if isRateLimited(err) {
			g.logger.Warn("OpenAI rate limited; serving fallback code")
			return answer{FallbackCode, NoticeRateLimit}, nil
		}
		if err != nil {
			return nil, err
		}
		return answer{code: code}, nil
	})

	select {
	case <-ctx.Done():
		return "", "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", "", res.Err
		}
		if res.Shared {
			g.logger.Debug("text prompt shared an in-flight completion")
		}
		a := res.Val.(answer)
		return a.code, a.notice, nil
	}
}

// GenerateVision answers a screenshot.
func (g *Generator) GenerateVision(ctx context.Context, image []byte, mimeType string) (string, error) {
	if g.client == nil {
		return "", ErrNoAPIKey
	}
	if mimeType == "" {
		mimeType = "image/png"
	}
	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image)

	return g.complete(ctx, []openai.ChatCompletionMessage{
		{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: VisionPrompt},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: dataURL}},
			},
		},
	})
}

// Generate implements generation.Generator for in-process sessions.
func (g *Generator) Generate(ctx context.Context, req generation.Request) (*generation.Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	source := req.Source()
	var (
		code, notice string
		err          error
	)
	if source == generation.SourceVision {
		code, err = g.GenerateVision(ctx, req.Image, req.ImageMIME)
	} else {
		code, notice, err = g.GenerateUI(ctx, req.Prompt)
	}

	switch {
	case err == nil:
		return &generation.Result{Code: code, Notice: notice, Source: source}, nil
	case errors.Is(err, ErrNoAPIKey), errors.Is(err, ErrEmptyCompletion):
		return nil, &generation.GenerationError{Message: err.Error()}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, err
	default:
		return nil, &generation.TransportError{Op: "openai", StatusCode: statusCode(err), Err: err}
	}
}

func (g *Generator) complete(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	g.logger.Debug("Generating component via OpenAI", "model", g.model)
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    g.model,
		Messages: messages,
	})
	if err != nil {
		if !isRateLimited(err) {
			g.logger.Error("OpenAI API call failed", "error", err)
		}
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		g.logger.Warn("OpenAI returned no choices or empty content")
		return "", ErrEmptyCompletion
	}
	g.logger.Debug("Received response from OpenAI", "finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}

func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func isRateLimited(err error) bool {
	return err != nil && statusCode(err) == http.StatusTooManyRequests
}
