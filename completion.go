package pdfquiz

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

// Completion defaults.
const (
	DefaultTemperature = 0.2
	MaxTemperature     = 2.0
	DefaultMaxTokens   = 2000
	DefaultTimeout     = 90 * time.Second
	MinTimeout         = 60 * time.Second
	MaxTimeout         = 120 * time.Second

	DefaultOpenAIModel = openai.GPT4oMini
	DefaultGroqModel   = "llama3-8b-8192"
	GroqBaseURL        = "https://api.groq.com/openai/v1"
)

// Provider names accepted in LLMConfig.Provider.
const (
	ProviderOpenAI = "openai"
	ProviderGroq   = "groq"
	ProviderVertex = "vertex"
)

// Completer sends one prompt to a language model and returns its raw reply.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// NewCompleter builds the completer named by cfg.Provider. The credential is
// checked here so a misconfigured process fails at startup.
func NewCompleter(ctx context.Context, cfg LLMConfig, logger *logrus.Logger) (Completer, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderOpenAI:
		return NewOpenAICompleter(cfg, logger)
	case ProviderGroq:
		if cfg.BaseURL == "" {
			cfg.BaseURL = GroqBaseURL
		}
		if cfg.Model == "" {
			cfg.Model = DefaultGroqModel
		}
		return NewOpenAICompleter(cfg, logger)
	case ProviderVertex:
		return NewVertexCompleter(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// OpenAICompleter talks to any OpenAI-compatible chat completions endpoint.
type OpenAICompleter struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	logger      *logrus.Logger
}

// NewOpenAICompleter creates a completer. It fails with ErrUpstreamAuth when
// no API key is configured.
func NewOpenAICompleter(cfg LLMConfig, logger *logrus.Logger) (*OpenAICompleter, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, newError(StageCompletion, ErrUpstreamAuth, "no API key configured", nil)
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	config.HTTPClient = &http.Client{Timeout: timeout}

	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	temperature := cfg.EffectiveTemperature()
	if temperature == 0 {
		// go-openai drops a zero temperature from the request body and
		// the API then falls back to 1.
		temperature = math.SmallestNonzeroFloat32
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	return &OpenAICompleter{
		client:      openai.NewClientWithConfig(config),
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		logger:      orDiscard(logger),
	}, nil
}

// Complete sends prompt as a single user message and returns the content of
// the first choice.
func (c *OpenAICompleter) Complete(ctx context.Context, prompt string) (string, error) {
	c.logger.WithFields(logrus.Fields{
		"model":        c.model,
		"prompt_chars": len(prompt),
	}).Debug("Sending chat completion request")

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", newError(StageCompletion, ErrUpstream, "response contained no choices", nil)
	}
	return resp.Choices[0].Message.Content, nil
}

func classifyOpenAIError(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return newError(StageCompletion, ErrUpstreamUnavailable, "request cancelled or timed out", err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.HTTPStatusCode, apiErr.Message, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(reqErr.HTTPStatusCode, string(reqErr.Body), err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return newError(StageCompletion, ErrUpstreamUnavailable, "transport error", err)
	}
	return newError(StageCompletion, ErrUpstream, "unreadable response envelope", err)
}

func classifyStatus(status int, message string, err error) *Error {
	detail := fmt.Sprintf("status %d", status)
	if message = strings.TrimSpace(message); message != "" {
		detail += ": " + message
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return newError(StageCompletion, ErrUpstreamAuth, detail, err)
	default:
		return newError(StageCompletion, ErrUpstream, detail, err)
	}
}
