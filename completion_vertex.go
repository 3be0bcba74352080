package pdfquiz

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/vertexai/genai"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Vertex defaults.
const (
	DefaultVertexModel  = "gemini-2.5-flash"
	DefaultVertexRegion = "us-central1"
)

// VertexCompleter sends prompts to a Gemini model on Vertex AI.
type VertexCompleter struct {
	client  *genai.Client
	model   *genai.GenerativeModel
	timeout time.Duration
	logger  *logrus.Logger
}

// NewVertexCompleter connects to Vertex AI with application default
// credentials. A missing project or unusable credentials fail with
// ErrUpstreamAuth. opts are passed to the underlying client, e.g.
// genai.WithREST or option.WithEndpoint.
func NewVertexCompleter(ctx context.Context, cfg LLMConfig, logger *logrus.Logger, opts ...option.ClientOption) (*VertexCompleter, error) {
	if strings.TrimSpace(cfg.VertexProject) == "" {
		return nil, newError(StageCompletion, ErrUpstreamAuth, "no Vertex AI project configured", nil)
	}
	region := cfg.VertexRegion
	if region == "" {
		region = DefaultVertexRegion
	}

	client, err := genai.NewClient(ctx, cfg.VertexProject, region, opts...)
	if err != nil {
		return nil, newError(StageCompletion, ErrUpstreamAuth, "failed to create Vertex AI client", err)
	}

	name := cfg.Model
	if name == "" {
		name = DefaultVertexModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	model := client.GenerativeModel(name)
	model.GenerationConfig = genai.GenerationConfig{
		Temperature:     genai.Ptr(cfg.EffectiveTemperature()),
		MaxOutputTokens: genai.Ptr[int32](int32(maxTokens)),
	}

	return &VertexCompleter{client: client, model: model, timeout: timeout, logger: orDiscard(logger)}, nil
}

// Complete implements Completer.
func (c *VertexCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.logger.WithFields(logrus.Fields{
		"model":        c.model.Name(),
		"prompt_chars": len(prompt),
	}).Debug("Sending Vertex AI request")

	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		if ctx.Err() != nil {
			return "", newError(StageCompletion, ErrUpstreamUnavailable, "request cancelled or timed out", errors.Join(ctx.Err(), err))
		}
		return "", classifyVertexError(err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", newError(StageCompletion, ErrUpstream, "response contained no candidates", nil)
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String(), nil
}

// Close releases the underlying client.
func (c *VertexCompleter) Close() error {
	return c.client.Close()
}

func classifyVertexError(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return newError(StageCompletion, ErrUpstreamUnavailable, "request cancelled or timed out", err)
	}
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return newError(StageCompletion, ErrUpstream, "response blocked by safety filters", err)
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unauthenticated, codes.PermissionDenied:
			return newError(StageCompletion, ErrUpstreamAuth, st.Message(), err)
		case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
			return newError(StageCompletion, ErrUpstreamUnavailable, st.Message(), err)
		}
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return newError(StageCompletion, ErrUpstreamAuth, apiErr.Message, err)
		case http.StatusRequestTimeout, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return newError(StageCompletion, ErrUpstreamUnavailable, apiErr.Message, err)
		}
	}
	return newError(StageCompletion, ErrUpstream, "vertex request failed", err)
}
