package pdfquiz

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/vertexai/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// newFakeVertex starts a Vertex AI REST endpoint served by handler and
// returns a completer pointed at it.
func newFakeVertex(t *testing.T, cfg LLMConfig, handler http.HandlerFunc) *VertexCompleter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg.VertexProject = "test-project"
	c, err := NewVertexCompleter(context.Background(), cfg, nil,
		genai.WithREST(),
		option.WithEndpoint(srv.URL),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func writeVertexJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

func TestVertexCompleterReturnsText(t *testing.T) {
	var path string
	var got struct {
		GenerationConfig struct {
			Temperature     *float64 `json:"temperature"`
			MaxOutputTokens int      `json:"maxOutputTokens"`
		} `json:"generationConfig"`
	}
	zero := float32(0)
	c := newFakeVertex(t, LLMConfig{Temperature: &zero, Timeout: 5 * time.Second}, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeVertexJSON(w, http.StatusOK, `{"candidates": [{"content": {"role": "model", "parts": [{"text": "[{\"question\": "}, {"text": "\"Q?\"}]"}]}}]}`)
	})

	out, err := c.Complete(context.Background(), "the prompt")
	require.NoError(t, err)
	assert.Equal(t, `[{"question": "Q?"}]`, out)

	assert.True(t, strings.HasSuffix(path, "/models/"+DefaultVertexModel+":generateContent"), "path %s", path)
	require.NotNil(t, got.GenerationConfig.Temperature, "zero temperature must still be sent")
	assert.Zero(t, *got.GenerationConfig.Temperature)
	assert.Equal(t, DefaultMaxTokens, got.GenerationConfig.MaxOutputTokens)
}

func TestVertexCompleterTimeout(t *testing.T) {
	c := newFakeVertex(t, LLMConfig{Timeout: 500 * time.Millisecond}, func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})

	begin := time.Now()
	_, err := c.Complete(context.Background(), "p")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUpstreamUnavailable), "got %v", err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
	assert.Less(t, time.Since(begin), 3*time.Second)
}

func TestVertexCompleterResponses(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"no candidates", http.StatusOK, `{"candidates": []}`, ErrUpstream},
		{"empty body", http.StatusOK, `{}`, ErrUpstream},
		{"prompt blocked", http.StatusOK, `{"promptFeedback": {"blockReason": "SAFETY"}}`, ErrUpstream},
		{"forbidden", http.StatusForbidden, `{"error": {"code": 403, "message": "permission denied", "status": "PERMISSION_DENIED"}}`, ErrUpstreamAuth},
		{"unavailable", http.StatusServiceUnavailable, `{"error": {"code": 503, "message": "overloaded", "status": "UNAVAILABLE"}}`, ErrUpstreamUnavailable},
		{"server error", http.StatusInternalServerError, `{"error": {"code": 500, "message": "boom", "status": "INTERNAL"}}`, ErrUpstream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newFakeVertex(t, LLMConfig{Timeout: 5 * time.Second}, func(w http.ResponseWriter, r *http.Request) {
				io.Copy(io.Discard, r.Body)
				writeVertexJSON(w, tt.status, tt.body)
			})

			_, err := c.Complete(context.Background(), "p")
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			pe, ok := AsError(err)
			require.True(t, ok)
			assert.Equal(t, StageCompletion, pe.Stage)
		})
	}
}

func TestClassifyVertexError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"unauthenticated", status.Error(codes.Unauthenticated, "bad token"), ErrUpstreamAuth},
		{"permission denied", status.Error(codes.PermissionDenied, "no access"), ErrUpstreamAuth},
		{"unavailable", status.Error(codes.Unavailable, "try later"), ErrUpstreamUnavailable},
		{"grpc deadline", status.Error(codes.DeadlineExceeded, "slow"), ErrUpstreamUnavailable},
		{"grpc canceled", status.Error(codes.Canceled, "gone"), ErrUpstreamUnavailable},
		{"invalid argument", status.Error(codes.InvalidArgument, "bad request"), ErrUpstream},
		{"blocked", &genai.BlockedError{Candidate: &genai.Candidate{FinishReason: genai.FinishReasonSafety}}, ErrUpstream},
		{"http unauthorized", &googleapi.Error{Code: http.StatusUnauthorized, Message: "login"}, ErrUpstreamAuth},
		{"http gateway timeout", &googleapi.Error{Code: http.StatusGatewayTimeout}, ErrUpstreamUnavailable},
		{"http too many requests", &googleapi.Error{Code: http.StatusTooManyRequests, Message: "quota"}, ErrUpstream},
		{"context deadline", context.DeadlineExceeded, ErrUpstreamUnavailable},
		{"plain error", errors.New("boom"), ErrUpstream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyVertexError(tt.err)
			assert.True(t, errors.Is(got, tt.want), "got %v", got)
			assert.Equal(t, StageCompletion, got.Stage)
			assert.True(t, errors.Is(got, tt.err))
		})
	}
}
