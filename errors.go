package pdfquiz

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// Stage names the pipeline step an error came from.
type Stage string

const (
	StageRequest    Stage = "request"
	StageExtraction Stage = "extraction"
	StagePrompt     Stage = "prompt"
	StageCompletion Stage = "completion"
	StageParsing    Stage = "parsing"
	StageValidation Stage = "validation"
)

// Error kinds. Callers match them with errors.Is.
var (
	ErrInvalidRequest            = errors.New("invalid request")
	ErrExtractionFailed          = errors.New("extraction failed")
	ErrInsufficientText          = errors.New("insufficient text")
	ErrUpstreamAuth              = errors.New("upstream auth error")
	ErrUpstreamUnavailable       = errors.New("upstream unavailable")
	ErrUpstream                  = errors.New("upstream error")
	ErrMalformedUpstreamResponse = errors.New("malformed upstream response")
	ErrNoValidMcqs               = errors.New("no valid mcqs")
)

var kindCodes = map[error]string{
	ErrInvalidRequest:            "InvalidRequest",
	ErrExtractionFailed:          "ExtractionFailed",
	ErrInsufficientText:          "InsufficientText",
	ErrUpstreamAuth:              "UpstreamAuthError",
	ErrUpstreamUnavailable:       "UpstreamUnavailable",
	ErrUpstream:                  "UpstreamError",
	ErrMalformedUpstreamResponse: "MalformedUpstreamResponse",
	ErrNoValidMcqs:               "NoValidMcqs",
}

// maxDetail bounds every diagnostic string that leaves the pipeline.
const maxDetail = 200

// Error is the failure type returned by every pipeline stage.
type Error struct {
	Stage  Stage
	Kind   error
	Detail string
	Err    error
}

func newError(stage Stage, kind error, detail string, cause error) *Error {
	return &Error{Stage: stage, Kind: kind, Detail: Excerpt(detail, maxDetail), Err: cause}
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Stage, e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the underlying cause so context errors stay matchable.
func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == e.Kind }

// Code returns the wire name of the error kind, e.g. "InsufficientText".
func (e *Error) Code() string {
	if c, ok := kindCodes[e.Kind]; ok {
		return c
	}
	return "InternalError"
}

// AsError extracts the pipeline error from err, if there is one.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// Excerpt shortens s to at most n runes, marking the cut with "...".
func Excerpt(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}
