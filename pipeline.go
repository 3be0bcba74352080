package pdfquiz

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// PipelineOptions tunes a Pipeline. Zero values select defaults.
type PipelineOptions struct {
	Extractor    *TextExtractor
	Prompts      *PromptBuilder
	Validator    *McqValidator
	Recorder     StageRecorder
	Logger       *logrus.Logger
	Retries      int
	RetryBackoff time.Duration
	// LLMLogDir enables per-generation transcripts when set.
	LLMLogDir string
}

// Pipeline turns a PDF into validated MCQs: extract, prompt, complete, parse,
// validate. It holds no per-request state and is safe for concurrent use.
type Pipeline struct {
	extractor *TextExtractor
	prompts   *PromptBuilder
	completer Completer
	validator *McqValidator
	recorder  StageRecorder
	logger    *logrus.Logger
	retries   int
	backoff   time.Duration
	llmLogDir string
}

// NewPipeline creates a pipeline around completer.
func NewPipeline(completer Completer, opts PipelineOptions) *Pipeline {
	logger := orDiscard(opts.Logger)
	p := &Pipeline{
		extractor: opts.Extractor,
		prompts:   opts.Prompts,
		completer: completer,
		validator: opts.Validator,
		recorder:  opts.Recorder,
		logger:    logger,
		retries:   clampInt(opts.Retries, 0, MaxRetries),
		backoff:   opts.RetryBackoff,
		llmLogDir: opts.LLMLogDir,
	}
	if p.extractor == nil {
		p.extractor = NewTextExtractor(nil, DefaultMinChars, logger)
	}
	if p.prompts == nil {
		p.prompts = NewPromptBuilder(DefaultMaxPromptChars)
	}
	if p.validator == nil {
		p.validator = NewMcqValidator()
	}
	if p.recorder == nil {
		p.recorder = nopRecorder{}
	}
	if p.backoff <= 0 {
		p.backoff = time.Second
	}
	return p
}

// NewPipelineFromConfig wires a pipeline from process configuration.
func NewPipelineFromConfig(cfg *Config, completer Completer, recorder StageRecorder, logger *logrus.Logger) *Pipeline {
	return NewPipeline(completer, PipelineOptions{
		Extractor:    NewTextExtractor(cfg.Extract.NewPageReader(), cfg.Extract.MinChars, logger),
		Prompts:      NewPromptBuilder(cfg.Prompt.MaxChars),
		Recorder:     recorder,
		Logger:       logger,
		Retries:      cfg.Pipeline.Retries,
		RetryBackoff: cfg.Pipeline.RetryBackoff,
		LLMLogDir:    cfg.Logging.LLMLogDir,
	})
}

// Generate produces up to count MCQs from doc. The first failing stage ends
// the run; its *Error says which stage failed and why. A result with fewer
// questions than requested is still a success.
func (p *Pipeline) Generate(ctx context.Context, doc Document, count int) (*Result, error) {
	id := uuid.NewString()
	entry := p.logger.WithFields(logrus.Fields{
		"quiz_id":   id,
		"file":      doc.Filename,
		"bytes":     len(doc.Data),
		"requested": count,
	})

	if count < MinQuestions || count > MaxQuestions {
		return nil, newError(StageRequest, ErrInvalidRequest,
			fmt.Sprintf("question count %d outside [%d,%d]", count, MinQuestions, MaxQuestions), nil)
	}
	if len(doc.Data) == 0 {
		return nil, newError(StageRequest, ErrInvalidRequest, "document is empty", nil)
	}

	var transcript *LLMLogger
	if p.llmLogDir != "" {
		tl, err := NewLLMLogger(p.llmLogDir, id, doc, count)
		if err != nil {
			entry.WithError(err).Warn("Failed to open LLM transcript")
		} else {
			transcript = tl
			defer transcript.Close()
		}
	}

	start := time.Now()
	text, err := p.extractor.Extract(ctx, doc)
	p.recorder.ObserveStage(StageExtraction, err, time.Since(start))
	transcript.LogExtraction(text)
	if err != nil {
		transcript.LogError(err)
		entry.WithError(err).Warn("Text extraction failed")
		return nil, err
	}
	entry.WithFields(logrus.Fields{
		"pages":           text.Pages,
		"pages_with_text": text.PagesWithText,
		"skipped":         len(text.SkippedPages),
		"chars":           utf8.RuneCountInString(text.Text),
	}).Info("Extracted text")

	start = time.Now()
	prompt, err := p.prompts.Build(text.Text, count)
	p.recorder.ObserveStage(StagePrompt, err, time.Since(start))
	if err != nil {
		return nil, err
	}
	entry.WithFields(logrus.Fields{
		"prompt_chars": utf8.RuneCountInString(prompt),
		"truncated":    p.prompts.Truncated(text.Text),
	}).Debug("Built prompt")

	var lastErr error
	for attempt := 1; attempt <= 1+p.retries; attempt++ {
		if attempt > 1 {
			delay := p.backoff * time.Duration(1<<(attempt-2))
			entry.WithError(lastErr).WithFields(logrus.Fields{
				"attempt": attempt,
				"delay":   delay,
			}).Warn("Retrying generation")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, newError(StageCompletion, ErrUpstreamUnavailable, "cancelled during retry backoff", ctx.Err())
			}
		}

		mcqs, err := p.attempt(ctx, entry.WithField("attempt", attempt), transcript, prompt, count, doc.Stem(), attempt)
		if err == nil {
			entry.WithField("total_questions", len(mcqs)).Info("Generated quiz")
			return &Result{ID: id, MCQs: mcqs, TotalQuestions: len(mcqs), Requested: count}, nil
		}
		transcript.LogError(err)
		lastErr = err
		if !Retryable(err) {
			break
		}
	}
	entry.WithError(lastErr).Warn("Generation failed")
	return nil, lastErr
}

// attempt runs completion, parsing and validation once.
func (p *Pipeline) attempt(ctx context.Context, entry *logrus.Entry, transcript *LLMLogger, prompt string, count int, stem string, n int) ([]MCQ, error) {
	transcript.LogLLMRequest(n, prompt)

	start := time.Now()
	raw, err := p.completer.Complete(ctx, prompt)
	p.recorder.ObserveStage(StageCompletion, err, time.Since(start))
	if err != nil {
		if _, ok := AsError(err); !ok {
			err = newError(StageCompletion, ErrUpstream, "completion failed", err)
		}
		return nil, err
	}
	transcript.LogLLMResponse(n, raw)
	entry.WithFields(logrus.Fields{
		"response_chars": utf8.RuneCountInString(raw),
		"elapsed":        time.Since(start).Round(time.Millisecond),
	}).Debug("Received completion")

	start = time.Now()
	candidates, err := ParseResponse(raw)
	p.recorder.ObserveStage(StageParsing, err, time.Since(start))
	if err != nil {
		return nil, err
	}

	start = time.Now()
	mcqs, report, err := p.validator.Validate(candidates, count, stem)
	p.recorder.ObserveStage(StageValidation, err, time.Since(start))
	p.recorder.ObserveCandidates(report.Accepted, report.Rejected)
	transcript.LogVerdicts(report)
	entry.WithFields(logrus.Fields{
		"candidates": len(candidates),
		"accepted":   report.Accepted,
		"rejected":   report.Rejected,
	}).Info("Validated candidates")
	if err != nil {
		return nil, err
	}
	return mcqs, nil
}

// Retryable reports whether a fresh completion might fix err: the model
// returned an unusable payload or nothing that passed validation.
func Retryable(err error) bool {
	return errors.Is(err, ErrMalformedUpstreamResponse) || errors.Is(err, ErrNoValidMcqs)
}
