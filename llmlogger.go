package pdfquiz

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// LLMLogger writes a per-generation transcript of the prompt, the raw model
// reply and every candidate verdict. A nil *LLMLogger discards everything.
type LLMLogger struct {
	file   *os.File
	mu     sync.Mutex
	quizID string
}

// NewLLMLogger creates <dir>/<quizID>.log and writes the header.
func NewLLMLogger(dir, quizID string, doc Document, count int) (*LLMLogger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.Create(filepath.Join(dir, fmt.Sprintf("%s.log", quizID)))
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	logger := &LLMLogger{
		file:   file,
		quizID: quizID,
	}

	logger.Logf("=== Quiz Generation Log ===\n")
	logger.Logf("Quiz ID: %s\n", quizID)
	logger.Logf("Source File: %s (%d bytes)\n", doc.Filename, len(doc.Data))
	logger.Logf("Requested Questions: %d\n", count)
	logger.Logf("Started: %s\n", time.Now().Format(time.RFC3339))
	logger.Logf("========================\n\n")

	return logger, nil
}

// Logf writes a timestamped entry and flushes it.
func (ll *LLMLogger) Logf(format string, args ...interface{}) {
	if ll == nil {
		return
	}
	ll.mu.Lock()
	defer ll.mu.Unlock()
	ll.logf(format, args...)
}

func (ll *LLMLogger) logf(format string, args ...interface{}) {
	if ll.file == nil {
		return
	}
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Fprintf(ll.file, "[%s] %s", timestamp, fmt.Sprintf(format, args...))
	ll.file.Sync()
}

// LogExtraction records the outcome of text extraction.
func (ll *LLMLogger) LogExtraction(text *ExtractedText) {
	if ll == nil || text == nil {
		return
	}
	ll.Logf("Extracted %d characters from %d pages (%d with text, %d skipped)\n",
		len([]rune(text.Text)), text.Pages, text.PagesWithText, len(text.SkippedPages))
	for _, p := range text.SkippedPages {
		ll.Logf("Skipped page %d: %s\n", p.Page, p.Reason)
	}
}

// LogLLMRequest records the prompt of one attempt.
func (ll *LLMLogger) LogLLMRequest(attempt int, prompt string) {
	ll.Logf("=== LLM REQUEST (attempt %d) ===\n", attempt)
	ll.Logf("Prompt:\n%s\n", prompt)
	ll.Logf("=====================\n\n")
}

// LogLLMResponse records the raw reply of one attempt.
func (ll *LLMLogger) LogLLMResponse(attempt int, response string) {
	ll.Logf("=== LLM RESPONSE (attempt %d) ===\n", attempt)
	ll.Logf("Response:\n%s\n", response)
	ll.Logf("======================\n\n")
}

// LogVerdicts records what the validator decided for each candidate.
func (ll *LLMLogger) LogVerdicts(report ValidationReport) {
	if ll == nil {
		return
	}
	for _, v := range report.Verdicts {
		if v.Action == ActionAccept {
			ll.Logf("Candidate %d: ACCEPTED\n", v.Index)
		} else {
			ll.Logf("Candidate %d: REJECTED - %s\n", v.Index, v.Reason)
		}
	}
}

// LogError records a failed attempt or stage.
func (ll *LLMLogger) LogError(err error) {
	ll.Logf("ERROR: %v\n", err)
}

// Close writes the footer and closes the file.
func (ll *LLMLogger) Close() error {
	if ll == nil {
		return nil
	}
	ll.mu.Lock()
	defer ll.mu.Unlock()

	if ll.file == nil {
		return nil
	}
	ll.logf("=== Quiz Generation Complete ===\n")
	ll.logf("Completed: %s\n", time.Now().Format(time.RFC3339))
	ll.logf("=============================\n")
	err := ll.file.Close()
	ll.file = nil
	return err
}
