package pdfquiz

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
)

// OptionKeys are the only letters an MCQ may use, in display order.
var OptionKeys = []string{"A", "B", "C", "D"}

// Document is one uploaded PDF. Filename is used for diagnostics and the
// grounding filter only, never as content.
type Document struct {
	Data     []byte
	Filename string
}

// Stem returns the filename without directory and extension.
func (d Document) Stem() string {
	base := filepath.Base(d.Filename)
	if base == "." || base == "/" {
		return ""
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ExtractedText is the normalized text of a document plus page bookkeeping.
type ExtractedText struct {
	Text          string        `json:"-"`
	Pages         int           `json:"pages"`
	PagesWithText int           `json:"pages_with_text"`
	SkippedPages  []SkippedPage `json:"skipped_pages,omitempty"`
}

// SkippedPage records a page whose extraction failed.
type SkippedPage struct {
	Page   int    `json:"page"`
	Reason string `json:"reason"`
}

// CandidateMcq is one object decoded from the model response. Fields are
// kept raw so that shape problems surface during validation, not decoding.
type CandidateMcq struct {
	Question json.RawMessage `json:"question"`
	Options  json.RawMessage `json:"options"`
	Answer   json.RawMessage `json:"answer"`
}

func present(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// MCQ is an accepted multiple-choice question.
type MCQ struct {
	Question string            `json:"question"`
	Options  map[string]string `json:"options"`
	Answer   string            `json:"answer"`
}

// Result is the successful output of a generation.
type Result struct {
	// ID identifies the run in logs, transcripts and the archive.
	ID             string `json:"-"`
	MCQs           []MCQ  `json:"mcqs"`
	TotalQuestions int    `json:"total_questions"`
	// Requested is the count asked for; TotalQuestions may fall short of it.
	Requested int `json:"-"`
}

// Shortfall reports how many requested questions were not produced.
func (r *Result) Shortfall() int {
	if r.TotalQuestions >= r.Requested {
		return 0
	}
	return r.Requested - r.TotalQuestions
}
