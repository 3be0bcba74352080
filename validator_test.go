package pdfquiz

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidate(t *testing.T, raw string) CandidateMcq {
	t.Helper()
	var c CandidateMcq
	require.NoError(t, json.Unmarshal([]byte(raw), &c))
	return c
}

func validCandidate(t *testing.T, question string) CandidateMcq {
	return candidate(t, fmt.Sprintf(`{"question": %q, "options": {"A": "One", "B": "Two", "C": "Three", "D": "Four"}, "answer": "B"}`, question))
}

func TestValidateAcceptsWellFormed(t *testing.T) {
	v := NewMcqValidator()
	got, report, err := v.Validate([]CandidateMcq{validCandidate(t, "How many moons does Mars have?")}, 1, "astronomy")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "How many moons does Mars have?", got[0].Question)
	assert.Equal(t, "B", got[0].Answer)
	assert.Equal(t, map[string]string{"A": "One", "B": "Two", "C": "Three", "D": "Four"}, got[0].Options)
	assert.Equal(t, 1, report.Accepted)
	assert.Equal(t, 0, report.Rejected)
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		reason string
	}{
		{"missing answer", `{"question": "Q?", "options": {"A": "1", "B": "2", "C": "3", "D": "4"}}`, "missing answer"},
		{"missing everything", `{}`, "missing question, options, answer"},
		{"null options", `{"question": "Q?", "options": null, "answer": "A"}`, "missing options"},
		{"blank question", `{"question": "  ", "options": {"A": "1", "B": "2", "C": "3", "D": "4"}, "answer": "A"}`, "missing question"},
		{"numeric question", `{"question": 7, "options": {"A": "1", "B": "2", "C": "3", "D": "4"}, "answer": "A"}`, "question is not a string"},
		{"three options", `{"question": "Q?", "options": {"A": "1", "B": "2", "C": "3"}, "answer": "A"}`, "options has 3 entries, want 4"},
		{"five options", `{"question": "Q?", "options": {"A": "1", "B": "2", "C": "3", "D": "4", "E": "5"}, "answer": "A"}`, "options has 5 entries, want 4"},
		{"list of three", `{"question": "Q?", "options": ["1", "2", "3"], "answer": "A"}`, "options has 3 entries, want 4"},
		{"bad key", `{"question": "Q?", "options": {"A": "1", "B": "2", "C": "3", "E": "4"}, "answer": "A"}`, `option key "E" is not one of A, B, C, D`},
		{"duplicate key", `{"question": "Q?", "options": {"A": "1", "a": "2", "C": "3", "D": "4"}, "answer": "A"}`, `option key "A" appears twice`},
		{"empty option", `{"question": "Q?", "options": {"A": "1", "B": "", "C": "3", "D": "4"}, "answer": "A"}`, "option B is empty"},
		{"options string", `{"question": "Q?", "options": "A, B, C, D", "answer": "A"}`, "options is neither an object nor a list"},
		{"answer not a key", `{"question": "Q?", "options": {"A": "1", "B": "2", "C": "3", "D": "4"}, "answer": "E"}`, `answer "E" is not one of the option keys`},
		{"answer text differs in case", `{"question": "Q?", "options": {"A": "Paris", "B": "Rome", "C": "Oslo", "D": "Bern"}, "answer": "rome"}`, `answer "rome" is not one of the option keys`},
		{"mentions pdf", `{"question": "According to the PDF, what is X?", "options": {"A": "1", "B": "2", "C": "3", "D": "4"}, "answer": "A"}`, `question mentions "pdf"`},
		{"mentions document", `{"question": "What does this Document say?", "options": {"A": "1", "B": "2", "C": "3", "D": "4"}, "answer": "A"}`, `question mentions "document"`},
		{"mentions stem", `{"question": "In Cell_Biology notes, what is ATP?", "options": {"A": "1", "B": "2", "C": "3", "D": "4"}, "answer": "A"}`, `question mentions "cell_biology"`},
	}

	v := NewMcqValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := candidate(t, tt.raw)
			_, report, err := v.Validate([]CandidateMcq{c}, 1, "Cell_Biology")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrNoValidMcqs))
			require.Len(t, report.Verdicts, 1)
			assert.Equal(t, ActionReject, report.Verdicts[0].Action)
			assert.Equal(t, tt.reason, report.Verdicts[0].Reason)
		})
	}
}

func TestValidateRepairs(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		answer string
	}{
		{"lower-case answer", `{"question": "Q?", "options": {"A": "1", "B": "2", "C": "3", "D": "4"}, "answer": "c"}`, "C"},
		{"decorated answer", `{"question": "Q?", "options": {"A": "1", "B": "2", "C": "3", "D": "4"}, "answer": " (D) "}`, "D"},
		{"answer with paren", `{"question": "Q?", "options": {"A": "1", "B": "2", "C": "3", "D": "4"}, "answer": "B)"}`, "B"},
		{"answer is option text", `{"question": "Q?", "options": {"A": "Paris", "B": "Rome", "C": "Oslo", "D": "Bern"}, "answer": "Rome"}`, "B"},
		{"options as list", `{"question": "Q?", "options": ["Paris", "Rome", "Oslo", "Bern"], "answer": "D"}`, "D"},
		{"lower-case keys", `{"question": "Q?", "options": {"a": "1", "b": "2", "c": "3", "d": "4"}, "answer": "a"}`, "A"},
	}

	v := NewMcqValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, err := v.Validate([]CandidateMcq{candidate(t, tt.raw)}, 1, "")
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, tt.answer, got[0].Answer)
			assert.Len(t, got[0].Options, 4)
			for _, key := range OptionKeys {
				assert.Contains(t, got[0].Options, key)
			}
		})
	}
}

func TestValidatePreservesOrderAndReportsShortfall(t *testing.T) {
	candidates := []CandidateMcq{
		validCandidate(t, "First?"),
		validCandidate(t, "Which document format is used?"),
		validCandidate(t, "Third?"),
		candidate(t, `{"question": "Fourth?"}`),
		validCandidate(t, "Fifth?"),
	}

	got, report, err := NewMcqValidator().Validate(candidates, 5, "notes")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "First?", got[0].Question)
	assert.Equal(t, "Third?", got[1].Question)
	assert.Equal(t, "Fifth?", got[2].Question)
	assert.Equal(t, 5, report.Requested)
	assert.Equal(t, 3, report.Accepted)
	assert.Equal(t, 2, report.Rejected)
	assert.Equal(t, 1, report.Verdicts[1].Index)
	assert.Equal(t, 3, report.Verdicts[3].Index)
}

func TestValidateNeverEmitsMalformedMCQ(t *testing.T) {
	raws := []string{
		`{"question": "Q?", "options": {"A": "1", "B": "2", "C": "3", "D": "4"}, "answer": "A"}`,
		`{"question": "Q?", "options": {"A": "1", "B": "2"}, "answer": "A"}`,
		`{"question": "Q?", "options": {"A": "1", "B": "2", "C": "3", "D": "4"}, "answer": "Z"}`,
		`{"question": "Q?", "options": [1, 2, 3, 4], "answer": "A"}`,
		`{"question": "Q?", "options": {"A": "1", "B": "2", "C": "3", "D": "4"}, "answer": 1}`,
	}
	candidates := make([]CandidateMcq, len(raws))
	for i, raw := range raws {
		candidates[i] = candidate(t, raw)
	}

	got, _, err := NewMcqValidator().Validate(candidates, len(raws), "")
	require.NoError(t, err)
	for _, mcq := range got {
		assert.Len(t, mcq.Options, 4)
		assert.Contains(t, mcq.Options, mcq.Answer)
	}
	assert.Len(t, got, 1)
}

func TestValidateEmptyInput(t *testing.T) {
	_, report, err := NewMcqValidator().Validate(nil, 5, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoValidMcqs))
	assert.Equal(t, 0, report.Accepted)
}

func TestBannedTermsIgnoresShortStems(t *testing.T) {
	assert.Equal(t, []string{"pdf", "document"}, bannedTerms("ab"))
	assert.Equal(t, []string{"pdf", "document", "lecture-04", "lecture 04"}, bannedTerms("Lecture-04"))
}
