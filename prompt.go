package pdfquiz

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Prompt budget limits, in characters of source text.
const (
	DefaultMaxPromptChars = 12000
	MinPromptChars        = 8000
	MaxPromptChars        = 24000
)

// Question count limits accepted by the builder.
const (
	MinQuestions     = 1
	MaxQuestions     = 20
	DefaultQuestions = 5
)

// PromptBuilder turns extracted text into the instruction prompt sent to the model.
type PromptBuilder struct {
	maxChars int
}

// NewPromptBuilder returns a builder that keeps at most maxChars characters of
// source text. Zero selects DefaultMaxPromptChars.
func NewPromptBuilder(maxChars int) *PromptBuilder {
	if maxChars <= 0 {
		maxChars = DefaultMaxPromptChars
	}
	return &PromptBuilder{maxChars: maxChars}
}

// MaxChars returns the truncation budget.
func (pb *PromptBuilder) MaxChars() int { return pb.maxChars }

// Build returns the prompt for count questions over text. The same inputs
// always yield the same prompt.
func (pb *PromptBuilder) Build(text string, count int) (string, error) {
	if count < MinQuestions || count > MaxQuestions {
		return "", newError(StagePrompt, ErrInvalidRequest,
			fmt.Sprintf("question count %d outside [%d,%d]", count, MinQuestions, MaxQuestions), nil)
	}
	source, _ := truncateRunes(text, pb.maxChars)

	var sb strings.Builder
	sb.WriteString(promptHeader(count))
	sb.WriteString(source)
	sb.WriteString(promptFooter(count))
	return sb.String(), nil
}

// Truncated reports whether Build would cut text.
func (pb *PromptBuilder) Truncated(text string) bool {
	return utf8.RuneCountInString(text) > pb.maxChars
}

// Overhead is the number of characters Build adds around the source text.
func (pb *PromptBuilder) Overhead(count int) int {
	return utf8.RuneCountInString(promptHeader(count)) + utf8.RuneCountInString(promptFooter(count))
}

func promptHeader(count int) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Generate %d multiple choice questions (MCQs) based only on the study material below.\n\n", count))
	sb.WriteString("Study material:\n\"\"\"\n")
	return sb.String()
}

func promptFooter(count int) string {
	var sb strings.Builder
	sb.WriteString("\n\"\"\"\n\n")
	sb.WriteString("Rules:\n")
	sb.WriteString("- Every question must test a specific fact, definition, number or relationship stated in the study material\n")
	sb.WriteString("- Do not use general knowledge that the study material does not contain\n")
	sb.WriteString("- Never mention the PDF, the document, the file, the text or the study material itself in a question\n")
	sb.WriteString("- Each question must have exactly 4 options labelled A, B, C and D\n")
	sb.WriteString("- Exactly one option is correct; the other three must be plausible but wrong\n")
	sb.WriteString("- \"answer\" is the letter of the correct option\n\n")
	sb.WriteString(fmt.Sprintf("Respond with a JSON array of exactly %d objects in this format and nothing else:\n", count))
	sb.WriteString("[\n")
	sb.WriteString("  {\n")
	sb.WriteString("    \"question\": \"...\",\n")
	sb.WriteString("    \"options\": {\n")
	sb.WriteString("      \"A\": \"...\",\n")
	sb.WriteString("      \"B\": \"...\",\n")
	sb.WriteString("      \"C\": \"...\",\n")
	sb.WriteString("      \"D\": \"...\"\n")
	sb.WriteString("    },\n")
	sb.WriteString("    \"answer\": \"A\"\n")
	sb.WriteString("  }\n")
	sb.WriteString("]\n")
	sb.WriteString("Make sure the JSON is valid and parsable.")
	return sb.String()
}

// truncateRunes hard-cuts s to at most n runes.
func truncateRunes(s string, n int) (string, bool) {
	if utf8.RuneCountInString(s) <= n {
		return s, false
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos], true
		}
		i++
	}
	return s, false
}
