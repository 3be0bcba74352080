package pdfquiz

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// ValidationAction is the validator's decision for one candidate.
type ValidationAction string

const (
	ActionAccept ValidationAction = "accept"
	ActionReject ValidationAction = "reject"
)

// Verdict records what happened to the candidate at Index.
type Verdict struct {
	Index  int              `json:"index"`
	Action ValidationAction `json:"action"`
	Reason string           `json:"reason,omitempty"`
}

// ValidationReport summarizes one validation pass.
type ValidationReport struct {
	Requested int       `json:"requested"`
	Accepted  int       `json:"accepted"`
	Rejected  int       `json:"rejected"`
	Verdicts  []Verdict `json:"verdicts"`
}

// minStemChars is the shortest filename stem used by the grounding filter;
// shorter stems would match ordinary words.
const minStemChars = 3

var bannedQuestionTerms = []string{"pdf", "document"}

// McqValidator filters candidates down to well-formed, grounded questions.
type McqValidator struct{}

// NewMcqValidator returns a validator.
func NewMcqValidator() *McqValidator { return &McqValidator{} }

// Validate checks every candidate in order and keeps the ones that pass. stem
// is the source filename without extension. The accepted slice keeps the
// upstream order and is never padded to desired; ErrNoValidMcqs is returned
// when nothing passes.
func (v *McqValidator) Validate(candidates []CandidateMcq, desired int, stem string) ([]MCQ, ValidationReport, error) {
	report := ValidationReport{Requested: desired, Verdicts: make([]Verdict, 0, len(candidates))}
	banned := bannedTerms(stem)

	accepted := make([]MCQ, 0, len(candidates))
	for i, c := range candidates {
		mcq, reason := checkCandidate(c, banned)
		if reason != "" {
			report.Rejected++
			report.Verdicts = append(report.Verdicts, Verdict{Index: i, Action: ActionReject, Reason: reason})
			continue
		}
		report.Accepted++
		report.Verdicts = append(report.Verdicts, Verdict{Index: i, Action: ActionAccept})
		accepted = append(accepted, mcq)
	}

	if len(accepted) == 0 {
		return nil, report, newError(StageValidation, ErrNoValidMcqs,
			fmt.Sprintf("0 of %d candidates passed validation", len(candidates)), nil)
	}
	return accepted, report, nil
}

// checkCandidate returns the repaired MCQ or the reason it was rejected.
func checkCandidate(c CandidateMcq, banned []string) (MCQ, string) {
	var missing []string
	if !present(c.Question) {
		missing = append(missing, "question")
	}
	if !present(c.Options) {
		missing = append(missing, "options")
	}
	if !present(c.Answer) {
		missing = append(missing, "answer")
	}
	if len(missing) > 0 {
		return MCQ{}, "missing " + strings.Join(missing, ", ")
	}

	var question, answer string
	if err := json.Unmarshal(c.Question, &question); err != nil {
		return MCQ{}, "question is not a string"
	}
	if question = strings.TrimSpace(question); question == "" {
		return MCQ{}, "missing question"
	}
	if err := json.Unmarshal(c.Answer, &answer); err != nil {
		return MCQ{}, "answer is not a string"
	}

	options, reason := decodeOptions(c.Options)
	if reason != "" {
		return MCQ{}, reason
	}

	key, ok := resolveAnswer(answer, options)
	if !ok {
		return MCQ{}, fmt.Sprintf("answer %q is not one of the option keys", Excerpt(answer, 20))
	}

	lower := strings.ToLower(question)
	for _, term := range banned {
		if strings.Contains(lower, term) {
			return MCQ{}, fmt.Sprintf("question mentions %q", term)
		}
	}

	return MCQ{Question: question, Options: options, Answer: key}, ""
}

// decodeOptions accepts either {"A": "...", ...} or a list of four strings,
// which is keyed A to D in order.
func decodeOptions(raw json.RawMessage) (map[string]string, string) {
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) != len(OptionKeys) {
			return nil, fmt.Sprintf("options has %d entries, want %d", len(list), len(OptionKeys))
		}
		options := make(map[string]string, len(list))
		for i, item := range list {
			text, reason := optionText(OptionKeys[i], item)
			if reason != "" {
				return nil, reason
			}
			options[OptionKeys[i]] = text
		}
		return options, ""
	}

	var object map[string]json.RawMessage
	if err := json.Unmarshal(raw, &object); err != nil {
		return nil, "options is neither an object nor a list"
	}
	if len(object) != len(OptionKeys) {
		return nil, fmt.Sprintf("options has %d entries, want %d", len(object), len(OptionKeys))
	}

	keys := make([]string, 0, len(object))
	for k := range object {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	options := make(map[string]string, len(object))
	for _, k := range keys {
		key := normalizeKey(k)
		if !isOptionKey(key) {
			return nil, fmt.Sprintf("option key %q is not one of A, B, C, D", Excerpt(k, 20))
		}
		if _, dup := options[key]; dup {
			return nil, fmt.Sprintf("option key %q appears twice", key)
		}
		text, reason := optionText(key, object[k])
		if reason != "" {
			return nil, reason
		}
		options[key] = text
	}
	return options, ""
}

func optionText(key string, raw json.RawMessage) (string, string) {
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return "", fmt.Sprintf("option %s is not a string", key)
	}
	if text = strings.TrimSpace(text); text == "" {
		return "", fmt.Sprintf("option %s is empty", key)
	}
	return text, ""
}

// resolveAnswer maps the model's answer to an option key. Besides the bare
// letter it accepts forms like "b)" or "(C)" and the exact text of an option.
func resolveAnswer(answer string, options map[string]string) (string, bool) {
	key := normalizeKey(answer)
	if _, ok := options[key]; ok {
		return key, true
	}
	trimmed := strings.TrimSpace(answer)
	for _, k := range OptionKeys {
		if text, ok := options[k]; ok && text == trimmed {
			return k, true
		}
	}
	return "", false
}

func normalizeKey(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "()[].:")
	return strings.ToUpper(strings.TrimSpace(s))
}

func isOptionKey(k string) bool {
	for _, key := range OptionKeys {
		if k == key {
			return true
		}
	}
	return false
}

// bannedTerms lists the lower-case substrings a question must not contain.
func bannedTerms(stem string) []string {
	terms := append([]string(nil), bannedQuestionTerms...)
	stem = strings.ToLower(strings.TrimSpace(stem))
	if utf8.RuneCountInString(stem) < minStemChars {
		return terms
	}
	terms = append(terms, stem)
	if spaced := strings.NewReplacer("_", " ", "-", " ").Replace(stem); spaced != stem {
		terms = append(terms, spaced)
	}
	return terms
}
