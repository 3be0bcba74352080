package pdfquiz

import (
	"encoding/json"
	"fmt"
	"strings"
)

// excerptChars bounds how much of a bad payload ends up in an error.
const excerptChars = 120

// ParseResponse recovers the MCQ array from a model reply. Models often wrap
// the JSON in prose, so the array is taken to span from the first '[' to the
// last ']' inclusive. Nothing smarter is attempted: a payload that does not
// decode as an array of objects fails with ErrMalformedUpstreamResponse.
func ParseResponse(raw string) ([]CandidateMcq, error) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end < 0 {
		return nil, newError(StageParsing, ErrMalformedUpstreamResponse,
			fmt.Sprintf("no JSON array in response: %q", Excerpt(raw, excerptChars)), nil)
	}
	if end <= start {
		return nil, newError(StageParsing, ErrMalformedUpstreamResponse,
			fmt.Sprintf("closing bracket precedes opening bracket: %q", Excerpt(raw, excerptChars)), nil)
	}

	payload := raw[start : end+1]
	var candidates []CandidateMcq
	if err := json.Unmarshal([]byte(payload), &candidates); err != nil {
		return nil, newError(StageParsing, ErrMalformedUpstreamResponse,
			fmt.Sprintf("invalid JSON array %q", Excerpt(payload, excerptChars)), err)
	}
	return candidates, nil
}
