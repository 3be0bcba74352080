package pdfquiz

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildIsDeterministic(t *testing.T) {
	pb := NewPromptBuilder(DefaultMaxPromptChars)
	text := sentence(1200)

	first, err := pb.Build(text, 5)
	require.NoError(t, err)
	second, err := pb.Build(text, 5)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestBuildEmbedsTextCountAndTemplate(t *testing.T) {
	pb := NewPromptBuilder(DefaultMaxPromptChars)
	text := sentence(1200)

	prompt, err := pb.Build(text, 5)
	require.NoError(t, err)

	assert.Contains(t, prompt, text)
	assert.Contains(t, prompt, "Generate 5 multiple choice questions")
	assert.Contains(t, prompt, "exactly 5 objects")
	assert.Contains(t, prompt, `"question"`)
	assert.Contains(t, prompt, `"options"`)
	assert.Contains(t, prompt, `"answer"`)
	for _, key := range OptionKeys {
		assert.Contains(t, prompt, `"`+key+`": "..."`)
	}
	assert.Contains(t, prompt, "Never mention the PDF, the document")
	assert.Contains(t, prompt, "exactly 4 options")
	assert.Contains(t, prompt, "Exactly one option is correct")
	assert.LessOrEqual(t, utf8.RuneCountInString(prompt), pb.Overhead(5)+pb.MaxChars())
}

func TestBuildTruncatesByHardCut(t *testing.T) {
	pb := NewPromptBuilder(50)
	text := strings.Repeat("0123456789", 10)

	prompt, err := pb.Build(text, 3)
	require.NoError(t, err)

	assert.True(t, pb.Truncated(text))
	assert.Contains(t, prompt, text[:50])
	assert.NotContains(t, prompt, text[:51])
	assert.Equal(t, pb.Overhead(3)+50, utf8.RuneCountInString(prompt))
}

func TestBuildLengthBound(t *testing.T) {
	pb := NewPromptBuilder(MinPromptChars)
	for _, n := range []int{0, 10, MinPromptChars - 1, MinPromptChars, MinPromptChars + 1, 3 * MinPromptChars} {
		for _, count := range []int{MinQuestions, 9, 10, MaxQuestions} {
			prompt, err := pb.Build(strings.Repeat("é", n), count)
			require.NoError(t, err)
			assert.LessOrEqual(t, utf8.RuneCountInString(prompt), pb.Overhead(count)+MinPromptChars)
			assert.True(t, utf8.ValidString(prompt))
		}
	}
}

func TestBuildRejectsCountOutOfRange(t *testing.T) {
	pb := NewPromptBuilder(0)
	for _, count := range []int{-1, 0, 21, 100} {
		_, err := pb.Build("text", count)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidRequest))
	}
	assert.Equal(t, DefaultMaxPromptChars, pb.MaxChars())
}

func TestTruncateRunes(t *testing.T) {
	s, cut := truncateRunes("héllo wörld", 4)
	assert.True(t, cut)
	assert.Equal(t, "héll", s)

	s, cut = truncateRunes("short", 10)
	assert.False(t, cut)
	assert.Equal(t, "short", s)
}
