package pdfquiz

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "quizzes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.CloseDB() })
	return db
}

func sampleResult(id string) *Result {
	return &Result{
		ID: id,
		MCQs: []MCQ{
			{Question: "What powers the cell?", Options: map[string]string{"A": "ATP", "B": "DNA", "C": "RNA", "D": "NADH"}, Answer: "A"},
			{Question: "Where is DNA stored?", Options: map[string]string{"A": "Ribosome", "B": "Nucleus", "C": "Membrane", "D": "Golgi"}, Answer: "B"},
		},
		TotalQuestions: 2,
		Requested:      3,
	}
}

func TestSaveAndGetQuiz(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	saved, err := db.SaveQuiz(ctx, "biology.pdf", sampleResult("quiz-1"))
	require.NoError(t, err)
	assert.Equal(t, "quiz-1", saved.ID)
	assert.False(t, saved.CreatedAt.IsZero())

	got, err := db.GetQuiz(ctx, "quiz-1")
	require.NoError(t, err)
	assert.Equal(t, "biology.pdf", got.Filename)
	assert.Equal(t, 3, got.Requested)
	assert.Equal(t, 2, got.TotalQuestions)
	assert.Equal(t, sampleResult("quiz-1").MCQs, got.MCQs)
}

func TestSaveQuizAssignsID(t *testing.T) {
	db := openTestDB(t)

	saved, err := db.SaveQuiz(context.Background(), "notes.pdf", sampleResult(""))
	require.NoError(t, err)
	assert.Len(t, saved.ID, 36)
}

func TestSaveQuizRejectsDuplicateID(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.SaveQuiz(ctx, "a.pdf", sampleResult("dup"))
	require.NoError(t, err)
	_, err = db.SaveQuiz(ctx, "b.pdf", sampleResult("dup"))
	assert.Error(t, err)

	got, err := db.GetQuiz(ctx, "dup")
	require.NoError(t, err)
	assert.Equal(t, "a.pdf", got.Filename)
}

func TestGetQuizNotFound(t *testing.T) {
	db := openTestDB(t)

	_, err := db.GetQuiz(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrQuizNotFound))
}

func TestGetQuizzesLimit(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for _, id := range []string{"one", "two", "three"} {
		_, err := db.SaveQuiz(ctx, id+".pdf", sampleResult(id))
		require.NoError(t, err)
	}

	all, err := db.GetQuizzes(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	some, err := db.GetQuizzes(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, some, 2)
}

func TestOptionsJSONRoundTrip(t *testing.T) {
	options := map[string]string{"A": "1", "B": "2", "C": "3", "D": "4"}
	encoded, err := OptionsToJSON(options)
	require.NoError(t, err)
	decoded, err := JSONToOptions(encoded)
	require.NoError(t, err)
	assert.Equal(t, options, decoded)

	_, err = JSONToOptions("{broken")
	assert.Error(t, err)
}
