package pdfquiz

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// ErrQuizNotFound is returned when an archived quiz does not exist.
var ErrQuizNotFound = errors.New("quiz not found")

// DB is the sqlite archive of generated quizzes. The pipeline never uses it;
// the CLI and web server save results here when a path is configured.
type DB struct {
	db *sql.DB
}

// DBQuiz is an archived quiz header.
type DBQuiz struct {
	ID             string    `json:"id"`
	Filename       string    `json:"filename"`
	Requested      int       `json:"requested"`
	TotalQuestions int       `json:"total_questions"`
	CreatedAt      time.Time `json:"created_at"`
}

// ArchivedQuiz is a quiz header plus its questions.
type ArchivedQuiz struct {
	DBQuiz
	MCQs []MCQ `json:"mcqs"`
}

// OpenDB opens the database at dbPath and creates the tables.
func OpenDB(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &DB{db: db}
	if err := store.CreateTables(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// CloseDB closes the database connection.
func (db *DB) CloseDB() error {
	return db.db.Close()
}

// CreateTables creates the necessary tables if they don't exist.
func (db *DB) CreateTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS quizzes (
			id TEXT PRIMARY KEY,
			filename TEXT NOT NULL,
			requested INTEGER NOT NULL,
			total_questions INTEGER NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS questions (
			quiz_id TEXT NOT NULL,
			question_num INTEGER NOT NULL,
			text TEXT NOT NULL,
			options TEXT NOT NULL,
			answer TEXT NOT NULL,
			PRIMARY KEY (quiz_id, question_num),
			FOREIGN KEY (quiz_id) REFERENCES quizzes(id)
		)`,
	}

	for _, query := range queries {
		if _, err := db.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute %s: %w", query, err)
		}
	}
	return nil
}

// SaveQuiz stores a generation result and its questions in one transaction.
func (db *DB) SaveQuiz(ctx context.Context, filename string, result *Result) (*DBQuiz, error) {
	id := result.ID
	if id == "" {
		id = uuid.NewString()
	}
	quiz := &DBQuiz{
		ID:             id,
		Filename:       filename,
		Requested:      result.Requested,
		TotalQuestions: result.TotalQuestions,
		CreatedAt:      time.Now().UTC(),
	}

	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO quizzes (id, filename, requested, total_questions, created_at) VALUES (?, ?, ?, ?, ?)",
		quiz.ID, quiz.Filename, quiz.Requested, quiz.TotalQuestions, quiz.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create quiz: %w", err)
	}

	for i, mcq := range result.MCQs {
		optionsJSON, err := OptionsToJSON(mcq.Options)
		if err != nil {
			return nil, err
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO questions (quiz_id, question_num, text, options, answer) VALUES (?, ?, ?, ?, ?)",
			quiz.ID, i+1, mcq.Question, optionsJSON, mcq.Answer,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create question %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit quiz: %w", err)
	}
	return quiz, nil
}

// GetQuiz retrieves a quiz and its questions by ID.
func (db *DB) GetQuiz(ctx context.Context, id string) (*ArchivedQuiz, error) {
	var quiz ArchivedQuiz
	err := db.db.QueryRowContext(ctx,
		"SELECT id, filename, requested, total_questions, created_at FROM quizzes WHERE id = ?",
		id,
	).Scan(&quiz.ID, &quiz.Filename, &quiz.Requested, &quiz.TotalQuestions, &quiz.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrQuizNotFound, id)
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}

	mcqs, err := db.getQuestions(ctx, id)
	if err != nil {
		return nil, err
	}
	quiz.MCQs = mcqs
	return &quiz, nil
}

func (db *DB) getQuestions(ctx context.Context, quizID string) ([]MCQ, error) {
	rows, err := db.db.QueryContext(ctx,
		"SELECT text, options, answer FROM questions WHERE quiz_id = ? ORDER BY question_num",
		quizID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get questions: %w", err)
	}
	defer rows.Close()

	mcqs := []MCQ{}
	for rows.Next() {
		var mcq MCQ
		var optionsJSON string
		if err := rows.Scan(&mcq.Question, &optionsJSON, &mcq.Answer); err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		if mcq.Options, err = JSONToOptions(optionsJSON); err != nil {
			return nil, err
		}
		mcqs = append(mcqs, mcq)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating questions: %w", err)
	}
	return mcqs, nil
}

// GetQuizzes lists archived quizzes, newest first, optionally limited by count.
func (db *DB) GetQuizzes(ctx context.Context, limit int) ([]DBQuiz, error) {
	query := "SELECT id, filename, requested, total_questions, created_at FROM quizzes ORDER BY created_at DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get quizzes: %w", err)
	}
	defer rows.Close()

	quizzes := []DBQuiz{}
	for rows.Next() {
		var quiz DBQuiz
		if err := rows.Scan(&quiz.ID, &quiz.Filename, &quiz.Requested, &quiz.TotalQuestions, &quiz.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan quiz: %w", err)
		}
		quizzes = append(quizzes, quiz)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating quizzes: %w", err)
	}
	return quizzes, nil
}

// OptionsToJSON encodes an option map for storage.
func OptionsToJSON(options map[string]string) (string, error) {
	data, err := json.Marshal(options)
	if err != nil {
		return "", fmt.Errorf("failed to marshal options: %w", err)
	}
	return string(data), nil
}

// JSONToOptions decodes a stored option map.
func JSONToOptions(optionsJSON string) (map[string]string, error) {
	var options map[string]string
	if err := json.Unmarshal([]byte(optionsJSON), &options); err != nil {
		return nil, fmt.Errorf("failed to unmarshal options: %w", err)
	}
	return options, nil
}
