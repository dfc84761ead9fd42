package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/pavelanni/mocktest/internal/model"

	_ "modernc.org/sqlite"
)

// Store is the question bank. It holds static question data only.
type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		position INTEGER NOT NULL,
		number TEXT NOT NULL,
		section TEXT NOT NULL DEFAULT '',
		type TEXT NOT NULL DEFAULT '',
		marks INTEGER NOT NULL CHECK (marks >= 0),
		content TEXT NOT NULL,
		sub_questions TEXT NOT NULL DEFAULT '[]'
	);

	CREATE TABLE IF NOT EXISTS exam_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

const questionColumns = `id, number, section, type, marks, content, sub_questions`

// InsertQuestion appends a question to the end of the bank.
func (s *Store) InsertQuestion(q model.Question) (int64, error) {
	return insertQuestion(s.db, q)
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertQuestion(db execer, q model.Question) (int64, error) {
	subs := q.SubQuestions
	if subs == nil {
		subs = []string{}
	}
	encoded, err := json.Marshal(subs)
	if err != nil {
		return 0, fmt.Errorf("encode sub-questions: %w", err)
	}
	res, err := db.Exec(
		`INSERT INTO questions (position, number, section, type, marks, content, sub_questions)
		 VALUES ((SELECT COALESCE(MAX(position), 0) + 1 FROM questions), ?, ?, ?, ?, ?, ?)`,
		q.Number, q.Section, q.Type, q.Marks, q.Content, string(encoded),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListQuestions returns all questions in bank order.
func (s *Store) ListQuestions() ([]model.Question, error) {
	return s.ListQuestionsFiltered("", "")
}

// ListQuestionsFiltered returns questions matching the given filters in bank order.
// Empty strings mean no filtering on that field.
func (s *Store) ListQuestionsFiltered(section, qtype string) ([]model.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM questions WHERE 1=1`
	var args []any
	if section != "" {
		query += ` AND section = ?`
		args = append(args, section)
	}
	if qtype != "" {
		query += ` AND type = ?`
		args = append(args, qtype)
	}
	query += ` ORDER BY position`
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// GetQuestion returns a question by ID.
func (s *Store) GetQuestion(id int64) (model.Question, error) {
	row := s.db.QueryRow(`SELECT `+questionColumns+` FROM questions WHERE id = ?`, id)
	return scanQuestion(row)
}

// QuestionCount returns the number of questions in the database.
func (s *Store) QuestionCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM questions`).Scan(&count)
	return count, err
}

// TotalMarks returns the sum of marks across the bank.
func (s *Store) TotalMarks() (int, error) {
	var total int
	err := s.db.QueryRow(`SELECT COALESCE(SUM(marks), 0) FROM questions`).Scan(&total)
	return total, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanQuestion(sc scanner) (model.Question, error) {
	var (
		q    model.Question
		subs string
	)
	if err := sc.Scan(&q.ID, &q.Number, &q.Section, &q.Type, &q.Marks, &q.Content, &subs); err != nil {
		return q, err
	}
	if err := json.Unmarshal([]byte(subs), &q.SubQuestions); err != nil {
		return q, fmt.Errorf("decode sub-questions of question %d: %w", q.ID, err)
	}
	return q, nil
}
