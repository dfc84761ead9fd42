package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/mocktest/internal/model"
)

// ImportResult describes what ImportQuestions did with one file.
type ImportResult struct {
	Imported int
	// Skipped is set when the file was imported before.
	Skipped bool
	// Changed is set when a previously imported file has different content
	// now; it is left alone so running sessions keep a stable bank.
	Changed bool
}

// ImportQuestions loads a JSON array of questions read from path. Files are
// imported once: the content hash is recorded and later calls skip them.
func (s *Store) ImportQuestions(path string, data []byte) (ImportResult, error) {
	hash := sha256sum(data)
	storedHash, err := s.GetImportedFileHash(path)
	if err != nil {
		return ImportResult{}, fmt.Errorf("check import status for %s: %w", path, err)
	}
	if storedHash == hash {
		slog.Info("questions file unchanged, skipping", "path", path)
		return ImportResult{Skipped: true}, nil
	}
	if storedHash != "" {
		slog.Warn("questions file changed since last import, skipping to avoid breaking existing sessions",
			"path", path)
		return ImportResult{Skipped: true, Changed: true}, nil
	}

	var questions []model.QuestionImport
	if err := json.Unmarshal(data, &questions); err != nil {
		return ImportResult{}, fmt.Errorf("parse %s: %w", path, err)
	}
	for i, qi := range questions {
		if err := validateImport(qi); err != nil {
			return ImportResult{}, fmt.Errorf("%s: question %d: %w", path, i+1, err)
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return ImportResult{}, err
	}
	defer tx.Rollback()

	for _, qi := range questions {
		q := model.Question{
			Number:       qi.Number,
			Section:      qi.Section,
			Type:         qi.Type,
			Marks:        qi.Marks,
			Content:      qi.Content,
			SubQuestions: qi.SubQuestions,
		}
		if _, err := insertQuestion(tx, q); err != nil {
			return ImportResult{}, fmt.Errorf("insert question from %s: %w", path, err)
		}
	}
	if _, err := tx.Exec(
		`INSERT INTO exam_metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		importHashPrefix+path, hash, hash,
	); err != nil {
		return ImportResult{}, fmt.Errorf("record import for %s: %w", path, err)
	}
	if err := tx.Commit(); err != nil {
		return ImportResult{}, err
	}

	slog.Info("imported questions", "path", path, "count", len(questions))
	return ImportResult{Imported: len(questions)}, nil
}

func validateImport(qi model.QuestionImport) error {
	if strings.TrimSpace(qi.Number) == "" {
		return errors.New("missing number")
	}
	if qi.Marks < 1 {
		return fmt.Errorf("marks must be at least 1, got %d", qi.Marks)
	}
	if strings.TrimSpace(qi.Content) == "" && len(qi.SubQuestions) == 0 {
		return errors.New("no content")
	}
	return nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
