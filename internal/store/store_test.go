package store

import (
	"database/sql"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/pavelanni/mocktest/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func insertTestQuestion(t *testing.T, s *Store, number, section, qtype string, marks int, subs ...string) int64 {
	t.Helper()
	id, err := s.InsertQuestion(model.Question{
		Number:       number,
		Section:      section,
		Type:         qtype,
		Marks:        marks,
		Content:      "content for " + number,
		SubQuestions: subs,
	})
	if err != nil {
		t.Fatalf("insertTestQuestion: %v", err)
	}
	return id
}

func TestNewUnopenablePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "bank.db")
	s, err := New(path)
	if err == nil {
		s.Close()
		t.Fatal("expected error for a database in a missing directory")
	}
	if s != nil {
		t.Errorf("expected nil store, got %v", s)
	}
}

func TestQuestionCRUD(t *testing.T) {
	s := newTestStore(t)

	// Empty DB should return zero count and empty list.
	count, err := s.QuestionCount()
	if err != nil {
		t.Fatalf("QuestionCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 questions, got %d", count)
	}

	list, err := s.ListQuestions()
	if err != nil {
		t.Fatalf("ListQuestions: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list, got %d", len(list))
	}

	// Insert and retrieve.
	id := insertTestQuestion(t, s, "1", "A", "Reading Comprehension", 10, "(i) first", "(ii) second")
	q, err := s.GetQuestion(id)
	if err != nil {
		t.Fatalf("GetQuestion: %v", err)
	}
	if q.Number != "1" {
		t.Errorf("expected number '1', got %q", q.Number)
	}
	if q.Marks != 10 {
		t.Errorf("expected 10 marks, got %d", q.Marks)
	}
	if !reflect.DeepEqual(q.SubQuestions, []string{"(i) first", "(ii) second"}) {
		t.Errorf("unexpected sub-questions %v", q.SubQuestions)
	}
	if q.Section != "A" || q.Type != "Reading Comprehension" {
		t.Errorf("unexpected section/type %q/%q", q.Section, q.Type)
	}

	// Atomic question keeps an empty sub-question list.
	atomicID := insertTestQuestion(t, s, "2", "B", "Essay", 5)
	atomic, err := s.GetQuestion(atomicID)
	if err != nil {
		t.Fatalf("GetQuestion atomic: %v", err)
	}
	if len(atomic.SubQuestions) != 0 {
		t.Errorf("expected no sub-questions, got %v", atomic.SubQuestions)
	}
	if atomic.Parts() != 1 {
		t.Errorf("expected atomic question to have 1 part, got %d", atomic.Parts())
	}

	// Not found.
	_, err = s.GetQuestion(9999)
	if err != sql.ErrNoRows {
		t.Errorf("expected ErrNoRows, got %v", err)
	}

	count, _ = s.QuestionCount()
	if count != 2 {
		t.Errorf("expected 2 questions, got %d", count)
	}
	total, err := s.TotalMarks()
	if err != nil {
		t.Fatalf("TotalMarks: %v", err)
	}
	if total != 15 {
		t.Errorf("expected 15 total marks, got %d", total)
	}
}

func TestListQuestionsKeepsBankOrder(t *testing.T) {
	s := newTestStore(t)

	for _, n := range []string{"3", "1", "2"} {
		insertTestQuestion(t, s, n, "A", "Mathematics", 4, "(i)")
	}

	list, err := s.ListQuestions()
	if err != nil {
		t.Fatalf("ListQuestions: %v", err)
	}
	var got []string
	for _, q := range list {
		got = append(got, q.Number)
	}
	if !reflect.DeepEqual(got, []string{"3", "1", "2"}) {
		t.Errorf("expected insertion order [3 1 2], got %v", got)
	}
}

func TestListQuestionsFiltered(t *testing.T) {
	s := newTestStore(t)

	insertTestQuestion(t, s, "1", "A", "Reading Comprehension", 10)
	insertTestQuestion(t, s, "2", "A", "Mathematics", 12)
	insertTestQuestion(t, s, "3", "B", "Mathematics", 6)

	tests := []struct {
		name    string
		section string
		qtype   string
		want    int
	}{
		{"no filter", "", "", 3},
		{"section A", "A", "", 2},
		{"mathematics", "", "Mathematics", 2},
		{"section B mathematics", "B", "Mathematics", 1},
		{"no match", "C", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListQuestionsFiltered(tt.section, tt.qtype)
			if err != nil {
				t.Fatalf("ListQuestionsFiltered: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d questions, want %d", len(got), tt.want)
			}
		})
	}
}

func TestNegativeMarksRejected(t *testing.T) {
	s := newTestStore(t)
	_, err := s.InsertQuestion(model.Question{Number: "x", Marks: -1, Content: "bad"})
	if err == nil {
		t.Error("expected error for negative marks")
	}
}

func TestImportedFileHash(t *testing.T) {
	s := newTestStore(t)

	// Missing file returns empty string.
	hash, err := s.GetImportedFileHash("/some/path.json")
	if err != nil {
		t.Fatalf("GetImportedFileHash: %v", err)
	}
	if hash != "" {
		t.Errorf("expected empty hash, got %q", hash)
	}

	// Set hash.
	if err := s.SetImportedFileHash("/some/path.json", "abc123"); err != nil {
		t.Fatalf("SetImportedFileHash: %v", err)
	}
	hash, err = s.GetImportedFileHash("/some/path.json")
	if err != nil {
		t.Fatalf("GetImportedFileHash: %v", err)
	}
	if hash != "abc123" {
		t.Errorf("expected 'abc123', got %q", hash)
	}

	// Update existing.
	if err := s.SetImportedFileHash("/some/path.json", "def456"); err != nil {
		t.Fatalf("SetImportedFileHash update: %v", err)
	}
	hash, _ = s.GetImportedFileHash("/some/path.json")
	if hash != "def456" {
		t.Errorf("expected 'def456', got %q", hash)
	}

	// Hashes do not leak into plain metadata keys.
	v, _ := s.GetMetadata("/some/path.json")
	if v != "" {
		t.Errorf("expected no plain metadata key, got %q", v)
	}
}
