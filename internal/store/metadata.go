package store

import (
	"database/sql"
)

const importHashPrefix = "import:"

// SetMetadata upserts a key-value pair in the exam_metadata table.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO exam_metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		key, value, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM exam_metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// GetImportedFileHash returns the content hash recorded when path was
// imported, or "" if it never was.
func (s *Store) GetImportedFileHash(path string) (string, error) {
	return s.GetMetadata(importHashPrefix + path)
}

// SetImportedFileHash records the content hash of an imported file.
func (s *Store) SetImportedFileHash(path, hash string) error {
	return s.SetMetadata(importHashPrefix+path, hash)
}
