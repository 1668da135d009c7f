package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/examdesk/gradebook/internal/model"
)

// PutResultSet caches the result set of an exam, replacing any earlier run.
func (s *Store) PutResultSet(set model.ExamResultSet) error {
	payload, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("encode result set: %w", err)
	}
	generatedAt := set.GeneratedTime()
	if generatedAt.IsZero() {
		generatedAt = time.Now().UTC()
	}
	_, err = s.db.Exec(
		`INSERT INTO result_sets (exam_id, generated_at, payload) VALUES (?, ?, ?)
		 ON CONFLICT(exam_id) DO UPDATE SET generated_at = ?, payload = ?`,
		set.ExamID, generatedAt, string(payload), generatedAt, string(payload),
	)
	return err
}

// GetResultSet returns the cached result set of an exam, or nil if none.
func (s *Store) GetResultSet(examID string) (*model.ExamResultSet, error) {
	var payload string
	err := s.db.QueryRow(`SELECT payload FROM result_sets WHERE exam_id = ?`, examID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var set model.ExamResultSet
	if err := json.Unmarshal([]byte(payload), &set); err != nil {
		return nil, fmt.Errorf("decode result set of exam %s: %w", examID, err)
	}
	return &set, nil
}

// DeleteResultSet drops the cached result set of an exam.
func (s *Store) DeleteResultSet(examID string) error {
	_, err := s.db.Exec(`DELETE FROM result_sets WHERE exam_id = ?`, examID)
	return err
}

// RollupInputs returns one rollup entry per exam, with its enrollment and
// cached summary when one exists.
func (s *Store) RollupInputs() ([]model.ExamRollupInput, error) {
	exams, err := s.ListExams()
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}

	var inputs []model.ExamRollupInput
	for _, e := range exams {
		enrolled, err := s.CountSubmissions(e.ID)
		if err != nil {
			return nil, fmt.Errorf("count submissions of %s: %w", e.ID, err)
		}
		set, err := s.GetResultSet(e.ID)
		if err != nil {
			return nil, err
		}

		in := model.ExamRollupInput{ExamID: e.ID, Title: e.Title, Enrolled: enrolled}
		if set != nil {
			summary := set.Summary
			in.Summary = &summary
			in.GeneratedAt = set.GeneratedTime()
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}
