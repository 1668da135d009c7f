package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/examdesk/gradebook/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS exams (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		subject TEXT NOT NULL DEFAULT '',
		class_name TEXT NOT NULL DEFAULT '',
		exam_date TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'brouillon',
		max_points_total REAL NOT NULL DEFAULT 0,
		weights TEXT NOT NULL DEFAULT '{}',
		reference TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS submissions (
		id TEXT PRIMARY KEY,
		exam_id TEXT NOT NULL,
		display_name TEXT NOT NULL,
		storage_location TEXT NOT NULL DEFAULT '',
		uploaded_at DATETIME NOT NULL,
		position INTEGER NOT NULL,
		FOREIGN KEY (exam_id) REFERENCES exams(id)
	);

	CREATE INDEX IF NOT EXISTS submissions_exam ON submissions (exam_id, position);

	CREATE TABLE IF NOT EXISTS result_sets (
		exam_id TEXT PRIMARY KEY,
		generated_at DATETIME NOT NULL,
		payload TEXT NOT NULL,
		FOREIGN KEY (exam_id) REFERENCES exams(id)
	);

	CREATE TABLE IF NOT EXISTS exam_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateExam stores an exam, assigning an ID and draft status when missing.
func (s *Store) CreateExam(e model.Exam) (model.Exam, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Status == "" {
		e.Status = model.StatusDraft
	}
	if !e.Status.Valid() {
		return e, fmt.Errorf("unknown exam status %q", e.Status)
	}
	weights, err := encodeWeights(e.Scoring.Weights)
	if err != nil {
		return e, err
	}
	now := time.Now().UTC()
	e.CreatedAt, e.UpdatedAt = now, now

	_, err = s.db.Exec(
		`INSERT INTO exams (id, title, subject, class_name, exam_date, status, max_points_total, weights, reference, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Title, e.Subject, e.ClassName, e.ExamDate, e.Status, e.Scoring.MaxPointsTotal, weights, e.Reference, now, now,
	)
	if err != nil {
		return e, err
	}
	return e, nil
}

const examColumns = `id, title, subject, class_name, exam_date, status, max_points_total, weights, reference, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExam(row rowScanner) (model.Exam, error) {
	var e model.Exam
	var weights string
	err := row.Scan(&e.ID, &e.Title, &e.Subject, &e.ClassName, &e.ExamDate, &e.Status,
		&e.Scoring.MaxPointsTotal, &weights, &e.Reference, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return e, err
	}
	if err := json.Unmarshal([]byte(weights), &e.Scoring.Weights); err != nil {
		return e, fmt.Errorf("decode weights of exam %s: %w", e.ID, err)
	}
	if len(e.Scoring.Weights) == 0 {
		e.Scoring.Weights = nil
	}
	return e, nil
}

// GetExam returns an exam by ID, or nil if it does not exist.
func (s *Store) GetExam(id string) (*model.Exam, error) {
	e, err := scanExam(s.db.QueryRow(`SELECT `+examColumns+` FROM exams WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListExams returns all exams, newest first.
func (s *Store) ListExams() ([]model.Exam, error) {
	rows, err := s.db.Query(`SELECT ` + examColumns + ` FROM exams ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var exams []model.Exam
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// UpdateExamStatus sets the lifecycle status of an exam.
func (s *Store) UpdateExamStatus(id string, status model.ExamStatus) error {
	if !status.Valid() {
		return fmt.Errorf("unknown exam status %q", status)
	}
	res, err := s.db.Exec(`UPDATE exams SET status = ?, updated_at = ? WHERE id = ?`, status, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

// SetScoring replaces the scoring configuration and reference text of an exam.
func (s *Store) SetScoring(id string, cfg model.ScoringConfig, reference string) error {
	weights, err := encodeWeights(cfg.Weights)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(
		`UPDATE exams SET max_points_total = ?, weights = ?, reference = ?, updated_at = ? WHERE id = ?`,
		cfg.MaxPointsTotal, weights, reference, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

// AddSubmission appends a submission to an exam's upload order.
func (s *Store) AddSubmission(sub model.Submission) (model.Submission, error) {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.UploadedAt.IsZero() {
		sub.UploadedAt = time.Now().UTC()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return sub, err
	}
	defer tx.Rollback()

	err = tx.QueryRow(
		`SELECT COALESCE(MAX(position) + 1, 0) FROM submissions WHERE exam_id = ?`, sub.ExamID,
	).Scan(&sub.Position)
	if err != nil {
		return sub, err
	}

	_, err = tx.Exec(
		`INSERT INTO submissions (id, exam_id, display_name, storage_location, uploaded_at, position)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.ExamID, sub.DisplayName, sub.StorageLocation, sub.UploadedAt, sub.Position,
	)
	if err != nil {
		return sub, err
	}
	return sub, tx.Commit()
}

// ListSubmissions returns an exam's submissions in upload order.
func (s *Store) ListSubmissions(examID string) ([]model.Submission, error) {
	rows, err := s.db.Query(
		`SELECT id, exam_id, display_name, storage_location, uploaded_at, position
		 FROM submissions WHERE exam_id = ? ORDER BY position`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var subs []model.Submission
	for rows.Next() {
		var sub model.Submission
		if err := rows.Scan(&sub.ID, &sub.ExamID, &sub.DisplayName, &sub.StorageLocation, &sub.UploadedAt, &sub.Position); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// CountSubmissions returns the number of submissions of an exam.
func (s *Store) CountSubmissions(examID string) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM submissions WHERE exam_id = ?`, examID).Scan(&count)
	return count, err
}

func encodeWeights(w map[int]float64) (string, error) {
	if len(w) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(w)
	if err != nil {
		return "", fmt.Errorf("encode weights: %w", err)
	}
	return string(data), nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
