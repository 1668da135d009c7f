package model

import (
	"errors"
	"time"
)

// DefaultMaxPoints is the exam total used when no reference correction sets one.
const DefaultMaxPoints = 20

// ExamStatus represents where an exam is in its grading lifecycle.
type ExamStatus string

const (
	// StatusDraft is a freshly created exam.
	StatusDraft ExamStatus = "brouillon"
	// StatusPublished is an exam visible to students.
	StatusPublished ExamStatus = "publie"
	// StatusCorrected is a draft with cached grading results.
	StatusCorrected ExamStatus = "corrige"
	// StatusValidated means the instructor confirmed the results.
	StatusValidated ExamStatus = "valide"
	// StatusClosed is a finished exam.
	StatusClosed ExamStatus = "termine"
)

// ErrInvalidTransition is returned when an exam cannot move to the requested status.
var ErrInvalidTransition = errors.New("invalid exam status transition")

var transitions = map[ExamStatus][]ExamStatus{
	StatusDraft:     {StatusCorrected, StatusPublished},
	StatusPublished: {StatusCorrected},
	StatusCorrected: {StatusCorrected, StatusValidated},
	StatusValidated: {StatusClosed},
}

// CanTransition reports whether an exam in status s may move to next.
// Re-grading a corrected exam is allowed and replaces its results.
func (s ExamStatus) CanTransition(next ExamStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status.
func (s ExamStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusPublished, StatusCorrected, StatusValidated, StatusClosed:
		return true
	}
	return false
}

// ScoringConfig is derived from the reference correction of an exam.
type ScoringConfig struct {
	// MaxPointsTotal is the exam total. Zero means the reference correction does not set one.
	MaxPointsTotal float64 `json:"max_points_total"`
	// Weights optionally maps question numbers to their max points.
	Weights map[int]float64 `json:"weights,omitempty"`
}

// Total returns the configured exam total, or DefaultMaxPoints when unset.
func (c ScoringConfig) Total() float64 {
	if c.MaxPointsTotal > 0 {
		return c.MaxPointsTotal
	}
	return DefaultMaxPoints
}

// Exam is an exam created by an instructor.
type Exam struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Subject   string        `json:"subject"`
	ClassName string        `json:"class_name,omitempty"`
	ExamDate  string        `json:"exam_date"`
	Status    ExamStatus    `json:"status"`
	Scoring   ScoringConfig `json:"scoring"`
	// Reference holds the answer key text used by the LLM grader.
	Reference string    `json:"reference,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Submission is a student's uploaded file.
type Submission struct {
	ID              string    `json:"id"`
	ExamID          string    `json:"exam_id"`
	DisplayName     string    `json:"display_name"`
	StorageLocation string    `json:"storage_location"`
	UploadedAt      time.Time `json:"uploaded_at"`
	// Position is the upload order within the exam, starting at 0.
	Position int `json:"position"`
}

// QuestionType is the kind of a graded question.
type QuestionType string

const (
	QuestionMCQ   QuestionType = "mcq"
	QuestionShort QuestionType = "short"
	QuestionEssay QuestionType = "essay"
	QuestionAuto  QuestionType = "auto"
)

// ParseQuestionType maps a raw type string to a known type, or QuestionAuto.
func ParseQuestionType(s string) QuestionType {
	switch QuestionType(s) {
	case QuestionMCQ, QuestionShort, QuestionEssay:
		return QuestionType(s)
	}
	return QuestionAuto
}

// QuestionStatus tags how much credit a question received.
type QuestionStatus string

const (
	StatusFull    QuestionStatus = "full"
	StatusPartial QuestionStatus = "partial"
	StatusZero    QuestionStatus = "zero"
)

// QuestionResult is one graded question within a copy.
type QuestionResult struct {
	Number          int            `json:"question"`
	Type            QuestionType   `json:"type"`
	ExtractedAnswer string         `json:"reponse"`
	AwardedPoints   float64        `json:"points"`
	MaxPoints       float64        `json:"maxPoints"`
	Status          QuestionStatus `json:"status"`
	Comment         string         `json:"comment,omitempty"`
}

// GradedCopy is one student's graded submission.
type GradedCopy struct {
	ID           string           `json:"id"`
	StudentLabel string           `json:"nomEleve"`
	TotalScore   float64          `json:"note"`
	MaxScore     float64          `json:"maxNote"`
	Percentage   float64          `json:"pourcent"`
	Questions    []QuestionResult `json:"details"`
}
