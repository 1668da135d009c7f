// Package importer loads exams and their submissions from JSON files.
package importer

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/examdesk/gradebook/internal/model"
	"github.com/examdesk/gradebook/internal/store"
)

// ExamFile is the import format of one exam.
type ExamFile struct {
	Title     string              `json:"title"`
	Subject   string              `json:"subject"`
	ClassName string              `json:"class_name"`
	ExamDate  string              `json:"exam_date"`
	Scoring   model.ScoringConfig `json:"scoring"`
	// Reference is the answer key text.
	Reference   string             `json:"reference"`
	Submissions []SubmissionImport `json:"submissions"`
}

// SubmissionImport is one uploaded copy, in upload order.
type SubmissionImport struct {
	DisplayName     string `json:"display_name"`
	StorageLocation string `json:"storage_location"`
}

// Status tells what Import did with a file.
type Status string

const (
	StatusImported  Status = "imported"
	StatusUnchanged Status = "unchanged"
	// StatusChanged means the file differs from the one imported under the
	// same name; it is skipped so existing results keep their exam.
	StatusChanged Status = "changed"
)

// Result describes one Import call.
type Result struct {
	Status      Status `json:"status"`
	ExamID      string `json:"exam_id,omitempty"`
	Submissions int    `json:"submissions"`
}

// Import creates the exam described by data, unless a file with the same name
// was already imported.
func Import(db *store.Store, name string, data []byte) (Result, error) {
	hash := sha256sum(data)
	storedHash, err := db.GetImportedFileHash(name)
	if err != nil {
		return Result{}, fmt.Errorf("check import status for %s: %w", name, err)
	}
	if storedHash == hash {
		slog.Info("exam file unchanged, skipping", "path", name)
		return Result{Status: StatusUnchanged}, nil
	}
	if storedHash != "" {
		slog.Warn("exam file changed since last import, skipping to avoid duplicating the exam", "path", name)
		return Result{Status: StatusChanged}, nil
	}

	var f ExamFile
	if err := json.Unmarshal(data, &f); err != nil {
		return Result{}, fmt.Errorf("parse %s: %w", name, err)
	}
	if strings.TrimSpace(f.Title) == "" {
		return Result{}, fmt.Errorf("%s: exam title is required", name)
	}

	exam, err := db.CreateExam(model.Exam{
		Title:     f.Title,
		Subject:   f.Subject,
		ClassName: f.ClassName,
		ExamDate:  f.ExamDate,
		Scoring:   f.Scoring,
		Reference: f.Reference,
	})
	if err != nil {
		return Result{}, fmt.Errorf("create exam from %s: %w", name, err)
	}

	for _, si := range f.Submissions {
		_, err := db.AddSubmission(model.Submission{
			ExamID:          exam.ID,
			DisplayName:     si.DisplayName,
			StorageLocation: si.StorageLocation,
		})
		if err != nil {
			return Result{}, fmt.Errorf("insert submission from %s: %w", name, err)
		}
	}

	if err := db.SetImportedFileHash(name, hash); err != nil {
		return Result{}, fmt.Errorf("record import for %s: %w", name, err)
	}
	slog.Info("imported exam", "path", name, "exam_id", exam.ID, "submissions", len(f.Submissions))
	return Result{Status: StatusImported, ExamID: exam.ID, Submissions: len(f.Submissions)}, nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
