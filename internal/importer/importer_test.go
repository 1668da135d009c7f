package importer

import (
	"testing"

	"github.com/examdesk/gradebook/internal/store"
)

const examJSON = `{
	"title": "Fractions",
	"subject": "Maths",
	"exam_date": "2026-10-01",
	"scoring": {"max_points_total": 20, "weights": {"1": 8, "2": 12}},
	"reference": "Q1: 3/4",
	"submissions": [
		{"display_name": "alice.pdf", "storage_location": "https://files.example/alice.pdf"},
		{"display_name": "bob.pdf", "storage_location": "https://files.example/bob.pdf"}
	]
}`

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestImport(t *testing.T) {
	db := newTestStore(t)

	res, err := Import(db, "fractions.json", []byte(examJSON))
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Status != StatusImported || res.Submissions != 2 {
		t.Fatalf("unexpected result %+v", res)
	}

	exam, err := db.GetExam(res.ExamID)
	if err != nil || exam == nil {
		t.Fatalf("GetExam: %v", err)
	}
	if exam.Title != "Fractions" || exam.Scoring.Weights[2] != 12 || exam.Reference != "Q1: 3/4" {
		t.Errorf("unexpected exam %+v", exam)
	}

	subs, err := db.ListSubmissions(res.ExamID)
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 2 || subs[0].DisplayName != "alice.pdf" || subs[1].Position != 1 {
		t.Errorf("unexpected submissions %+v", subs)
	}
}

func TestImportSkipsKnownFiles(t *testing.T) {
	db := newTestStore(t)

	if _, err := Import(db, "fractions.json", []byte(examJSON)); err != nil {
		t.Fatal(err)
	}

	res, err := Import(db, "fractions.json", []byte(examJSON))
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusUnchanged {
		t.Errorf("expected unchanged, got %s", res.Status)
	}

	res, err = Import(db, "fractions.json", []byte(`{"title": "Edited"}`))
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusChanged {
		t.Errorf("expected changed, got %s", res.Status)
	}

	exams, _ := db.ListExams()
	if len(exams) != 1 {
		t.Errorf("expected a single exam, got %d", len(exams))
	}
}

func TestImportInvalid(t *testing.T) {
	db := newTestStore(t)

	if _, err := Import(db, "bad.json", []byte(`{"title": `)); err == nil {
		t.Error("expected parse error")
	}
	if _, err := Import(db, "untitled.json", []byte(`{"subject": "Maths"}`)); err == nil {
		t.Error("expected error for a missing title")
	}
	// Failed imports are not recorded.
	hash, _ := db.GetImportedFileHash("bad.json")
	if hash != "" {
		t.Errorf("expected no recorded hash, got %q", hash)
	}
}
