package results

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/examdesk/gradebook/internal/model"
)

const sampleResponse = `{"resultat": {
	"copie_1": {"note_totale": 16, "questions": [
		{"num": 1, "type": "mcq", "point": 2, "max_points": 2},
		{"num": 2, "type": "essay", "point": 14, "max_points": 18, "commentaire": "Bon développement"}
	]},
	"copie_2": {"questions": [
		{"num": 1, "type": "mcq", "point": 0, "max_points": 2},
		{"num": 2, "type": "essay", "point": 25, "max_points": 18}
	]},
	"copie_3": {"nom_fichier": "essay_jane.pdf", "questions": [
		{"num": 1, "point": "x"}
	]}
}}`

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultBands)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	fixed := time.Date(2026, 10, 1, 14, 30, 0, 0, time.UTC)
	return e.WithClock(func() time.Time { return fixed })
}

func TestEngineRunDefaultTotal(t *testing.T) {
	e := newTestEngine(t)
	data := `{"resultat": {
		"copie_1": {"questions": [{"num": 1, "point": 7}, {"num": 2, "point": 7}, {"num": 3, "point": 6}]},
		"copie_2": {"questions": [{"num": 1, "point": 4, "max_points": 5}, {"num": 2, "point": 2}]}
	}}`

	set, err := e.Run("exam-1", []byte(data), testSubmissions(), model.ScoringConfig{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(set.Copies) != 2 {
		t.Fatalf("expected 2 copies, got %d", len(set.Copies))
	}

	// Three questions default to 7 points each; the copy is still out of 20.
	first := set.Copies[0]
	if first.MaxScore != 20 || first.TotalScore != 20 || first.Percentage != 100 {
		t.Errorf("first copy = %v/%v (%v%%), want 20/20 (100%%)", first.TotalScore, first.MaxScore, first.Percentage)
	}
	// An explicit max on one question switches to the sum of question maxima.
	second := set.Copies[1]
	if second.MaxScore != 15 || second.TotalScore != 6 || second.Percentage != 40 {
		t.Errorf("second copy = %v/%v (%v%%), want 6/15 (40%%)", second.TotalScore, second.MaxScore, second.Percentage)
	}
}

func TestEngineRun(t *testing.T) {
	e := newTestEngine(t)
	cfg := model.ScoringConfig{MaxPointsTotal: 20}

	set, err := e.Run("exam-1", []byte(sampleResponse), testSubmissions(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if set.ExamID != "exam-1" || set.GeneratedAt != "2026-10-01T14:30:00Z" {
		t.Errorf("header = %q %q", set.ExamID, set.GeneratedAt)
	}
	if len(set.Copies) != 2 {
		t.Fatalf("expected 2 copies, got %d", len(set.Copies))
	}
	if len(set.Errors) != 1 || set.Errors[0].Key != "copie_3" {
		t.Errorf("errors = %+v", set.Errors)
	}

	first, second := set.Copies[0], set.Copies[1]
	if first.StudentLabel != "alice.pdf" || first.TotalScore != 16 || first.Percentage != 80 {
		t.Errorf("first copy = %+v", first)
	}
	if second.StudentLabel != "bob.pdf" || second.TotalScore != 18 || second.Percentage != 90 {
		t.Errorf("second copy = %+v", second)
	}
	if second.Questions[1].AwardedPoints != 18 || second.Questions[1].Status != model.StatusFull {
		t.Errorf("clamped question = %+v", second.Questions[1])
	}

	if set.Summary.Total != 3 || set.Summary.Graded != 2 {
		t.Errorf("Total/Graded = %d/%d, want 3/2", set.Summary.Total, set.Summary.Graded)
	}
	if set.Summary.Mean != 85 || set.Summary.Median != 90 {
		t.Errorf("Mean/Median = %v/%v, want 85/90", set.Summary.Mean, set.Summary.Median)
	}
	if set.Summary.Distribution.Count("excellent") != 2 {
		t.Errorf("distribution = %v", set.Summary.Distribution)
	}
}

func TestEngineIdempotent(t *testing.T) {
	e := newTestEngine(t)
	cfg := model.ScoringConfig{MaxPointsTotal: 20}

	var outputs [][]byte
	for range 2 {
		set, err := e.Run("exam-1", []byte(sampleResponse), testSubmissions(), cfg)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		data, err := json.Marshal(set)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		outputs = append(outputs, data)
	}
	if !bytes.Equal(outputs[0], outputs[1]) {
		t.Errorf("runs differ:\n%s\n%s", outputs[0], outputs[1])
	}
}

func TestEnginePercentageConsistency(t *testing.T) {
	e := newTestEngine(t)

	set, err := e.Run("exam-1", []byte(sampleResponse), testSubmissions(), model.ScoringConfig{MaxPointsTotal: 17})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, c := range set.Copies {
		want := math.Round(c.TotalScore/c.MaxScore*100*10) / 10
		if math.Abs(c.Percentage-want) > 1e-9 {
			t.Errorf("copy %s: percentage %v, want %v", c.ID, c.Percentage, want)
		}
	}
}

func TestEngineMalformed(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Run("exam-1", []byte(`["copie_1"]`), testSubmissions(), model.ScoringConfig{})
	var target *MalformedResponseError
	if !errors.As(err, &target) {
		t.Fatalf("expected MalformedResponseError, got %v", err)
	}
}

func TestEngineWireFormat(t *testing.T) {
	e := newTestEngine(t)

	set, err := e.Run("exam-1", []byte(sampleResponse), testSubmissions(), model.ScoringConfig{MaxPointsTotal: 20})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	data, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	summary := doc["summary"].(map[string]any)
	for _, key := range []string{"total", "graded", "moyenne", "min", "max", "median", "distribution"} {
		if _, ok := summary[key]; !ok {
			t.Errorf("summary is missing %q", key)
		}
	}
	firstCopy := doc["copies"].([]any)[0].(map[string]any)
	for _, key := range []string{"id", "nomEleve", "note", "maxNote", "pourcent", "details"} {
		if _, ok := firstCopy[key]; !ok {
			t.Errorf("copy is missing %q", key)
		}
	}
	detail := firstCopy["details"].([]any)[0].(map[string]any)
	for _, key := range []string{"question", "type", "reponse", "points", "maxPoints", "status"} {
		if _, ok := detail[key]; !ok {
			t.Errorf("detail is missing %q", key)
		}
	}

	var back model.ExamResultSet
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("decode result set: %v", err)
	}
	if back.Summary.Distribution.Count("excellent") != set.Summary.Distribution.Count("excellent") {
		t.Errorf("distribution lost in decoding: %v", back.Summary.Distribution)
	}
}
