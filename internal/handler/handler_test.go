package handler

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/examdesk/gradebook/internal/correction"
	"github.com/examdesk/gradebook/internal/i18n"
	"github.com/examdesk/gradebook/internal/model"
	"github.com/examdesk/gradebook/internal/results"
	"github.com/examdesk/gradebook/internal/store"
)

const gradingResponse = `{"resultat": {
	"copie_1": {"note_totale": 16, "questions": [{"num": 1, "point": 10, "max_points": 10, "commentaire": "Parfait"}, {"num": 2, "point": 6, "max_points": 10}]},
	"copie_2": {"note_totale": 8, "questions": [{"num": 1, "point": 8, "max_points": 20}]},
	"copie_3": "garbage"
}}`

const examFile = `{
	"title": "Fractions <1>",
	"subject": "Maths",
	"scoring": {"max_points_total": 20},
	"submissions": [
		{"display_name": "alice.pdf"},
		{"display_name": "bob.pdf"},
		{"display_name": "carol.pdf"}
	]
}`

type testServer struct {
	*httptest.Server
	db *store.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	if err := i18n.Init("en"); err != nil {
		t.Fatalf("i18n.Init: %v", err)
	}
	db, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	engine, err := results.NewEngine(results.DefaultBands)
	if err != nil {
		t.Fatal(err)
	}
	reg := prometheus.NewRegistry()
	svc := correction.NewService(db, db, engine, correction.Options{
		Providers: map[string]correction.Provider{
			"file": correction.StaticProvider(gradingResponse),
			"bad":  correction.StaticProvider(`[]`),
		},
		DefaultSource: "file",
		Metrics:       correction.NewMetrics(reg),
	})

	r := chi.NewRouter()
	r.Use(i18n.Middleware("en"))
	New(db, svc, engine.Aggregator(), reg).Routes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, db: db}
}

func (s *testServer) do(t *testing.T, method, path string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(method, s.URL+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	return resp, buf.String()
}

func (s *testServer) importExam(t *testing.T, name, content string) (int, map[string]any) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("exam_file", name)
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte(content))
	mw.Close()

	resp, err := http.Post(s.URL+"/api/exams", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func (s *testServer) seedExam(t *testing.T) string {
	t.Helper()
	status, out := s.importExam(t, "fractions.json", examFile)
	if status != http.StatusCreated {
		t.Fatalf("import: expected 201, got %d (%v)", status, out)
	}
	return out["exam_id"].(string)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, http.MethodGet, "/healthz")
	if resp.StatusCode != http.StatusOK || body != "ok" {
		t.Errorf("healthz: %d %q", resp.StatusCode, body)
	}

	examID := s.seedExam(t)
	s.do(t, http.MethodPost, "/api/exams/"+examID+"/grade")

	resp, body = s.do(t, http.MethodGet, "/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics: %d", resp.StatusCode)
	}
	if !strings.Contains(body, `gradebook_grading_runs_total{outcome="ok",source="file"} 1`) {
		t.Errorf("expected run counter in metrics, got:\n%s", body)
	}
}

func TestImportExam(t *testing.T) {
	s := newTestServer(t)
	s.seedExam(t)

	status, out := s.importExam(t, "fractions.json", examFile)
	if status != http.StatusOK || out["status"] != "unchanged" {
		t.Errorf("re-import: %d %v", status, out)
	}
	status, _ = s.importExam(t, "broken.json", `{"title": `)
	if status != http.StatusBadRequest {
		t.Errorf("broken import: expected 400, got %d", status)
	}

	_, body := s.do(t, http.MethodGet, "/api/exams")
	var exams []model.Exam
	if err := json.Unmarshal([]byte(body), &exams); err != nil {
		t.Fatalf("decode exams: %v", err)
	}
	if len(exams) != 1 || exams[0].Status != model.StatusDraft {
		t.Errorf("unexpected exams %+v", exams)
	}
}

func TestGradeAndResults(t *testing.T) {
	s := newTestServer(t)
	examID := s.seedExam(t)

	resp, _ := s.do(t, http.MethodGet, "/api/exams/"+examID+"/results")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("results before grading: expected 404, got %d", resp.StatusCode)
	}

	resp, body := s.do(t, http.MethodPost, "/api/exams/"+examID+"/grade")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("grade: %d %s", resp.StatusCode, body)
	}
	var set model.ExamResultSet
	if err := json.Unmarshal([]byte(body), &set); err != nil {
		t.Fatalf("decode result set: %v", err)
	}
	if set.ExamID != examID || len(set.Copies) != 2 || len(set.Errors) != 1 {
		t.Errorf("unexpected result set: %d copies, %d errors", len(set.Copies), len(set.Errors))
	}
	if set.Summary.Total != 3 || set.Summary.Graded != 2 || set.Summary.Mean != 60 {
		t.Errorf("unexpected summary %+v", set.Summary)
	}

	resp, body = s.do(t, http.MethodGet, "/api/exams/"+examID+"/results")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, `"nomEleve":"alice.pdf"`) {
		t.Errorf("results: %d %s", resp.StatusCode, body)
	}
}

func TestGradeErrors(t *testing.T) {
	s := newTestServer(t)
	examID := s.seedExam(t)

	tests := []struct {
		name string
		path string
		want int
	}{
		{"unknown exam", "/api/exams/nope/grade", http.StatusNotFound},
		{"unknown source", "/api/exams/" + examID + "/grade?source=ocr", http.StatusBadRequest},
		{"malformed response", "/api/exams/" + examID + "/grade?source=bad", http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := s.do(t, http.MethodPost, tt.path)
			if resp.StatusCode != tt.want {
				t.Errorf("expected %d, got %d (%s)", tt.want, resp.StatusCode, body)
			}
			if !strings.Contains(body, `"error"`) {
				t.Errorf("expected JSON error body, got %s", body)
			}
		})
	}

	empty, err := s.db.CreateExam(model.Exam{Title: "Empty"})
	if err != nil {
		t.Fatal(err)
	}
	resp, _ := s.do(t, http.MethodPost, "/api/exams/"+empty.ID+"/grade")
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("no submissions: expected 422, got %d", resp.StatusCode)
	}
}

func TestLifecycleEndpoints(t *testing.T) {
	s := newTestServer(t)
	examID := s.seedExam(t)

	resp, _ := s.do(t, http.MethodPost, "/api/exams/"+examID+"/close")
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("close draft: expected 409, got %d", resp.StatusCode)
	}

	s.do(t, http.MethodPost, "/api/exams/"+examID+"/grade")

	resp, body := s.do(t, http.MethodPost, "/api/exams/"+examID+"/validate")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, `"status":"valide"`) {
		t.Errorf("validate: %d %s", resp.StatusCode, body)
	}
	resp, _ = s.do(t, http.MethodPost, "/api/exams/"+examID+"/grade")
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("regrade validated: expected 409, got %d", resp.StatusCode)
	}
	resp, body = s.do(t, http.MethodPost, "/api/exams/"+examID+"/close")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, `"status":"termine"`) {
		t.Errorf("close: %d %s", resp.StatusCode, body)
	}
}

func TestExport(t *testing.T) {
	s := newTestServer(t)
	examID := s.seedExam(t)

	resp, _ := s.do(t, http.MethodGet, "/api/exams/"+examID+"/export")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("export before grading: expected 404, got %d", resp.StatusCode)
	}

	s.do(t, http.MethodPost, "/api/exams/"+examID+"/grade")

	tests := []struct {
		format      string
		status      int
		contentType string
	}{
		{"", http.StatusOK, "application/json"},
		{"csv", http.StatusOK, "text/csv; charset=utf-8"},
		{"xlsx", http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
		{"pdf", http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run("format="+tt.format, func(t *testing.T) {
			resp, body := s.do(t, http.MethodGet, "/api/exams/"+examID+"/export?format="+tt.format)
			if resp.StatusCode != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, resp.StatusCode)
			}
			if tt.contentType == "" {
				return
			}
			if got := resp.Header.Get("Content-Type"); got != tt.contentType {
				t.Errorf("Content-Type = %q", got)
			}
			if !strings.Contains(resp.Header.Get("Content-Disposition"), "resultats_"+examID) {
				t.Errorf("Content-Disposition = %q", resp.Header.Get("Content-Disposition"))
			}
			if len(body) == 0 {
				t.Error("empty export")
			}
		})
	}
}

func TestAnalytics(t *testing.T) {
	s := newTestServer(t)
	examID := s.seedExam(t)
	s.do(t, http.MethodPost, "/api/exams/"+examID+"/grade")

	resp, body := s.do(t, http.MethodGet, "/api/analytics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("analytics: %d", resp.StatusCode)
	}
	var agg model.CrossExamAggregate
	if err := json.Unmarshal([]byte(body), &agg); err != nil {
		t.Fatal(err)
	}
	if agg.TotalExams != 1 || agg.TotalEnrolled != 3 || agg.TotalGraded != 2 || agg.OverallMean != 60 {
		t.Errorf("unexpected aggregate %+v", agg)
	}

	resp, body = s.do(t, http.MethodGet, "/analytics?lang=fr")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("analytics page: %d", resp.StatusCode)
	}
	for _, want := range []string{"Statistiques", "Moyenne générale", "60,0 %", "/exams/" + examID + "/report"} {
		if !strings.Contains(body, want) {
			t.Errorf("analytics page missing %q", want)
		}
	}
}

func TestReportPage(t *testing.T) {
	s := newTestServer(t)
	examID := s.seedExam(t)

	resp, body := s.do(t, http.MethodGet, "/exams/"+examID+"/report")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "not been graded") {
		t.Errorf("report before grading: %d", resp.StatusCode)
	}

	s.do(t, http.MethodPost, "/api/exams/"+examID+"/grade")

	_, body = s.do(t, http.MethodGet, "/exams/"+examID+"/report")
	for _, want := range []string{
		"Results: Fractions &lt;1&gt;",
		"alice.pdf",
		"Parfait",
		"80.0 %",
		"Excellent",
		"Entries that could not be graded",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("report missing %q", want)
		}
	}
	if strings.Contains(body, "Fractions <1>") {
		t.Error("exam title must be escaped")
	}

	resp, _ = s.do(t, http.MethodGet, "/exams/nope/report")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown exam report: expected 404, got %d", resp.StatusCode)
	}
}
