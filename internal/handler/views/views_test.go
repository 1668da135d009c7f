package views

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/a-h/templ"

	"github.com/examdesk/gradebook/internal/i18n"
	"github.com/examdesk/gradebook/internal/model"
)

func render(t *testing.T, lang string, c templ.Component) string {
	t.Helper()
	if err := i18n.Init("en"); err != nil {
		t.Fatalf("i18n.Init: %v", err)
	}
	var sb strings.Builder
	if err := c.Render(i18n.Localize(context.Background(), lang), &sb); err != nil {
		t.Fatalf("Render: %v", err)
	}
	return sb.String()
}

func TestReportPageUngraded(t *testing.T) {
	exam := model.Exam{Title: "Fractions <1>", Subject: "Maths", Status: model.StatusDraft}
	html := render(t, "en", ReportPage(exam, nil))

	for _, want := range []string{
		`<html lang="en">`,
		"<title>Results: Fractions &lt;1&gt; · Gradebook</title>",
		"<h1>Results: Fractions &lt;1&gt;</h1>",
		"Maths · Draft",
		"This exam has not been graded yet.",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("missing %q in:\n%s", want, html)
		}
	}
	if strings.Contains(html, "<table>") {
		t.Error("ungraded report must not render result tables")
	}
}

func TestReportPageCopies(t *testing.T) {
	set := &model.ExamResultSet{
		ExamID:      "e1",
		GeneratedAt: "2026-10-01T14:30:00Z",
		Summary: model.ExamResultSummary{
			Total: 2, Graded: 1, Mean: 75, Median: 75, Min: 75, Max: 75,
			Distribution: model.Distribution{{Label: "excellent"}, {Label: "pass", Count: 1}, {Label: "fail"}},
		},
		Copies: []model.GradedCopy{{
			ID: "s1", StudentLabel: "alice.pdf", TotalScore: 15, MaxScore: 20, Percentage: 75,
			Questions: []model.QuestionResult{
				{Number: 1, AwardedPoints: 10, MaxPoints: 10, Status: model.StatusFull, Comment: "Parfait"},
				{Number: 2, AwardedPoints: 5, MaxPoints: 10, Status: model.StatusPartial},
			},
		}},
		Errors: []model.CopyIssue{{Key: "copie_2", Message: "copie_2: empty entry"}},
	}
	html := render(t, "fr", ReportPage(model.Exam{Title: "Fractions", Status: model.StatusCorrected}, set))

	for _, want := range []string{
		`<time datetime="2026-10-01T14:30:00Z"`,
		"<td>alice.pdf</td><td>15 / 20</td><td>75,0 %</td><td>1</td><td>10 / 10</td>",
		"<td></td><td></td><td></td><td>2</td><td>5 / 10</td><td>Partielle</td>",
		"<li>copie_2: empty entry</li>",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("missing %q in:\n%s", want, html)
		}
	}
}

func TestAnalyticsPage(t *testing.T) {
	agg := model.CrossExamAggregate{
		TotalExams: 1, ExamsWithResults: 1, TotalEnrolled: 3, TotalGraded: 2, OverallMean: 60,
		Recent: []model.RecentEvaluation{{
			ExamID: "e1", Title: "Fractions", Graded: 2, Mean: 60,
			GeneratedAt: time.Date(2026, 10, 1, 14, 30, 0, 0, time.UTC),
		}},
	}
	html := render(t, "en", AnalyticsPage(agg))

	for _, want := range []string{
		`<a href="/exams/e1/report">Fractions</a>`,
		`<td class="num">60.0 %</td>`,
		"2026-10-01 14:30",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("missing %q in:\n%s", want, html)
		}
	}
}

func TestTimestampZero(t *testing.T) {
	if got := render(t, "en", timestamp(time.Time{})); got != "-" {
		t.Errorf("expected -, got %q", got)
	}
}
