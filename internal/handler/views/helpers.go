// Package views renders the HTML report and analytics pages.
//
// The *_templ.go files are generated from the .templ sources with `templ generate`.
package views

import (
	"context"

	"github.com/a-h/templ"

	"github.com/examdesk/gradebook/internal/i18n"
	"github.com/examdesk/gradebook/internal/model"
)

const styles = `body{font-family:system-ui,sans-serif;margin:2rem auto;max-width:64rem;color:#222}
table{border-collapse:collapse;margin:1rem 0;width:100%}
th,td{border:1px solid #ccc;padding:.3rem .6rem;text-align:left}
th{background:#f3f3f3}
td.num{text-align:right}
.stats{display:flex;gap:1.5rem;flex-wrap:wrap}
.stat b{display:block;font-size:1.4rem}
.muted{color:#777}
.errors{color:#a33}`

func pct(ctx context.Context, v float64) string {
	return i18n.Printer(ctx).Sprintf("%.1f %%", v)
}

func points(ctx context.Context, v float64) string {
	return i18n.Printer(ctx).Sprint(v)
}

func reportTitle(ctx context.Context, exam model.Exam) string {
	return i18n.Td(ctx, "ExamReport", map[string]any{"Title": exam.Title})
}

func reportURL(examID string) templ.SafeURL {
	return templ.URL("/exams/" + examID + "/report")
}

func copyHeaders(ctx context.Context) []string {
	return []string{
		i18n.T(ctx, "Student"), i18n.T(ctx, "Score"), i18n.T(ctx, "Percentage"), i18n.T(ctx, "Question"),
		i18n.T(ctx, "Points"), i18n.T(ctx, "Status"), i18n.T(ctx, "Comment"),
	}
}

// copyRows lays a copy out one question per row. Only the first row carries
// the student and totals.
func copyRows(ctx context.Context, c model.GradedCopy) [][]string {
	score := points(ctx, c.TotalScore) + " / " + points(ctx, c.MaxScore)
	if len(c.Questions) == 0 {
		return [][]string{{c.StudentLabel, score, pct(ctx, c.Percentage), "", "", "", ""}}
	}
	rows := make([][]string, 0, len(c.Questions))
	for i, q := range c.Questions {
		student, total, percent := "", "", ""
		if i == 0 {
			student, total, percent = c.StudentLabel, score, pct(ctx, c.Percentage)
		}
		rows = append(rows, []string{
			student, total, percent,
			i18n.Printer(ctx).Sprint(q.Number),
			points(ctx, q.AwardedPoints) + " / " + points(ctx, q.MaxPoints),
			i18n.TOr(ctx, "QStatus_"+string(q.Status), string(q.Status)),
			q.Comment,
		})
	}
	return rows
}
