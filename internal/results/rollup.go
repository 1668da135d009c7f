package results

import (
	"sort"

	"github.com/examdesk/gradebook/internal/model"
)

// DefaultRecentLimit bounds the recent evaluations list when no limit is given.
const DefaultRecentLimit = 5

// Rollup folds per-exam summaries into institution-wide totals.
//
// Exams without a summary only count toward TotalExams and TotalEnrolled.
// The overall mean weights each exam's mean by its graded copies, and the
// merged distribution sums raw counts before deriving percentages.
func (a *Aggregator) Rollup(exams []model.ExamRollupInput, recentLimit int) model.CrossExamAggregate {
	if recentLimit <= 0 {
		recentLimit = DefaultRecentLimit
	}

	agg := model.CrossExamAggregate{
		TotalExams:   len(exams),
		Distribution: []model.BandShare{},
		Recent:       []model.RecentEvaluation{},
	}

	counts := map[string]int{}
	var order []string
	for _, b := range a.bands {
		order = append(order, b.Label)
		counts[b.Label] = 0
	}

	var weighted float64
	var recent []model.RecentEvaluation
	for _, e := range exams {
		agg.TotalEnrolled += e.Enrolled
		if e.Summary == nil {
			continue
		}
		agg.ExamsWithResults++
		agg.TotalGraded += e.Summary.Graded
		weighted += e.Summary.Mean * float64(e.Summary.Graded)

		for _, bc := range e.Summary.Distribution {
			if _, ok := counts[bc.Label]; !ok {
				order = append(order, bc.Label)
			}
			counts[bc.Label] += bc.Count
		}

		recent = append(recent, model.RecentEvaluation{
			ExamID:      e.ExamID,
			Title:       e.Title,
			GeneratedAt: e.GeneratedAt,
			Graded:      e.Summary.Graded,
			Mean:        e.Summary.Mean,
		})
	}

	if agg.TotalGraded > 0 {
		agg.OverallMean = round(weighted/float64(agg.TotalGraded), 2)
	}

	var counted int
	for _, label := range order {
		counted += counts[label]
	}
	for _, label := range order {
		share := model.BandShare{Label: label, Count: counts[label]}
		if counted > 0 {
			share.Percent = round(float64(share.Count)/float64(counted)*100, 1)
		}
		agg.Distribution = append(agg.Distribution, share)
	}

	sort.SliceStable(recent, func(i, j int) bool {
		if !recent[i].GeneratedAt.Equal(recent[j].GeneratedAt) {
			return recent[i].GeneratedAt.After(recent[j].GeneratedAt)
		}
		return recent[i].ExamID < recent[j].ExamID
	})
	if len(recent) > recentLimit {
		recent = recent[:recentLimit]
	}
	agg.Recent = append(agg.Recent, recent...)
	return agg
}
