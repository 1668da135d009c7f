package results

import (
	"math"

	"github.com/examdesk/gradebook/internal/model"
)

// Score turns a normalized copy into a graded copy.
//
// Awarded points are clamped into [0, maxPoints] before anything is summed.
// The total is the provider-reported one when present and non-negative,
// otherwise the sum of awarded points, and is clamped into [0, maxScore].
// The max score is the exam total when configured, the default total when
// every question max was derived from it, otherwise the sum of question maxima.
// The percentage is always recomputed.
func Score(c NormalizedCopy, cfg model.ScoringConfig) model.GradedCopy {
	gc := model.GradedCopy{
		ID:           c.ID,
		StudentLabel: c.Label,
		Questions:    make([]model.QuestionResult, 0, len(c.Questions)),
	}

	var sum, maxSum float64
	for _, q := range c.Questions {
		q.AwardedPoints = clamp(q.AwardedPoints, 0, q.MaxPoints)
		q.Status = Classify(q.AwardedPoints, q.MaxPoints)
		sum += q.AwardedPoints
		maxSum += q.MaxPoints
		gc.Questions = append(gc.Questions, q)
	}

	gc.TotalScore = sum
	if c.ServerTotal != nil && *c.ServerTotal >= 0 {
		gc.TotalScore = *c.ServerTotal
	}

	switch {
	case cfg.MaxPointsTotal > 0:
		gc.MaxScore = cfg.MaxPointsTotal
	case c.DefaultMax:
		gc.MaxScore = cfg.Total()
	default:
		gc.MaxScore = maxSum
	}
	if gc.MaxScore > 0 {
		gc.TotalScore = clamp(gc.TotalScore, 0, gc.MaxScore)
	}

	gc.Percentage = Percentage(gc.TotalScore, gc.MaxScore)
	return gc
}

// Classify tags a question from its awarded and max points.
func Classify(awarded, maxPoints float64) model.QuestionStatus {
	switch {
	case awarded <= 0:
		return model.StatusZero
	case awarded >= maxPoints:
		return model.StatusFull
	default:
		return model.StatusPartial
	}
}

// Percentage returns score/maxScore*100 rounded to one decimal, or 0 when maxScore is not positive.
func Percentage(score, maxScore float64) float64 {
	if maxScore <= 0 {
		return 0
	}
	return round(score/maxScore*100, 1)
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		hi = lo
	}
	return math.Max(lo, math.Min(v, hi))
}

func round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
