package results

import (
	"math"
	"testing"

	"github.com/examdesk/gradebook/internal/model"
)

func ptr(f float64) *float64 { return &f }

func TestScore(t *testing.T) {
	questions := func(pairs ...float64) []model.QuestionResult {
		var qs []model.QuestionResult
		for i := 0; i+1 < len(pairs); i += 2 {
			qs = append(qs, model.QuestionResult{Number: i/2 + 1, AwardedPoints: pairs[i], MaxPoints: pairs[i+1]})
		}
		return qs
	}

	tests := []struct {
		name      string
		copy      NormalizedCopy
		cfg       model.ScoringConfig
		wantTotal float64
		wantMax   float64
		wantPct   float64
	}{
		{
			name:      "sum of points against exam total",
			copy:      NormalizedCopy{Questions: questions(3, 5, 2, 5, 5, 10)},
			cfg:       model.ScoringConfig{MaxPointsTotal: 20},
			wantTotal: 10, wantMax: 20, wantPct: 50,
		},
		{
			name:      "server total wins",
			copy:      NormalizedCopy{ServerTotal: ptr(14.5), Questions: questions(3, 5, 2, 5)},
			cfg:       model.ScoringConfig{MaxPointsTotal: 20},
			wantTotal: 14.5, wantMax: 20, wantPct: 72.5,
		},
		{
			name:      "negative server total is ignored",
			copy:      NormalizedCopy{ServerTotal: ptr(-1), Questions: questions(3, 5, 2, 5)},
			cfg:       model.ScoringConfig{MaxPointsTotal: 20},
			wantTotal: 5, wantMax: 20, wantPct: 25,
		},
		{
			name:      "zero server total is kept",
			copy:      NormalizedCopy{ServerTotal: ptr(0), Questions: questions(3, 5)},
			cfg:       model.ScoringConfig{MaxPointsTotal: 20},
			wantTotal: 0, wantMax: 20, wantPct: 0,
		},
		{
			name:      "max from question sum without exam total",
			copy:      NormalizedCopy{Questions: questions(1, 2, 2, 4, 0, 3)},
			wantTotal: 3, wantMax: 9, wantPct: 33.3,
		},
		{
			name:      "over-awarded points are clamped",
			copy:      NormalizedCopy{Questions: questions(7, 5, -2, 5)},
			wantTotal: 5, wantMax: 10, wantPct: 50,
		},
		{
			name:      "no questions and no total",
			copy:      NormalizedCopy{},
			wantTotal: 0, wantMax: 0, wantPct: 0,
		},
		{
			name:      "server total above max score is clamped",
			copy:      NormalizedCopy{ServerTotal: ptr(30), Questions: questions(5, 20)},
			cfg:       model.ScoringConfig{MaxPointsTotal: 20},
			wantTotal: 20, wantMax: 20, wantPct: 100,
		},
		{
			name:      "summed points above exam total are clamped",
			copy:      NormalizedCopy{Questions: questions(10, 10, 10, 10, 5, 10)},
			cfg:       model.ScoringConfig{MaxPointsTotal: 20},
			wantTotal: 20, wantMax: 20, wantPct: 100,
		},
		{
			name:      "derived maxima score against the default total",
			copy:      NormalizedCopy{DefaultMax: true, Questions: questions(7, 7, 7, 7, 3, 7)},
			wantTotal: 17, wantMax: 20, wantPct: 85,
		},
		{
			name:      "rounding to one decimal",
			copy:      NormalizedCopy{Questions: questions(2, 3)},
			wantTotal: 2, wantMax: 3, wantPct: 66.7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gc := Score(tt.copy, tt.cfg)
			if gc.TotalScore != tt.wantTotal {
				t.Errorf("TotalScore = %v, want %v", gc.TotalScore, tt.wantTotal)
			}
			if gc.MaxScore != tt.wantMax {
				t.Errorf("MaxScore = %v, want %v", gc.MaxScore, tt.wantMax)
			}
			if math.Abs(gc.Percentage-tt.wantPct) > 1e-9 {
				t.Errorf("Percentage = %v, want %v", gc.Percentage, tt.wantPct)
			}
		})
	}
}

func TestScoreClampInvariant(t *testing.T) {
	nc := NormalizedCopy{Questions: []model.QuestionResult{
		{Number: 1, AwardedPoints: 12, MaxPoints: 4},
		{Number: 2, AwardedPoints: -3, MaxPoints: 4},
		{Number: 3, AwardedPoints: 2, MaxPoints: 4},
	}}
	gc := Score(nc, model.ScoringConfig{})

	for _, q := range gc.Questions {
		if q.AwardedPoints < 0 || q.AwardedPoints > q.MaxPoints {
			t.Errorf("question %d: %v outside [0, %v]", q.Number, q.AwardedPoints, q.MaxPoints)
		}
	}
	want := []model.QuestionStatus{model.StatusFull, model.StatusZero, model.StatusPartial}
	for i, q := range gc.Questions {
		if q.Status != want[i] {
			t.Errorf("question %d status = %q, want %q", q.Number, q.Status, want[i])
		}
	}
	if nc.Questions[0].AwardedPoints != 12 {
		t.Errorf("Score must not mutate its input")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		awarded, max float64
		want         model.QuestionStatus
	}{
		{0, 5, model.StatusZero},
		{0.5, 5, model.StatusPartial},
		{4.99, 5, model.StatusPartial},
		{5, 5, model.StatusFull},
		{1, 1, model.StatusFull},
	}
	for _, tt := range tests {
		if got := Classify(tt.awarded, tt.max); got != tt.want {
			t.Errorf("Classify(%v, %v) = %q, want %q", tt.awarded, tt.max, got, tt.want)
		}
	}
}

func TestPercentageDivisionGuard(t *testing.T) {
	if got := Percentage(5, 0); got != 0 {
		t.Errorf("Percentage(5, 0) = %v, want 0", got)
	}
	if got := Percentage(5, -1); got != 0 {
		t.Errorf("Percentage(5, -1) = %v, want 0", got)
	}
	if got := Percentage(1, 8); got != 12.5 {
		t.Errorf("Percentage(1, 8) = %v, want 12.5", got)
	}
}
