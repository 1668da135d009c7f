package results

import (
	"time"

	"github.com/examdesk/gradebook/internal/model"
)

// Engine runs normalization, scoring and aggregation for one grading run.
type Engine struct {
	agg *Aggregator
	now func() time.Time
}

// NewEngine creates an engine for the given band scheme.
func NewEngine(bands []model.Band) (*Engine, error) {
	agg, err := NewAggregator(bands)
	if err != nil {
		return nil, err
	}
	return &Engine{agg: agg, now: time.Now}, nil
}

// WithClock returns a copy of the engine that stamps results with now().
func (e *Engine) WithClock(now func() time.Time) *Engine {
	cp := *e
	cp.now = now
	return &cp
}

// Aggregator returns the engine's aggregator.
func (e *Engine) Aggregator() *Aggregator {
	return e.agg
}

// Run builds the result set of one exam from a raw grading response.
// A malformed response is returned unchanged; per-copy problems are listed in
// the result set's Errors and do not fail the run.
func (e *Engine) Run(examID string, data []byte, subs []model.Submission, cfg model.ScoringConfig) (model.ExamResultSet, error) {
	raw, err := ParseResponse(data)
	if err != nil {
		return model.ExamResultSet{}, err
	}
	return e.Build(examID, raw, subs, cfg)
}

// Build is Run for an already parsed response.
func (e *Engine) Build(examID string, raw model.RawGradingResponse, subs []model.Submission, cfg model.ScoringConfig) (model.ExamResultSet, error) {
	normalized, copyErrs := Normalize(raw, subs, cfg)

	copies := make([]model.GradedCopy, 0, len(normalized))
	for _, nc := range normalized {
		copies = append(copies, Score(nc, cfg))
	}

	summary, err := e.agg.Summarize(copies, len(subs))
	if err != nil {
		return model.ExamResultSet{}, err
	}

	set := model.ExamResultSet{
		ExamID:      examID,
		GeneratedAt: e.now().UTC().Format(time.RFC3339Nano),
		Summary:     summary,
		Copies:      copies,
	}
	for _, ce := range copyErrs {
		set.Errors = append(set.Errors, model.CopyIssue{Key: ce.Key, Message: ce.Error()})
	}
	return set, nil
}
