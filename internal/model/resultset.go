package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Band is a percentage bucket used for distribution reporting.
type Band struct {
	Label      string  `json:"label" toml:"label" mapstructure:"label"`
	MinPercent float64 `json:"min" toml:"min" mapstructure:"min"`
}

// BandCount is the number of copies that fell into a band.
type BandCount struct {
	Label string
	Count int
}

// Distribution holds band counts in band order.
// It is encoded as a JSON object whose keys keep that order.
type Distribution []BandCount

// Count returns the count for label, or 0 when the band is unknown.
func (d Distribution) Count(label string) int {
	for _, bc := range d {
		if bc.Label == label {
			return bc.Count
		}
	}
	return 0
}

// MarshalJSON encodes the distribution as an ordered JSON object.
func (d Distribution) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, bc := range d {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(bc.Label)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		fmt.Fprintf(&buf, ":%d", bc.Count)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, preserving key order.
func (d *Distribution) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("distribution: expected object, got %v", tok)
	}
	out := Distribution{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		label, ok := tok.(string)
		if !ok {
			return fmt.Errorf("distribution: expected key, got %v", tok)
		}
		var count int
		if err := dec.Decode(&count); err != nil {
			return fmt.Errorf("distribution %q: %w", label, err)
		}
		out = append(out, BandCount{Label: label, Count: count})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*d = out
	return nil
}

// ExamResultSummary aggregates one exam's graded copies.
type ExamResultSummary struct {
	Total        int          `json:"total"`
	Graded       int          `json:"graded"`
	Mean         float64      `json:"moyenne"`
	Min          float64      `json:"min"`
	Max          float64      `json:"max"`
	Median       float64      `json:"median"`
	Distribution Distribution `json:"distribution"`
}

// CopyIssue is a non-fatal per-copy problem reported alongside results.
type CopyIssue struct {
	Key     string `json:"key"`
	Message string `json:"message"`
}

// ExamResultSet is the unit cached per exam and exported.
type ExamResultSet struct {
	ExamID      string            `json:"examId"`
	GeneratedAt string            `json:"generatedAt"`
	Summary     ExamResultSummary `json:"summary"`
	Copies      []GradedCopy      `json:"copies"`
	Errors      []CopyIssue       `json:"errors,omitempty"`
}

// GeneratedTime parses GeneratedAt, returning the zero time when it is invalid.
func (s ExamResultSet) GeneratedTime() time.Time {
	t, err := time.Parse(time.RFC3339Nano, s.GeneratedAt)
	if err != nil {
		return time.Time{}
	}
	return t
}

// ExamRollupInput is one exam's contribution to the cross-exam rollup.
type ExamRollupInput struct {
	ExamID      string
	Title       string
	Enrolled    int
	GeneratedAt time.Time
	// Summary is nil for exams without stored results.
	Summary *ExamResultSummary
}

// BandShare is a merged band count with its share of all graded copies.
type BandShare struct {
	Label   string  `json:"label"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// RecentEvaluation is an entry of the recent evaluations list.
type RecentEvaluation struct {
	ExamID      string    `json:"examId"`
	Title       string    `json:"title"`
	GeneratedAt time.Time `json:"generatedAt"`
	Graded      int       `json:"graded"`
	Mean        float64   `json:"moyenne"`
}

// CrossExamAggregate folds several exam summaries into institution-wide totals.
type CrossExamAggregate struct {
	TotalExams       int                `json:"totalExams"`
	ExamsWithResults int                `json:"examsWithResults"`
	TotalEnrolled    int                `json:"totalEnrolled"`
	TotalGraded      int                `json:"totalGraded"`
	OverallMean      float64            `json:"moyenne"`
	Distribution     []BandShare        `json:"distribution"`
	Recent           []RecentEvaluation `json:"recent"`
}
