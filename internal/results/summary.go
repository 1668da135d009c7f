package results

import (
	"fmt"
	"math"
	"sort"

	"github.com/examdesk/gradebook/internal/model"
)

// DefaultBands is the excellent/pass/fail scheme used when none is configured.
var DefaultBands = []model.Band{
	{Label: "excellent", MinPercent: 80},
	{Label: "pass", MinPercent: 50},
	{Label: "fail", MinPercent: 0},
}

// Aggregator reduces graded copies into class-wide statistics.
type Aggregator struct {
	bands []model.Band
}

// NewAggregator validates a band scheme. Bands must be listed by strictly
// descending threshold, carry unique non-empty labels, and end with a 0 catch-all.
func NewAggregator(bands []model.Band) (*Aggregator, error) {
	if len(bands) == 0 {
		return nil, &InconsistentBandConfigurationError{Reason: "no bands"}
	}
	seen := make(map[string]bool, len(bands))
	for i, b := range bands {
		if b.Label == "" {
			return nil, &InconsistentBandConfigurationError{Reason: fmt.Sprintf("band %d has no label", i)}
		}
		if seen[b.Label] {
			return nil, &InconsistentBandConfigurationError{Reason: fmt.Sprintf("duplicate band %q", b.Label)}
		}
		seen[b.Label] = true
		if math.IsNaN(b.MinPercent) || b.MinPercent < 0 {
			return nil, &InconsistentBandConfigurationError{Reason: fmt.Sprintf("band %q has a negative threshold", b.Label)}
		}
		if i > 0 && b.MinPercent >= bands[i-1].MinPercent {
			return nil, &InconsistentBandConfigurationError{Reason: fmt.Sprintf("band %q is not below %q", b.Label, bands[i-1].Label)}
		}
	}
	if last := bands[len(bands)-1]; last.MinPercent != 0 {
		return nil, &InconsistentBandConfigurationError{Reason: fmt.Sprintf("lowest band %q must start at 0", last.Label)}
	}

	return &Aggregator{bands: append([]model.Band(nil), bands...)}, nil
}

// Bands returns a copy of the aggregator's band scheme.
func (a *Aggregator) Bands() []model.Band {
	return append([]model.Band(nil), a.bands...)
}

// Band returns the label of the first band whose threshold pct meets.
func (a *Aggregator) Band(pct float64) (string, error) {
	for _, b := range a.bands {
		if pct >= b.MinPercent {
			return b.Label, nil
		}
	}
	return "", fmt.Errorf("%w: %v", ErrUnbandedPercentage, pct)
}

// Summarize computes the statistics of one exam. totalCopies is the number of
// submissions; it is raised to len(copies) when smaller.
//
// The median is the element at index n/2 of the ascending percentages, which
// is the upper of the two middle elements for an even count.
func (a *Aggregator) Summarize(copies []model.GradedCopy, totalCopies int) (model.ExamResultSummary, error) {
	s := model.ExamResultSummary{
		Total:        max(totalCopies, len(copies)),
		Graded:       len(copies),
		Distribution: a.emptyDistribution(),
	}
	if len(copies) == 0 {
		return s, nil
	}

	pcts := make([]float64, len(copies))
	var sum float64
	for i, c := range copies {
		pcts[i] = c.Percentage
		sum += c.Percentage

		label, err := a.Band(c.Percentage)
		if err != nil {
			return s, fmt.Errorf("copy %q: %w", c.ID, err)
		}
		for j := range s.Distribution {
			if s.Distribution[j].Label == label {
				s.Distribution[j].Count++
				break
			}
		}
	}
	sort.Float64s(pcts)

	s.Mean = round(sum/float64(len(pcts)), 2)
	s.Min = pcts[0]
	s.Max = pcts[len(pcts)-1]
	s.Median = pcts[len(pcts)/2]
	return s, nil
}

func (a *Aggregator) emptyDistribution() model.Distribution {
	d := make(model.Distribution, len(a.bands))
	for i, b := range a.bands {
		d[i] = model.BandCount{Label: b.Label}
	}
	return d
}
