// Package config loads band schemes for the summary aggregator.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/examdesk/gradebook/internal/model"
	"github.com/examdesk/gradebook/internal/results"
)

// BandsFile is the TOML layout of a band scheme file:
//
//	[[bands]]
//	label = "excellent"
//	min = 80
type BandsFile struct {
	Bands []model.Band `toml:"bands"`
}

// ParseBands parses a "label:min,label:min" band list, highest threshold first.
func ParseBands(s string) ([]model.Band, error) {
	var bands []model.Band
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		label, minStr, ok := strings.Cut(item, ":")
		if !ok {
			return nil, fmt.Errorf("band %q: expected label:min", item)
		}
		minPct, err := strconv.ParseFloat(strings.TrimSpace(minStr), 64)
		if err != nil {
			return nil, fmt.Errorf("band %q: %w", item, err)
		}
		bands = append(bands, model.Band{Label: strings.TrimSpace(label), MinPercent: minPct})
	}
	if len(bands) == 0 {
		return nil, fmt.Errorf("empty band list")
	}
	return bands, nil
}

// LoadBandsFile reads a band scheme from a TOML file.
func LoadBandsFile(path string) ([]model.Band, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bands file: %w", err)
	}
	var f BandsFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse bands file %s: %w", path, err)
	}
	if len(f.Bands) == 0 {
		return nil, fmt.Errorf("bands file %s defines no bands", path)
	}
	return f.Bands, nil
}

// Bands resolves the band scheme: a file wins over an inline list, and the
// default scheme is used when neither is set. The result is not validated;
// results.NewAggregator does that.
func Bands(inline, file string) ([]model.Band, error) {
	switch {
	case file != "":
		return LoadBandsFile(file)
	case inline != "":
		return ParseBands(inline)
	}
	return append([]model.Band(nil), results.DefaultBands...), nil
}
