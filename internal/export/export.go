// Package export writes exam result sets as JSON, CSV or XLSX documents.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/examdesk/gradebook/internal/i18n"
	"github.com/examdesk/gradebook/internal/model"
)

// Format is an export document format.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat validates a format name. An empty name selects JSON.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatCSV, FormatXLSX:
		return f, nil
	}
	return "", fmt.Errorf("unknown export format %q (want json, csv or xlsx)", s)
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "application/json"
}

// FileName returns the download file name for an exam's export.
func (f Format) FileName(examID string) string {
	return "resultats_" + examID + "." + string(f)
}

// Bander maps a copy percentage to its band label.
type Bander interface {
	Band(pct float64) (string, error)
}

// Write encodes set in the given format. Labels are localized from ctx.
func Write(ctx context.Context, w io.Writer, f Format, set model.ExamResultSet, bands Bander) error {
	switch f {
	case FormatJSON:
		return JSON(w, set)
	case FormatCSV:
		return CSV(ctx, w, set)
	case FormatXLSX:
		return XLSX(ctx, w, set, bands)
	}
	return fmt.Errorf("unknown export format %q", f)
}

// JSON writes the result set as indented JSON with a trailing newline.
func JSON(w io.Writer, set model.ExamResultSet) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(set)
}

// CSV writes one row per graded question. Copies without questions get a
// single row with empty question columns.
func CSV(ctx context.Context, w io.Writer, set model.ExamResultSet) error {
	cw := csv.NewWriter(w)
	header := []string{
		i18n.T(ctx, "CopyID"), i18n.T(ctx, "Student"),
		i18n.T(ctx, "Score"), i18n.T(ctx, "MaxScore"), i18n.T(ctx, "Percentage"),
		i18n.T(ctx, "Question"), i18n.T(ctx, "Type"), i18n.T(ctx, "Answer"),
		i18n.T(ctx, "Points"), i18n.T(ctx, "MaxPoints"), i18n.T(ctx, "Status"), i18n.T(ctx, "Comment"),
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, c := range set.Copies {
		prefix := []string{c.ID, c.StudentLabel, num(c.TotalScore), num(c.MaxScore), num(c.Percentage)}
		if len(c.Questions) == 0 {
			if err := cw.Write(append(prefix, "", "", "", "", "", "", "")); err != nil {
				return err
			}
			continue
		}
		for _, q := range c.Questions {
			row := append(append([]string(nil), prefix...),
				strconv.Itoa(q.Number),
				string(q.Type),
				q.ExtractedAnswer,
				num(q.AwardedPoints),
				num(q.MaxPoints),
				i18n.TOr(ctx, "QStatus_"+string(q.Status), string(q.Status)),
				q.Comment,
			)
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

const (
	sheetSummary = "Summary"
	sheetCopies  = "Copies"
	sheetDetails = "Details"
)

// XLSX writes a workbook with Summary, Copies and Details sheets.
func XLSX(ctx context.Context, w io.Writer, set model.ExamResultSet, bands Bander) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	for _, name := range []string{sheetCopies, sheetDetails} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("failed to create sheet: %w", err)
		}
	}

	s := set.Summary
	summary := [][]any{
		{i18n.T(ctx, "Exam"), set.ExamID},
		{i18n.T(ctx, "Generated"), set.GeneratedAt},
		{i18n.T(ctx, "Total"), s.Total},
		{i18n.T(ctx, "Graded"), s.Graded},
		{i18n.T(ctx, "Mean"), s.Mean},
		{i18n.T(ctx, "Median"), s.Median},
		{i18n.T(ctx, "Min"), s.Min},
		{i18n.T(ctx, "Max"), s.Max},
		{},
		{i18n.T(ctx, "Band"), i18n.T(ctx, "Count")},
	}
	for _, bc := range s.Distribution {
		summary = append(summary, []any{i18n.BandLabel(ctx, bc.Label), bc.Count})
	}
	if err := writeRows(f, sheetSummary, summary); err != nil {
		return err
	}

	copies := [][]any{{
		i18n.T(ctx, "CopyID"), i18n.T(ctx, "Student"), i18n.T(ctx, "Score"),
		i18n.T(ctx, "MaxScore"), i18n.T(ctx, "Percentage"), i18n.T(ctx, "Band"),
	}}
	details := [][]any{{
		i18n.T(ctx, "CopyID"), i18n.T(ctx, "Student"), i18n.T(ctx, "Question"), i18n.T(ctx, "Type"),
		i18n.T(ctx, "Answer"), i18n.T(ctx, "Points"), i18n.T(ctx, "MaxPoints"),
		i18n.T(ctx, "Status"), i18n.T(ctx, "Comment"),
	}}
	for _, c := range set.Copies {
		band, err := bands.Band(c.Percentage)
		if err != nil {
			return fmt.Errorf("copy %s: %w", c.ID, err)
		}
		copies = append(copies, []any{c.ID, c.StudentLabel, c.TotalScore, c.MaxScore, c.Percentage, i18n.BandLabel(ctx, band)})
		for _, q := range c.Questions {
			details = append(details, []any{
				c.ID, c.StudentLabel, q.Number, string(q.Type), q.ExtractedAnswer,
				q.AwardedPoints, q.MaxPoints,
				i18n.TOr(ctx, "QStatus_"+string(q.Status), string(q.Status)), q.Comment,
			})
		}
	}
	if err := writeRows(f, sheetCopies, copies); err != nil {
		return err
	}
	if err := writeRows(f, sheetDetails, details); err != nil {
		return err
	}

	f.SetActiveSheet(0)
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write XLSX file: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
