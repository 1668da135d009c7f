package results

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/examdesk/gradebook/internal/model"
)

// AnswerPlaceholder stands in for answers the grading service did not return.
const AnswerPlaceholder = "Extracted by OCR"

// NormalizedCopy is a raw copy resolved to its submission, before scoring.
type NormalizedCopy struct {
	Key        string
	ID         string
	Label      string
	Submission *model.Submission
	// ServerTotal is the provider-reported total, nil when absent.
	ServerTotal *float64
	Questions   []model.QuestionResult
	// DefaultMax is set when every question's max points was derived from the
	// exam total rather than given by the provider or a weight.
	DefaultMax bool
}

// ParseResponse decodes a grading response document.
// It fails only when the document, or its "resultat" member, is not a JSON object.
func ParseResponse(data []byte) (model.RawGradingResponse, error) {
	var resp model.RawGradingResponse
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return resp, &MalformedResponseError{Reason: "response is not a JSON object"}
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &top); err != nil {
		return resp, &MalformedResponseError{Reason: "decode response", Err: err}
	}

	resp.Resultat = map[string]json.RawMessage{}
	raw, ok := top["resultat"]
	if !ok || isNull(raw) {
		return resp, nil
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return resp, &MalformedResponseError{Reason: `"resultat" is not a JSON object`}
	}
	if err := json.Unmarshal(raw, &resp.Resultat); err != nil {
		return resp, &MalformedResponseError{Reason: `decode "resultat"`, Err: err}
	}
	return resp, nil
}

// Normalize resolves every raw copy against the exam's submissions.
// Entries that cannot be parsed are left out and reported in the error list;
// Normalize never fails as a whole.
func Normalize(raw model.RawGradingResponse, subs []model.Submission, cfg model.ScoringConfig) ([]NormalizedCopy, []*UnresolvableCopyError) {
	keys := orderedKeys(raw.Resultat)

	var copies []NormalizedCopy
	var errs []*UnresolvableCopyError
	for pos, key := range keys {
		nc, err := normalizeCopy(key, pos, raw.Resultat[key], subs, cfg)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		copies = append(copies, nc)
	}
	return copies, errs
}

func normalizeCopy(key string, pos int, data json.RawMessage, subs []model.Submission, cfg model.ScoringConfig) (NormalizedCopy, *UnresolvableCopyError) {
	nc := NormalizedCopy{Key: key}
	if isNull(data) {
		return nc, &UnresolvableCopyError{Key: key, Reason: "empty entry"}
	}

	var rc model.RawCopy
	if err := json.Unmarshal(data, &rc); err != nil {
		return nc, &UnresolvableCopyError{Key: key, Reason: "decode entry", Err: err}
	}

	total, ok, err := parseNumber(rc.NoteTotale)
	if err != nil {
		return nc, &UnresolvableCopyError{Key: key, Reason: "note_totale", Err: err}
	}
	if ok {
		nc.ServerTotal = &total
	}

	defaultMax := math.Round(cfg.Total() / float64(max(len(rc.Questions), 1)))
	if defaultMax < 1 {
		defaultMax = 1
	}

	nc.DefaultMax = len(rc.Questions) > 0
	for i, rq := range rc.Questions {
		q, defaulted, err := normalizeQuestion(i, rq, defaultMax, cfg)
		if err != nil {
			return nc, &UnresolvableCopyError{Key: key, Reason: fmt.Sprintf("question %d", i+1), Err: err}
		}
		nc.DefaultMax = nc.DefaultMax && defaulted
		nc.Questions = append(nc.Questions, q)
	}

	nc.Submission = resolveSubmission(key, pos, rc.NomFichier, subs)
	nc.ID = firstNonEmpty(rc.DBID, submissionField(nc.Submission, func(s *model.Submission) string { return s.ID }), key)
	nc.Label = firstNonEmpty(submissionField(nc.Submission, func(s *model.Submission) string { return s.DisplayName }), rc.NomFichier, key)
	return nc, nil
}

// normalizeQuestion also reports whether the question fell back to defaultMax.
func normalizeQuestion(i int, rq model.RawQuestion, defaultMax float64, cfg model.ScoringConfig) (model.QuestionResult, bool, error) {
	q := model.QuestionResult{
		Number:  i + 1,
		Type:    model.ParseQuestionType(rq.Type),
		Comment: rq.Commentaire,
	}

	num, ok, err := parseNumber(rq.Num)
	if err != nil {
		return q, false, fmt.Errorf("num: %w", err)
	}
	if ok && num >= 1 && num == math.Trunc(num) {
		q.Number = int(num)
	}

	points, ok, err := parseNumber(rq.Point)
	if err != nil {
		return q, false, fmt.Errorf("point: %w", err)
	}
	if !ok {
		return q, false, fmt.Errorf("point: missing")
	}
	q.AwardedPoints = points

	explicitMax, ok, err := parseNumber(rq.MaxPoints)
	if err != nil {
		return q, false, fmt.Errorf("max_points: %w", err)
	}
	defaulted := false
	switch {
	case ok && explicitMax > 0:
		q.MaxPoints = explicitMax
	case cfg.Weights[q.Number] > 0:
		q.MaxPoints = cfg.Weights[q.Number]
	default:
		q.MaxPoints = defaultMax
		defaulted = true
	}

	q.ExtractedAnswer = AnswerPlaceholder
	if rq.Reponse != nil && strings.TrimSpace(*rq.Reponse) != "" {
		q.ExtractedAnswer = *rq.Reponse
	}
	return q, defaulted, nil
}

// resolveSubmission applies, in order: positional index, embedded file name.
func resolveSubmission(key string, pos int, fileName string, subs []model.Submission) *model.Submission {
	idx := pos
	if n, ok := keyNumber(key); ok {
		idx = n - 1
	}
	if idx >= 0 && idx < len(subs) {
		return &subs[idx]
	}

	if fileName != "" {
		for i := range subs {
			if strings.EqualFold(subs[i].DisplayName, fileName) ||
				strings.EqualFold(path.Base(subs[i].StorageLocation), fileName) {
				return &subs[i]
			}
		}
	}
	return nil
}

// orderedKeys sorts copy keys by their trailing number, then lexically.
// Keys without a number come last.
func orderedKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ni, iok := keyNumber(keys[i])
		nj, jok := keyNumber(keys[j])
		switch {
		case iok && jok && ni != nj:
			return ni < nj
		case iok != jok:
			return iok
		}
		return keys[i] < keys[j]
	})
	return keys
}

// keyNumber extracts the trailing integer of keys like "copie_3".
func keyNumber(key string) (int, bool) {
	end := len(key)
	start := end
	for start > 0 && key[start-1] >= '0' && key[start-1] <= '9' {
		start--
	}
	if start == end {
		return 0, false
	}
	n, err := strconv.Atoi(key[start:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

// parseNumber reads a JSON number or numeric string. Absent and null values report ok=false.
func parseNumber(raw json.RawMessage) (float64, bool, error) {
	if isNull(raw) {
		return 0, false, nil
	}
	trimmed := bytes.TrimSpace(raw)

	var f float64
	if err := json.Unmarshal(trimmed, &f); err == nil {
		return f, true, nil
	}

	var s string
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return 0, false, fmt.Errorf("not a number: %s", trimmed)
	}
	s = strings.Replace(strings.TrimSpace(s), ",", ".", 1)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false, fmt.Errorf("not a number: %q", s)
	}
	return f, true, nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func submissionField(s *model.Submission, get func(*model.Submission) string) string {
	if s == nil {
		return ""
	}
	return get(s)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
