package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/examdesk/gradebook/internal/model"
)

//go:embed templates/*.txt
var templateFS embed.FS

var (
	studentCopyRegex        = regexp.MustCompile(`(?i)</?\s*student-copy\b[^>]*>`)
	answerKeyRegex          = regexp.MustCompile(`(?i)</?\s*answer-key\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

// maxCopyRunes caps the student text sent to the model.
const maxCopyRunes = 20000

// PromptVariant represents a grading prompt variant.
type PromptVariant string

const (
	// PromptStrict grants partial credit only for clearly justified work.
	PromptStrict PromptVariant = "strict"
	// PromptStandard is the default grading variant.
	PromptStandard PromptVariant = "standard"
	// PromptLenient rewards correct reasoning even with slips.
	PromptLenient PromptVariant = "lenient"
)

var validVariants = map[PromptVariant]bool{
	PromptStrict:   true,
	PromptStandard: true,
	PromptLenient:  true,
}

var (
	loadOnce       sync.Once
	loadErr        error
	gradeTemplates map[PromptVariant]*template.Template
)

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	return validVariants[PromptVariant(v)]
}

// GradeData holds template data for copy grading prompts.
type GradeData struct {
	ExamTitle string
	Subject   string
	MaxPoints float64
	// Weights lists per-question max points, ordered by question number.
	Weights   []QuestionWeight
	AnswerKey string
	Copy      string
}

// QuestionWeight is the max points of one question.
type QuestionWeight struct {
	Number    int
	MaxPoints float64
}

// Load loads the embedded prompt templates.
func Load() error {
	return LoadFS(templateFS)
}

// LoadFS loads prompt templates from fsys.
// It uses sync.Once to ensure templates are loaded only once.
func LoadFS(fsys fs.FS) error {
	loadOnce.Do(func() {
		gradeTemplates = make(map[PromptVariant]*template.Template)

		for _, v := range []PromptVariant{PromptStrict, PromptStandard, PromptLenient} {
			gradeFile := "templates/grade_" + string(v) + ".txt"

			content, err := fs.ReadFile(fsys, gradeFile)
			if err != nil {
				loadErr = errors.New("failed to read prompt file " + gradeFile + ": " + err.Error())
				return
			}

			tmpl, err := template.New("grade").Parse(string(content))
			if err != nil {
				loadErr = errors.New("failed to parse prompt template " + gradeFile + ": " + err.Error())
				return
			}
			gradeTemplates[v] = tmpl
		}
	})
	return loadErr
}

// BuildGradePrompt builds the system prompt that grades one copy of exam.
func BuildGradePrompt(variant PromptVariant, exam model.Exam, copyText string) (string, error) {
	if gradeTemplates == nil {
		return "", errors.New("templates not initialized: call Load first")
	}
	tmpl, ok := gradeTemplates[variant]
	if !ok {
		if loadErr != nil {
			return "", fmt.Errorf("templates load failed: %w", loadErr)
		}
		return "", errors.New("invalid prompt variant: " + string(variant))
	}

	data := GradeData{
		ExamTitle: exam.Title,
		Subject:   exam.Subject,
		MaxPoints: exam.Scoring.Total(),
		Weights:   weights(exam.Scoring),
		AnswerKey: strings.TrimSpace(stripTags(exam.Reference)),
		Copy:      SanitizeCopy(copyText),
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func weights(cfg model.ScoringConfig) []QuestionWeight {
	var out []QuestionWeight
	for n, pts := range cfg.Weights {
		out = append(out, QuestionWeight{Number: n, MaxPoints: pts})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

func stripTags(s string) string {
	s = studentCopyRegex.ReplaceAllString(s, "")
	s = answerKeyRegex.ReplaceAllString(s, "")
	return systemInstructionsRegex.ReplaceAllString(s, "")
}

// SanitizeCopy removes prompt delimiter tags from a student's copy and caps
// its length.
func SanitizeCopy(text string) string {
	text = strings.TrimSpace(stripTags(text))

	if text == "" {
		return "[Empty copy]"
	}

	if utf8.RuneCountInString(text) > maxCopyRunes {
		runes := []rune(text)
		runes = runes[:maxCopyRunes]
		text = string(runes) + "\n\n[Copy truncated due to length]"
	}

	return text
}
