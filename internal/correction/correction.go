// Package correction runs grading providers against an exam's submissions and
// caches the aggregated result set.
package correction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/examdesk/gradebook/internal/model"
	"github.com/examdesk/gradebook/internal/results"
)

var (
	ErrExamNotFound      = errors.New("exam not found")
	ErrNoSubmissions     = errors.New("exam has no submissions")
	ErrNoResults         = errors.New("exam has no grading results")
	ErrGradingInProgress = errors.New("grading already in progress for this exam")
	ErrUnknownSource     = errors.New("unknown grading source")
)

// SourceSynthetic names the fallback provider in logs and metrics.
const SourceSynthetic = "synthetic"

// Provider produces a raw grading response document for an exam.
type Provider interface {
	Grade(ctx context.Context, exam model.Exam, subs []model.Submission) ([]byte, error)
}

// StaticProvider replays a stored raw grading response.
type StaticProvider []byte

func (p StaticProvider) Grade(context.Context, model.Exam, []model.Submission) ([]byte, error) {
	return p, nil
}

// Cache stores the latest result set of each exam.
type Cache interface {
	GetResultSet(examID string) (*model.ExamResultSet, error)
	PutResultSet(set model.ExamResultSet) error
}

// Exams gives access to exams and their submissions.
type Exams interface {
	GetExam(id string) (*model.Exam, error)
	ListSubmissions(examID string) ([]model.Submission, error)
	UpdateExamStatus(id string, status model.ExamStatus) error
	RollupInputs() ([]model.ExamRollupInput, error)
}

// Options configures a Service.
type Options struct {
	// Providers maps source names to grading providers.
	Providers map[string]Provider
	// DefaultSource is used when Grade is called with an empty source.
	DefaultSource string
	// Fallback, when set, grades the exam if the selected provider fails.
	Fallback Provider
	// RecentLimit caps the recent evaluations of Analytics.
	RecentLimit int
	Metrics     *Metrics
}

// Service orchestrates grading runs and the exam result lifecycle.
type Service struct {
	exams  Exams
	cache  Cache
	engine *results.Engine
	opts   Options

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewService(exams Exams, cache Cache, engine *results.Engine, opts Options) *Service {
	if opts.RecentLimit <= 0 {
		opts.RecentLimit = results.DefaultRecentLimit
	}
	return &Service{
		exams:    exams,
		cache:    cache,
		engine:   engine,
		opts:     opts,
		inFlight: make(map[string]struct{}),
	}
}

// Sources lists the configured provider names.
func (s *Service) Sources() []string {
	names := make([]string, 0, len(s.opts.Providers))
	for name := range s.opts.Providers {
		names = append(names, name)
	}
	return names
}

// Grade runs the named provider on the exam's submissions, caches the result
// set and moves the exam to the corrected status. While a run is in flight,
// further Grade, Validate and Close calls for the same exam fail with
// ErrGradingInProgress.
func (s *Service) Grade(ctx context.Context, examID, source string) (model.ExamResultSet, error) {
	if source == "" {
		source = s.opts.DefaultSource
	}
	provider, ok := s.opts.Providers[source]
	if !ok {
		return model.ExamResultSet{}, fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}

	if !s.acquire(examID) {
		return model.ExamResultSet{}, ErrGradingInProgress
	}
	defer s.release(examID)

	exam, err := s.loadGradable(examID)
	if err != nil {
		return model.ExamResultSet{}, err
	}
	subs, err := s.exams.ListSubmissions(examID)
	if err != nil {
		return model.ExamResultSet{}, fmt.Errorf("list submissions: %w", err)
	}
	if len(subs) == 0 {
		return model.ExamResultSet{}, ErrNoSubmissions
	}

	start := time.Now()
	outcome := OutcomeOK
	defer func() {
		if s.opts.Metrics != nil {
			s.opts.Metrics.observeRun(source, outcome, time.Since(start).Seconds())
		}
	}()

	slog.Info("grading started", "exam_id", examID, "source", source, "copies", len(subs))
	data, err := provider.Grade(ctx, *exam, subs)
	if err != nil {
		if s.opts.Fallback == nil || ctx.Err() != nil {
			outcome = OutcomeFailed
			return model.ExamResultSet{}, fmt.Errorf("grade with %s: %w", source, err)
		}
		slog.Warn("grading provider failed, using synthetic results", "exam_id", examID, "source", source, "error", err)
		outcome = OutcomeFallback
		data, err = s.opts.Fallback.Grade(ctx, *exam, subs)
		if err != nil {
			outcome = OutcomeFailed
			return model.ExamResultSet{}, fmt.Errorf("grade with %s: %w", SourceSynthetic, err)
		}
	}

	set, err := s.engine.Run(examID, data, subs, exam.Scoring)
	if err != nil {
		var mErr *results.MalformedResponseError
		if errors.As(err, &mErr) {
			outcome = OutcomeMalformed
		} else {
			outcome = OutcomeFailed
		}
		return model.ExamResultSet{}, err
	}

	// The store may be shared with another process that validated the exam
	// while the provider was running.
	if _, err := s.loadGradable(examID); err != nil {
		outcome = OutcomeFailed
		return model.ExamResultSet{}, err
	}
	if err := s.cache.PutResultSet(set); err != nil {
		outcome = OutcomeFailed
		return model.ExamResultSet{}, fmt.Errorf("cache result set: %w", err)
	}
	if err := s.exams.UpdateExamStatus(examID, model.StatusCorrected); err != nil {
		outcome = OutcomeFailed
		return model.ExamResultSet{}, fmt.Errorf("update exam status: %w", err)
	}

	if s.opts.Metrics != nil {
		s.opts.Metrics.copies.Add(float64(len(set.Copies)))
		s.opts.Metrics.copyErrors.Add(float64(len(set.Errors)))
	}
	slog.Info("grading finished",
		"exam_id", examID,
		"source", source,
		"copies", len(set.Copies),
		"errors", len(set.Errors),
		"mean", set.Summary.Mean,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	for _, issue := range set.Errors {
		slog.Warn("copy not graded", "exam_id", examID, "key", issue.Key, "error", issue.Message)
	}
	return set, nil
}

// Results returns the cached result set of an exam.
func (s *Service) Results(examID string) (model.ExamResultSet, error) {
	set, err := s.cache.GetResultSet(examID)
	if err != nil {
		return model.ExamResultSet{}, fmt.Errorf("load result set: %w", err)
	}
	if set == nil {
		return model.ExamResultSet{}, ErrNoResults
	}
	return *set, nil
}

// Validate marks a corrected exam as confirmed by the instructor.
func (s *Service) Validate(examID string) error {
	if !s.acquire(examID) {
		return ErrGradingInProgress
	}
	defer s.release(examID)

	if _, err := s.Results(examID); err != nil {
		return err
	}
	return s.transition(examID, model.StatusValidated)
}

// Close marks a validated exam as finished.
func (s *Service) Close(examID string) error {
	if !s.acquire(examID) {
		return ErrGradingInProgress
	}
	defer s.release(examID)

	return s.transition(examID, model.StatusClosed)
}

// Analytics folds the cached summaries of all exams into a cross-exam rollup.
func (s *Service) Analytics() (model.CrossExamAggregate, error) {
	inputs, err := s.exams.RollupInputs()
	if err != nil {
		return model.CrossExamAggregate{}, fmt.Errorf("load rollup inputs: %w", err)
	}
	return s.engine.Aggregator().Rollup(inputs, s.opts.RecentLimit), nil
}

func (s *Service) transition(examID string, next model.ExamStatus) error {
	exam, err := s.loadExam(examID)
	if err != nil {
		return err
	}
	if !exam.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, exam.Status, next)
	}
	if err := s.exams.UpdateExamStatus(examID, next); err != nil {
		return fmt.Errorf("update exam status: %w", err)
	}
	slog.Info("exam status changed", "exam_id", examID, "from", exam.Status, "to", next)
	return nil
}

func (s *Service) loadGradable(examID string) (*model.Exam, error) {
	exam, err := s.loadExam(examID)
	if err != nil {
		return nil, err
	}
	if !exam.Status.CanTransition(model.StatusCorrected) {
		return nil, fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, exam.Status, model.StatusCorrected)
	}
	return exam, nil
}

func (s *Service) loadExam(examID string) (*model.Exam, error) {
	exam, err := s.exams.GetExam(examID)
	if err != nil {
		return nil, fmt.Errorf("load exam: %w", err)
	}
	if exam == nil {
		return nil, ErrExamNotFound
	}
	return exam, nil
}

func (s *Service) acquire(examID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[examID]; busy {
		return false
	}
	s.inFlight[examID] = struct{}{}
	return true
}

func (s *Service) release(examID string) {
	s.mu.Lock()
	delete(s.inFlight, examID)
	s.mu.Unlock()
}
