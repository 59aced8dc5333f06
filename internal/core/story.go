package core

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	ierrors "clinical-intake/internal/errors"
	"clinical-intake/internal/intake"
	"clinical-intake/internal/llm"
	"clinical-intake/internal/log"
	"clinical-intake/internal/metrics"
	"clinical-intake/pkg"
)

// StoryService turns a grouped intake record into a narrative using the LLM.
// It holds no per-request state, so a caller may retry Generate with the same
// request as often as it likes.
type StoryService struct {
	LLM     llm.Client
	Timeout time.Duration
	Metrics *metrics.Metrics
	Logger  *log.Logger

	now func() time.Time
}

// NewStoryService constructs a StoryService. A zero timeout means the
// caller's context alone bounds generation.
func NewStoryService(client llm.Client, timeout time.Duration, m *metrics.Metrics, logger *log.Logger) *StoryService {
	if logger == nil {
		logger = log.DefaultLogger()
	}
	return &StoryService{
		LLM:     client,
		Timeout: timeout,
		Metrics: m,
		Logger:  logger,
		now:     time.Now,
	}
}

// BuildPrompt renders the user prompt for a record. It fails only if the
// record cannot be encoded.
func BuildPrompt(department string, info *pkg.BasicInfo, structured intake.GroupedRecord) (string, error) {
	data, err := json.MarshalIndent(structured, "", "  ")
	if err != nil {
		return "", err
	}
	department = intake.NormalizeDepartment(department)
	return fmt.Sprintf(promptTemplate(department),
		DisplayDepartment(department),
		DepartmentFocus(department),
		biodata(info),
		department,
		data,
	), nil
}

// Generate writes a narrative for the request. The narrative is returned
// whole or not at all: a timed out or cancelled call yields an error and no
// story.
func (s *StoryService) Generate(ctx context.Context, req pkg.StoryRequest) (*pkg.Story, error) {
	department := intake.NormalizeDepartment(req.Department)
	logger := s.Logger.With("department", department)

	structured := req.Structured
	if structured.IsEmpty() && len(req.Answers) > 0 {
		structured = intake.GroupedRecord{intake.GeneralBucket: req.Answers}
	}
	if structured.IsEmpty() {
		s.Metrics.Generation(department, metrics.OutcomeEmpty, 0)
		return nil, ierrors.New(ierrors.ErrCodeRecordEmpty, "no patient data available").
			WithSuggestion("Complete the assessment before generating a story")
	}

	prompt, err := BuildPrompt(department, req.BasicInfo, structured)
	if err != nil {
		return nil, ierrors.Wrap(ierrors.ErrCodeGenerationFailed, "encode record", err)
	}

	callCtx := ctx
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	start := s.now()
	text, err := s.LLM.Complete(callCtx, SystemPrompt, prompt)
	took := s.now().Sub(start)
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(callCtx.Err(), context.DeadlineExceeded) {
			s.Metrics.Generation(department, metrics.OutcomeTimeout, took)
			logger.Warn("narrative generation timed out", "took", took)
			return nil, ierrors.Wrap(ierrors.ErrCodeGenerationTimedOut, "narrative generation timed out", err).
				WithSuggestion("Retry; the record is kept")
		}
		s.Metrics.Generation(department, metrics.OutcomeFailed, took)
		logger.WithError(err).Error("narrative generation failed")
		return nil, ierrors.Wrap(ierrors.ErrCodeGenerationFailed, "narrative generation failed", err)
	}
	if strings.TrimSpace(text) == "" {
		s.Metrics.Generation(department, metrics.OutcomeFailed, took)
		return nil, ierrors.New(ierrors.ErrCodeGenerationFailed, "model returned an empty narrative")
	}

	s.Metrics.Generation(department, metrics.OutcomeSuccess, took)
	logger.Info("narrative generated", "took", took, "complaints", len(structured))
	return &pkg.Story{
		Story:       text,
		Department:  department,
		GeneratedAt: s.now().UTC(),
		Model:       s.LLM.Model(),
	}, nil
}
