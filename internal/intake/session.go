package intake

import (
	"strings"
	"time"

	ierrors "clinical-intake/internal/errors"
)

// State is the lifecycle state of a Session.
type State string

const (
	NotStarted State = "not_started"
	InProgress State = "in_progress"
	Completed  State = "completed"
)

// Session walks one user through a compiled queue and accumulates answers.
// A Session is not safe for concurrent use; callers apply one action at a time.
type Session struct {
	ID         string            `json:"id"`
	Department string            `json:"department,omitempty"`
	Complaints []string          `json:"complaints"`
	Queue      Queue             `json:"queue,omitempty"`
	Cursor     int               `json:"cursor"`
	State      State             `json:"state"`
	Answers    map[string]Answer `json:"answers"`
	// Pending is the in-flight selection for the current question when it is
	// multi-choice. It is committed by Advance and dropped by Retreat.
	Pending   []string          `json:"pending,omitempty"`
	Raw       map[string]Answer `json:"raw,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// NewSession returns a session waiting for complaint selection.
func NewSession(id, department string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:         id,
		Department: department,
		Complaints: []string{},
		State:      NotStarted,
		Answers:    map[string]Answer{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (s *Session) touch() {
	s.UpdatedAt = time.Now().UTC()
}

func outOfRange(op string, st State) error {
	return ierrors.Newf(ierrors.ErrCodeOutOfRangeStep, "%s not allowed while %s", op, st)
}

// Select adds a complaint to the selection. Selecting a name twice is a no-op.
func (s *Session) Select(name string) error {
	if s.State != NotStarted {
		return outOfRange("select", s.State)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return ierrors.New(ierrors.ErrCodeInvalidQueue, "complaint name is blank")
	}
	for _, c := range s.Complaints {
		if c == name {
			return nil
		}
	}
	s.Complaints = append(s.Complaints, name)
	s.touch()
	return nil
}

// Deselect removes a complaint from the selection if present.
func (s *Session) Deselect(name string) error {
	if s.State != NotStarted {
		return outOfRange("deselect", s.State)
	}
	name = strings.TrimSpace(name)
	for i, c := range s.Complaints {
		if c == name {
			s.Complaints = append(s.Complaints[:i:i], s.Complaints[i+1:]...)
			s.touch()
			return nil
		}
	}
	return nil
}

// Begin compiles the current selection against catalog and starts the flow.
func (s *Session) Begin(catalog *Catalog) error {
	q, err := catalog.Compile(s.Complaints)
	if err != nil {
		return err
	}
	return s.Start(q)
}

// Start replaces the queue and positions the cursor on its first question.
// Answers recorded against a previous queue are discarded. An empty queue is
// rejected and leaves the session untouched.
func (s *Session) Start(q Queue) error {
	if len(q) == 0 {
		return ierrors.New(ierrors.ErrCodeInvalidQueue, "queue is empty").
			WithSuggestion("select at least one presenting complaint")
	}
	s.Queue = q
	s.Cursor = 0
	s.State = InProgress
	s.Answers = map[string]Answer{}
	s.Pending = nil
	s.seedPending()
	s.touch()
	return nil
}

// Current returns the question under the cursor.
func (s *Session) Current() (Question, bool) {
	if s.State != InProgress || s.Cursor < 0 || s.Cursor >= len(s.Queue) {
		return Question{}, false
	}
	return s.Queue[s.Cursor], true
}

// Default returns the value to show as selected for the current question: the
// in-flight set for multi-choice questions, otherwise the recorded answer.
func (s *Session) Default() (Answer, bool) {
	q, ok := s.Current()
	if !ok {
		return Answer{}, false
	}
	if q.IsMulti() {
		if len(s.Pending) == 0 {
			return Answer{}, false
		}
		return Multi(s.Pending...), true
	}
	a, ok := s.Answers[q.Key]
	return a, ok
}

// Answer records value for the current question. Single and free-text
// questions overwrite the previous answer; multi-choice questions toggle value
// in the in-flight set. Blank values are ignored.
func (s *Session) Answer(value string) error {
	q, ok := s.Current()
	if !ok {
		return outOfRange("answer", s.State)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if q.IsMulti() {
		s.Pending = toggle(s.Pending, value)
	} else {
		s.Answers[q.Key] = Single(value)
	}
	s.touch()
	return nil
}

func toggle(set []string, v string) []string {
	for i, x := range set {
		if x == v {
			return append(set[:i:i], set[i+1:]...)
		}
	}
	return append(set, v)
}

// Advance commits any in-flight multi-choice selection and moves to the next
// question. Advancing past the last question completes the session; advancing
// a completed session does nothing.
func (s *Session) Advance() error {
	switch s.State {
	case Completed:
		return nil
	case NotStarted:
		return outOfRange("advance", s.State)
	}
	if q, ok := s.Current(); ok && q.IsMulti() {
		if len(s.Pending) > 0 {
			s.Answers[q.Key] = Multi(s.Pending...)
		} else {
			delete(s.Answers, q.Key)
		}
	}
	s.Pending = nil
	s.Cursor++
	if s.Cursor >= len(s.Queue) {
		s.Cursor = len(s.Queue)
		s.State = Completed
	} else {
		s.seedPending()
	}
	s.touch()
	return nil
}

// Retreat moves back one question, dropping any uncommitted multi-choice
// selection. Retreating from the first question returns the session to
// complaint selection and discards the queue. Recorded answers are kept
// otherwise.
func (s *Session) Retreat() error {
	switch s.State {
	case NotStarted:
		return nil
	case Completed:
		s.State = InProgress
		s.Cursor = len(s.Queue)
	}
	s.Pending = nil
	if s.Cursor == 0 {
		s.Queue = nil
		s.Answers = map[string]Answer{}
		s.State = NotStarted
		s.touch()
		return nil
	}
	s.Cursor--
	s.seedPending()
	s.touch()
	return nil
}

func (s *Session) seedPending() {
	q, ok := s.Current()
	if !ok || !q.IsMulti() {
		return
	}
	if a, ok := s.Answers[q.Key]; ok {
		s.Pending = append([]string{}, a.Values...)
	}
}

// AnswerRaw records a free-form answer outside the structured flow. Raw
// answers are only used when the session never started a queue.
func (s *Session) AnswerRaw(key, value string) {
	key, value = strings.TrimSpace(key), strings.TrimSpace(value)
	if key == "" || value == "" {
		return
	}
	if s.Raw == nil {
		s.Raw = map[string]Answer{}
	}
	s.Raw[key] = Single(value)
	s.touch()
}

// Progress returns how far through the queue the cursor is, in percent.
func (s *Session) Progress() float64 {
	switch {
	case s.State == Completed:
		return 100
	case s.State == NotStarted || len(s.Queue) == 0:
		return 0
	}
	return float64(s.Cursor) / float64(len(s.Queue)) * 100
}

// Finalize groups every committed answer under the complaint whose header
// most recently precedes its question. It does not change the session.
func (s *Session) Finalize() GroupedRecord {
	rec := GroupedRecord{}
	if s.State == NotStarted || len(s.Queue) == 0 {
		bucket := make(map[string]Answer, len(s.Raw))
		for k, v := range s.Raw {
			bucket[k] = v.clone()
		}
		rec[GeneralBucket] = bucket
		return rec
	}

	current := GeneralBucket
	for _, q := range s.Queue {
		if q.IsHeader() {
			current = q.Complaint
			rec.bucket(current)
			if a, ok := s.Answers[q.Key]; ok && !a.IsEmpty() {
				rec[current][PCNoteKey] = a.clone()
			}
			continue
		}
		a, ok := s.Answers[q.Key]
		if !ok || a.IsEmpty() {
			continue
		}
		rec.bucket(current)[q.Key] = a.clone()
	}
	return rec
}
