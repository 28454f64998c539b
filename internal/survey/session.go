package survey

import (
	"context"
	"strings"
	"sync"
	"time"

	"agrosurvey/internal/schema"
	"agrosurvey/internal/store"
)

type Status string

const (
	StatusIdle       Status = "idle"
	StatusSubmitting Status = "submitting"
	StatusCompleted  Status = "completed"
)

// submitWriteTimeout bounds a store write once it has started.
const submitWriteTimeout = 30 * time.Second

// responseWriter is the part of the store a session needs.
type responseWriter interface {
	Create(ctx context.Context, collection string, rec store.Record) (store.Record, error)
}

// Session is one respondent's answer map, location and submission state.
type Session struct {
	ID string

	survey   *schema.Survey
	taxonomy *schema.Taxonomy
	writer   responseWriter
	version  string

	mu          sync.Mutex
	location    schema.Location
	answers     map[string]any
	status      Status
	responseID  string
	submittedAt time.Time
	touchedAt   time.Time
}

type Snapshot struct {
	ID            string          `json:"id"`
	Status        Status          `json:"status"`
	Location      schema.Location `json:"location"`
	Answers       map[string]any  `json:"answers"`
	SurveyVersion string          `json:"survey_version"`
	ResponseID    string          `json:"response_id,omitempty"`
	SubmittedAt   *time.Time      `json:"submitted_at,omitempty"`
}

func newSession(id string, sv *schema.Survey, tax *schema.Taxonomy, w responseWriter, version string, now time.Time) *Session {
	return &Session{
		ID:        id,
		survey:    sv,
		taxonomy:  tax,
		writer:    w,
		version:   version,
		answers:   make(map[string]any),
		status:    StatusIdle,
		touchedAt: now,
	}
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:            s.ID,
		Status:        s.status,
		Location:      s.location,
		Answers:       copyAnswers(s.answers),
		SurveyVersion: s.version,
		ResponseID:    s.responseID,
	}
	if !s.submittedAt.IsZero() {
		at := s.submittedAt
		snap.SubmittedAt = &at
	}
	return snap
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.touchedAt = now
	s.mu.Unlock()
}

// expired never reports a session with a write in flight.
func (s *Session) expired(now time.Time, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status != StatusSubmitting && now.Sub(s.touchedAt) > ttl
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SetLocation replaces the location. Changing the comarca without naming a
// municipio leaves the municipio empty.
func (s *Session) SetLocation(loc schema.Location) error {
	loc.Comarca = strings.TrimSpace(loc.Comarca)
	loc.Municipio = strings.TrimSpace(loc.Municipio)
	if !s.taxonomy.Contains(loc) {
		return validationErr("unknown location")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.editableLocked(); err != nil {
		return err
	}
	s.location = loc
	return nil
}

// SelectComarca sets the comarca and clears the municipio.
func (s *Session) SelectComarca(comarcaID string) error {
	return s.SetLocation(schema.Location{Comarca: comarcaID})
}

func (s *Session) update(fn func(answers map[string]any) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.editableLocked(); err != nil {
		return err
	}
	return fn(s.answers)
}

func (s *Session) editableLocked() error {
	switch s.status {
	case StatusCompleted:
		return ErrSessionCompleted
	case StatusSubmitting:
		return ErrSubmissionInFlight
	default:
		return nil
	}
}

// Submit validates the session and writes exactly one response. A second call
// while the write is pending fails fast with ErrSubmissionInFlight; a failed
// write returns the session to idle with its answers intact.
func (s *Session) Submit(ctx context.Context) (store.Record, error) {
	s.mu.Lock()
	switch s.status {
	case StatusCompleted:
		s.mu.Unlock()
		return store.Record{}, ErrAlreadySubmitted
	case StatusSubmitting:
		s.mu.Unlock()
		return store.Record{}, ErrSubmissionInFlight
	}
	if err := s.validateLocked(); err != nil {
		s.mu.Unlock()
		return store.Record{}, err
	}
	s.status = StatusSubmitting
	rec := store.Record{
		Location:      s.location,
		Answers:       copyAnswers(s.answers),
		SurveyVersion: s.version,
	}
	s.mu.Unlock()

	// A caller that goes away mid-write does not abort it; the write
	// completes or fails on its own and the session settles accordingly.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), submitWriteTimeout)
	saved, err := s.writer.Create(wctx, store.CollectionResponses, rec)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.status = StatusIdle
		return store.Record{}, &StoreWriteError{Err: err}
	}
	s.status = StatusCompleted
	s.responseID = saved.ID
	s.submittedAt = saved.Timestamp
	return saved, nil
}

func (s *Session) validateLocked() error {
	if !s.location.Complete() {
		return validationErr("incomplete location")
	}
	if !s.taxonomy.ValidLocation(s.location) {
		return validationErr("unknown location")
	}
	if missing := missingRequired(s.survey, s.answers); len(missing) > 0 {
		return validationErr("required questions unanswered", missing...)
	}
	return nil
}

func missingRequired(sv *schema.Survey, answers map[string]any) []string {
	var missing []string
	for _, id := range sv.Required() {
		if !answered(answers[id]) {
			missing = append(missing, id)
		}
	}
	return missing
}

func answered(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(t) != ""
	case []string:
		return len(t) > 0
	case []any:
		return len(t) > 0
	default:
		return true
	}
}

func copyAnswers(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if list, ok := v.([]string); ok {
			v = append([]string(nil), list...)
		}
		out[k] = v
	}
	return out
}
