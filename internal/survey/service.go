package survey

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"agrosurvey/internal/schema"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Service struct {
	engine   *Engine
	taxonomy *schema.Taxonomy
	writer   responseWriter
	version  string
	ttl      time.Duration
	now      func() time.Time
	logger   *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

type ServiceConfig struct {
	Survey        *schema.Survey
	Taxonomy      *schema.Taxonomy
	Writer        responseWriter
	SurveyVersion string
	SessionTTL    time.Duration
	Logger        *zap.Logger
}

type SubmitResult struct {
	ResponseID  string    `json:"response_id"`
	SubmittedAt time.Time `json:"submitted_at"`
	Status      Status    `json:"status"`
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Survey == nil || cfg.Taxonomy == nil || cfg.Writer == nil {
		return nil, errors.New("survey service: survey, taxonomy and writer are required")
	}
	engine, err := NewEngine(cfg.Survey)
	if err != nil {
		return nil, err
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 2 * time.Hour
	}
	version := strings.TrimSpace(cfg.SurveyVersion)
	if version == "" {
		version = cfg.Survey.Version
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Service{
		engine:   engine,
		taxonomy: cfg.Taxonomy,
		writer:   cfg.Writer,
		version:  version,
		ttl:      cfg.SessionTTL,
		now:      time.Now,
		logger:   cfg.Logger,
		sessions: make(map[string]*Session),
	}, nil
}

func (s *Service) Survey() *schema.Survey {
	return s.engine.Survey()
}

func (s *Service) Taxonomy() *schema.Taxonomy {
	return s.taxonomy
}

func (s *Service) Version() string {
	return s.version
}

// Start opens a new session. Expired sessions are dropped on the way.
func (s *Service) Start(ctx context.Context) (Snapshot, error) {
	now := s.now()
	sess := newSession(uuid.NewString(), s.engine.Survey(), s.taxonomy, s.writer, s.version, now)

	s.mu.Lock()
	s.sweepLocked(now)
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	return sess.Snapshot(), nil
}

func (s *Service) Session(id string) (*Session, error) {
	now := s.now()
	s.mu.Lock()
	sess, ok := s.sessions[strings.TrimSpace(id)]
	if ok && sess.expired(now, s.ttl) {
		delete(s.sessions, sess.ID)
		ok = false
	}
	s.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	sess.touch(now)
	return sess, nil
}

func (s *Service) Get(ctx context.Context, id string) (Snapshot, error) {
	sess, err := s.Session(id)
	if err != nil {
		return Snapshot{}, err
	}
	return sess.Snapshot(), nil
}

func (s *Service) SetLocation(ctx context.Context, id string, loc schema.Location) (Snapshot, error) {
	sess, err := s.Session(id)
	if err != nil {
		return Snapshot{}, err
	}
	if err := sess.SetLocation(loc); err != nil {
		return Snapshot{}, err
	}
	return sess.Snapshot(), nil
}

func (s *Service) Answer(ctx context.Context, id, questionID string, raw json.RawMessage) (Snapshot, error) {
	sess, err := s.Session(id)
	if err != nil {
		return Snapshot{}, err
	}
	if err := s.engine.Apply(sess, questionID, raw); err != nil {
		return Snapshot{}, err
	}
	return sess.Snapshot(), nil
}

func (s *Service) Submit(ctx context.Context, id string) (*SubmitResult, error) {
	sess, err := s.Session(id)
	if err != nil {
		return nil, err
	}
	rec, err := sess.Submit(ctx)
	if err != nil {
		var werr *StoreWriteError
		if errors.As(err, &werr) {
			s.logger.Error("survey submit failed",
				zap.String("session_id", sess.ID),
				zap.Error(werr.Err),
			)
		}
		return nil, err
	}
	s.logger.Info("survey submitted",
		zap.String("session_id", sess.ID),
		zap.String("response_id", rec.ID),
		zap.String("comarca", rec.Location.Comarca),
	)
	return &SubmitResult{ResponseID: rec.ID, SubmittedAt: rec.Timestamp, Status: StatusCompleted}, nil
}

// ActiveSessions counts sessions that have not expired yet.
func (s *Service) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(s.now())
	return len(s.sessions)
}

func (s *Service) sweepLocked(now time.Time) {
	for id, sess := range s.sessions {
		if sess.expired(now, s.ttl) {
			delete(s.sessions, id)
		}
	}
}
