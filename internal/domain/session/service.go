package session

import (
	"context"
	"errors"
	"hash/fnv"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"voice-quiz-server/internal/domain/evaluation"
	"voice-quiz-server/internal/domain/eventbus"
	"voice-quiz-server/internal/domain/summary"
	"voice-quiz-server/internal/domain/transcription"
	perrors "voice-quiz-server/internal/platform/errors"
	"voice-quiz-server/internal/platform/logging"
	"voice-quiz-server/internal/platform/observability"
)

const lockStripes = 64

type Options struct {
	Bus     *eventbus.Bus
	Metrics *observability.Metrics
	Logger  *logging.Logger
	Now     func() time.Time
	NewID   func() string
}

// Service is the session state machine. Calls for the same (user, quiz)
// pair are serialised in-process; the store's active index covers other
// processes.
type Service struct {
	store Store
	opts  Options
	group singleflight.Group
	locks [lockStripes]sync.Mutex
}

func NewService(store Store, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Service{store: store, opts: opts}
}

func (s *Service) lock(key string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	m := &s.locks[h.Sum32()%lockStripes]
	m.Lock()
	return m.Unlock
}

type getOrCreateResult struct {
	session GameSession
	created bool
}

// GetOrCreate returns the pair's in-progress session, creating one when
// none exists. created reports whether this call started it.
func (s *Service) GetOrCreate(ctx context.Context, userID, quizID string) (GameSession, bool, error) {
	const op = "session.GetOrCreate"
	if err := validatePair(userID, quizID); err != nil {
		return GameSession{}, false, perrors.Wrap(perrors.KindSession, op, "invalid request", err)
	}

	key := pairKey(userID, quizID)
	v, err, shared := s.group.Do(key, func() (interface{}, error) {
		unlock := s.lock(key)
		defer unlock()
		gs, created, err := s.getOrCreateLocked(ctx, userID, quizID)
		return getOrCreateResult{session: gs, created: created}, err
	})
	if err != nil {
		return GameSession{}, false, perrors.Wrap(perrors.KindSession, op, "get or create session", err)
	}
	res := v.(getOrCreateResult)
	return clone(res.session), res.created && !shared, nil
}

func (s *Service) getOrCreateLocked(ctx context.Context, userID, quizID string) (GameSession, bool, error) {
	active, err := s.store.GetActive(ctx, userID, quizID)
	if err == nil {
		return active, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return GameSession{}, false, err
	}

	now := s.opts.Now()
	gs := GameSession{
		ID:        s.opts.NewID(),
		UserID:    userID,
		QuizID:    quizID,
		State:     StateInProgress,
		StartedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, gs); err != nil {
		if errors.Is(err, ErrActiveExists) {
			// another process created it between our read and write
			active, getErr := s.store.GetActive(ctx, userID, quizID)
			return active, false, getErr
		}
		return GameSession{}, false, err
	}

	s.opts.Logger.InfoTag("Session", "created session %s user=%s quiz=%s", gs.ID, userID, quizID)
	s.opts.Bus.PublishAsync(eventbus.TopicSessionStart, eventbus.SessionEvent{
		SessionID: gs.ID, UserID: userID, QuizID: quizID, State: string(gs.State), At: now,
	})
	return gs, true, nil
}

// CompleteRequest finishes an attempt. SessionID is optional; without it
// the pair's in-progress session is used, or created when none exists.
// Evaluations travel inside the recordings.
type CompleteRequest struct {
	SessionID      string
	UserID         string
	QuizID         string
	Recordings     map[int]RecordingPayload
	TotalQuestions int
}

// Complete aggregates the evaluations, attaches recordings and summary and
// marks the session completed in one store update. A completed session is
// never completed again: the second call fails with ErrAlreadyCompleted.
func (s *Service) Complete(ctx context.Context, req CompleteRequest) (GameSession, error) {
	const op = "session.Complete"
	if err := validatePair(req.UserID, req.QuizID); err != nil {
		return GameSession{}, perrors.Wrap(perrors.KindSession, op, "invalid request", err)
	}

	unlock := s.lock(pairKey(req.UserID, req.QuizID))
	defer unlock()

	target, err := s.resolve(ctx, req)
	if err != nil {
		return GameSession{}, perrors.Wrap(perrors.KindSession, op, "resolve session", err)
	}

	recordings := normalizeRecordings(req.Recordings)
	sum := Summarize(recordings, req.TotalQuestions)
	now := s.opts.Now()

	updated, err := s.store.Update(ctx, target.ID, func(gs *GameSession) error {
		if gs.State == StateCompleted {
			return ErrAlreadyCompleted
		}
		completedAt := now
		gs.State = StateCompleted
		gs.CompletedAt = &completedAt
		gs.Recordings = recordings
		gs.Summary = &sum
		gs.UpdatedAt = now
		return nil
	})
	if err != nil {
		return GameSession{}, perrors.Wrap(perrors.KindSession, op, "update session", err)
	}

	s.opts.Metrics.CompleteSession(string(sum.PerformanceCategory))
	s.opts.Logger.InfoTag("Session", "completed session %s: %d/%d evaluated, average %d (%s)",
		updated.ID, sum.EvaluatedQuestions, sum.TotalQuestions, sum.AverageScore, sum.PerformanceCategory)
	s.opts.Bus.PublishAsync(eventbus.TopicSessionDone, eventbus.SessionEvent{
		SessionID: updated.ID,
		UserID:    updated.UserID,
		QuizID:    updated.QuizID,
		State:     string(updated.State),
		Category:  string(sum.PerformanceCategory),
		Average:   sum.AverageScore,
		At:        now,
	})
	return updated, nil
}

func (s *Service) resolve(ctx context.Context, req CompleteRequest) (GameSession, error) {
	if req.SessionID != "" {
		gs, err := s.store.Get(ctx, req.SessionID)
		if err != nil {
			return GameSession{}, err
		}
		if gs.UserID != req.UserID {
			return GameSession{}, ErrForbidden
		}
		if gs.QuizID != req.QuizID {
			return GameSession{}, errors.Join(ErrInvalidRequest, errors.New("session belongs to another quiz"))
		}
		if gs.State == StateCompleted {
			return GameSession{}, ErrAlreadyCompleted
		}
		return gs, nil
	}
	gs, _, err := s.getOrCreateLocked(ctx, req.UserID, req.QuizID)
	return gs, err
}

// Get returns a session. A non-empty userID must own it.
func (s *Service) Get(ctx context.Context, id, userID string) (GameSession, error) {
	gs, err := s.store.Get(ctx, id)
	if err != nil {
		return GameSession{}, perrors.Wrap(perrors.KindSession, "session.Get", "load session", err)
	}
	if userID != "" && gs.UserID != userID {
		return GameSession{}, perrors.Wrap(perrors.KindSession, "session.Get", "load session", ErrForbidden)
	}
	return gs, nil
}

// History lists a user's sessions, newest first.
func (s *Service) History(ctx context.Context, userID string) ([]GameSession, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, perrors.Wrap(perrors.KindSession, "session.History", "invalid request", ErrInvalidRequest)
	}
	list, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, perrors.Wrap(perrors.KindSession, "session.History", "list sessions", err)
	}
	return list, nil
}

// Summarize aggregates the evaluations found in recordings, in question order.
func Summarize(recordings map[int]RecordingPayload, totalQuestions int) summary.Summary {
	indexes := make([]int, 0, len(recordings))
	for idx := range recordings {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	results := make([]summary.Labeled, 0, len(indexes))
	for _, idx := range indexes {
		if ev := recordings[idx].Evaluation; ev != nil {
			results = append(results, summary.Labeled{QuestionIndex: idx, Result: *ev})
		}
	}
	if totalQuestions <= 0 {
		totalQuestions = len(recordings)
	}
	return summary.Aggregate(results, totalQuestions)
}

// normalizeRecordings clamps client-supplied scores, pins not-attempted
// answers to 0 and fills derived fields.
func normalizeRecordings(in map[int]RecordingPayload) map[int]RecordingPayload {
	out := make(map[int]RecordingPayload, len(in))
	for idx, rec := range in {
		if idx < 0 {
			continue
		}
		noSpeech := strings.TrimSpace(rec.Transcription) == transcription.NoSpeech
		if noSpeech && rec.Evaluation == nil {
			ev := evaluation.NotAttemptedResult()
			rec.Evaluation = &ev
		}
		if rec.Evaluation != nil {
			ev := *rec.Evaluation
			ev.Score = evaluation.ClampScore(ev.Score)
			if level, ok := evaluation.ParseLevel(string(ev.Level)); ok {
				ev.Level = level
			} else {
				ev.Level = evaluation.LevelForScore(ev.Score)
			}
			// not_attempted is always worth 0
			if noSpeech || ev.Level == evaluation.LevelNotAttempted {
				ev.Level = evaluation.LevelNotAttempted
				ev.Score = 0
			}
			rec.Evaluation = &ev
			if rec.EvaluationStatus == "" {
				rec.EvaluationStatus = "completed"
			}
		}
		if rec.TranscriptionStatus == "" {
			if rec.Transcription != "" {
				rec.TranscriptionStatus = "completed"
			} else {
				rec.TranscriptionStatus = "failed"
			}
		}
		if rec.FileSize == 0 {
			rec.FileSize = len(rec.AudioBase64)
		}
		out[idx] = rec
	}
	return out
}

func validatePair(userID, quizID string) error {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(quizID) == "" {
		return errors.Join(ErrInvalidRequest, errors.New("user id and quiz id are required"))
	}
	return nil
}
