package app

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"tournament-service/internal/domain"
)

// SessionRegistry abstracts how live tournament sessions are stored
// (in-memory, Redis-marked, etc). Sessions live until explicit finalization.
type SessionRegistry interface {
	Put(session *Session)
	Get(code string) (*Session, bool)
	Remove(code string)
}

// QuestionRepository loads question content (from cache/backing store).
type QuestionRepository interface {
	GetQuestions(ctx context.Context, uids []string) ([]domain.Question, error)
}

// TournamentStore is the durable collaborator. This core only calls these;
// schema and migrations are owned elsewhere.
type TournamentStore interface {
	LoadQuestions(ctx context.Context, uids []string) ([]domain.Question, error)
	PersistLeaderboard(ctx context.Context, code string, leaderboard domain.Leaderboard, endedAt time.Time) error
	UpsertPlayerScore(ctx context.Context, tournamentID string, participant domain.Participant) error
}

// Broadcaster fans events out to the audiences a session talks to. The
// transport layer owns delivery; the engine never blocks on a slow client.
type Broadcaster interface {
	ToSession(code string, event domain.Event)
	ToConnection(connID string, event domain.Event)
	ToDashboard(quizID string, event domain.Event)
	ToProjection(quizID string, event domain.Event)
}

// Scorer computes the points awarded for one accepted answer.
type Scorer interface {
	Score(q domain.Question, selection []int, elapsed, allowed time.Duration, totalQuestions int) float64
}

// TournamentService contains the tournament engine use cases: timer control,
// answer admission and scoring, and finalization.
type TournamentService struct {
	registry  SessionRegistry
	questions QuestionRepository
	store     TournamentStore
	broadcast Broadcaster
	scorer    Scorer
	bridge    *QuizLinkBridge
	clock     clockwork.Clock
	log       zerolog.Logger
}

func NewTournamentService(
	registry SessionRegistry,
	questions QuestionRepository,
	store TournamentStore,
	broadcast Broadcaster,
	scorer Scorer,
	clock clockwork.Clock,
	log zerolog.Logger,
) *TournamentService {
	return &TournamentService{
		registry:  registry,
		questions: questions,
		store:     store,
		broadcast: broadcast,
		scorer:    scorer,
		bridge:    NewQuizLinkBridge(broadcast),
		clock:     clock,
		log:       log,
	}
}

// SessionOptions configures a session at creation time.
type SessionOptions struct {
	// Deferred marks a replay-style session not driven by a live moderator;
	// controller calls are ignored and answers are player-paced.
	Deferred bool
	// LinkedQuizID pairs the session with a quiz dashboard view.
	LinkedQuizID string
	// DashboardDriven marks sessions whose timer authority lives on the
	// dashboard side; the engine then never mirrors timer status outward.
	DashboardDriven bool
}

// CreateSession loads the tournament's questions and registers a new live
// session under code. An existing session for the same code is reused.
func (s *TournamentService) CreateSession(ctx context.Context, code string, questionUIDs []string, opts SessionOptions) (*Session, error) {
	if existing, ok := s.registry.Get(code); ok {
		return existing, nil
	}
	questions, err := s.questions.GetQuestions(ctx, questionUIDs)
	if err != nil {
		return nil, err
	}
	session := newSession(code, questions, opts, s.clock)
	s.registry.Put(session)
	s.log.Info().Str("code", code).Int("questions", len(questions)).
		Bool("deferred", opts.Deferred).Str("quiz_id", opts.LinkedQuizID).
		Msg("tournament session created")
	return session, nil
}

// Bridge exposes the quiz-link bridge, mainly for dashboard-side consumers.
func (s *TournamentService) Bridge() *QuizLinkBridge {
	return s.bridge
}
