package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"tournament-service/internal/domain"
)

func TestAnswerAdmissionWindow(t *testing.T) {
	tests := []struct {
		name          string
		elapsed       time.Duration // server-observed
		clientElapsed time.Duration // what the client stamped
		wantAccept    bool
		wantReason    string
	}{
		{"well inside window", 2 * time.Second, 2 * time.Second, true, ""},
		{"just inside window", 19900 * time.Millisecond, 19900 * time.Millisecond, true, ""},
		{"late arrival inside grace", 20400 * time.Millisecond, 19800 * time.Millisecond, true, ""},
		{"past grace period", 20600 * time.Millisecond, 19800 * time.Millisecond, false, domain.RejectLate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.activeSession("ABCD", "q1", 20*time.Second, tt.elapsed)

			f.service.SubmitAnswer(context.Background(), "ABCD", "conn1", domain.AnswerSubmission{
				QuestionUID: "q1",
				Selection:   []int{1},
				ClientTime:  f.clock.Now().Add(tt.clientElapsed - tt.elapsed),
			})

			receipt := f.recorder.receipt(t, "conn1")
			if receipt.Accepted != tt.wantAccept {
				t.Fatalf("accepted=%v, want %v (reason=%q)", receipt.Accepted, tt.wantAccept, receipt.Reason)
			}
			if receipt.Reason != tt.wantReason {
				t.Fatalf("reason=%q, want %q", receipt.Reason, tt.wantReason)
			}
		})
	}
}

func TestClientReportedTimeCheckedWithoutGrace(t *testing.T) {
	f := newFixture(t)
	f.activeSession("ABCD", "q1", 20*time.Second, 2*time.Second)

	// Server-side elapsed is fine, but the client admits it answered after
	// the window.
	late := f.clock.Now().Add(19 * time.Second)
	f.service.SubmitAnswer(context.Background(), "ABCD", "conn1", domain.AnswerSubmission{
		QuestionUID: "q1",
		Selection:   []int{1},
		ClientTime:  late,
	})

	receipt := f.recorder.receipt(t, "conn1")
	if receipt.Accepted || receipt.Reason != domain.RejectLate {
		t.Fatalf("expected late rejection, got %+v", receipt)
	}
}

func TestPausedSessionAcceptsAfterWindow(t *testing.T) {
	f := newFixture(t)
	sess := f.activeSession("ABCD", "q1", 20*time.Second, 45*time.Second)
	sess.state = domain.TimerPaused
	sess.pausedRemaining = 10 * time.Second

	f.service.SubmitAnswer(context.Background(), "ABCD", "conn1", domain.AnswerSubmission{
		QuestionUID: "q1",
		Selection:   []int{1},
		ClientTime:  f.clock.Now(),
	})

	receipt := f.recorder.receipt(t, "conn1")
	if !receipt.Accepted {
		t.Fatalf("paused sessions accept regardless of elapsed time, got %+v", receipt)
	}
}

func TestStoppedSessionRejectsEverything(t *testing.T) {
	f := newFixture(t)
	sess := f.activeSession("ABCD", "q1", 20*time.Second, time.Second)
	sess.state = domain.TimerStopped

	f.service.SubmitAnswer(context.Background(), "ABCD", "conn1", domain.AnswerSubmission{
		QuestionUID: "q1",
		Selection:   []int{1},
		ClientTime:  f.clock.Now(),
	})

	receipt := f.recorder.receipt(t, "conn1")
	if receipt.Accepted || receipt.Reason != domain.RejectStopped {
		t.Fatalf("expected stopped rejection, got %+v", receipt)
	}
}

func TestUnstartedQuestionRejects(t *testing.T) {
	f := newFixture(t)
	sess := f.activeSession("ABCD", "q1", 20*time.Second, 0)
	sess.questionStart = time.Time{}
	sess.state = domain.TimerQuestionSet

	f.service.SubmitAnswer(context.Background(), "ABCD", "conn1", domain.AnswerSubmission{
		QuestionUID: "q1",
		Selection:   []int{1},
		ClientTime:  f.clock.Now(),
	})

	receipt := f.recorder.receipt(t, "conn1")
	if receipt.Accepted || receipt.Reason != domain.RejectNotStarted {
		t.Fatalf("expected not_started rejection, got %+v", receipt)
	}
}

func TestUnmappedConnectionDroppedSilently(t *testing.T) {
	f := newFixture(t)
	f.activeSession("ABCD", "q1", 20*time.Second, time.Second)

	f.service.SubmitAnswer(context.Background(), "ABCD", "ghost-conn", domain.AnswerSubmission{
		QuestionUID: "q1",
		Selection:   []int{1},
		ClientTime:  f.clock.Now(),
	})

	if n := f.recorder.receiptCount("ghost-conn"); n != 0 {
		t.Fatalf("stale connections get no reply, got %d receipts", n)
	}
}

func TestMismatchedQuestionDroppedSilently(t *testing.T) {
	f := newFixture(t)
	f.activeSession("ABCD", "q1", 20*time.Second, time.Second)

	f.service.SubmitAnswer(context.Background(), "ABCD", "conn1", domain.AnswerSubmission{
		QuestionUID: "q-old",
		Selection:   []int{1},
		ClientTime:  f.clock.Now(),
	})

	if n := f.recorder.receiptCount("conn1"); n != 0 {
		t.Fatalf("answers for inactive questions get no reply, got %d receipts", n)
	}
}

func TestReanswerOverwritesScore(t *testing.T) {
	f := newFixture(t)
	sess := f.activeSession("ABCD", "q1", 20*time.Second, time.Second)

	// Wrong first, then right: one scored entry reflecting the second answer.
	f.service.SubmitAnswer(context.Background(), "ABCD", "conn1", domain.AnswerSubmission{
		QuestionUID: "q1", Selection: []int{0}, ClientTime: f.clock.Now(),
	})
	f.service.SubmitAnswer(context.Background(), "ABCD", "conn1", domain.AnswerSubmission{
		QuestionUID: "q1", Selection: []int{1}, ClientTime: f.clock.Now(),
	})

	p := sess.participants["p1"]
	if len(p.ScoredQuestions) != 1 {
		t.Fatalf("expected exactly one scored entry, got %d", len(p.ScoredQuestions))
	}
	if p.ScoredQuestions["q1"] <= 0 {
		t.Fatalf("expected second (correct) answer scored, got %v", p.ScoredQuestions["q1"])
	}
	if p.Score != sumScores(p.ScoredQuestions) {
		t.Fatalf("total %v must equal sum of per-question scores %v", p.Score, sumScores(p.ScoredQuestions))
	}
	if got := sess.answers["p1"]["q1"].Selection[0]; got != 1 {
		t.Fatalf("last write wins, expected selection 1, got %d", got)
	}
}

func TestRapidCorrectAnswerScoresAtLeastAsHigh(t *testing.T) {
	f := newFixture(t)
	sess := f.activeSession("ABCD", "q1", 20*time.Second, 2*time.Second)
	f.join(sess, "conn2", "p2", "Bob")

	f.service.SubmitAnswer(context.Background(), "ABCD", "conn1", domain.AnswerSubmission{
		QuestionUID: "q1", Selection: []int{1}, ClientTime: f.clock.Now(),
	})
	f.clock.Advance(16 * time.Second) // now at 18s elapsed
	f.service.SubmitAnswer(context.Background(), "ABCD", "conn2", domain.AnswerSubmission{
		QuestionUID: "q1", Selection: []int{1}, ClientTime: f.clock.Now(),
	})

	early := sess.participants["p1"].ScoredQuestions["q1"]
	late := sess.participants["p2"].ScoredQuestions["q1"]
	if early < late {
		t.Fatalf("answer at 2s scored %v, below answer at 18s scoring %v", early, late)
	}
	if late <= 0 {
		t.Fatalf("late correct answer still inside window must score, got %v", late)
	}
}

func TestDistributionBroadcastWhenQuizLinked(t *testing.T) {
	f := newFixture(t)
	sess := f.activeSession("ABCD", "q1", 20*time.Second, time.Second)
	sess.LinkedQuizID = "quiz-9"
	f.join(sess, "conn2", "p2", "Bob")

	f.service.SubmitAnswer(context.Background(), "ABCD", "conn1", domain.AnswerSubmission{
		QuestionUID: "q1", Selection: []int{1}, ClientTime: f.clock.Now(),
	})
	f.service.SubmitAnswer(context.Background(), "ABCD", "conn2", domain.AnswerSubmission{
		QuestionUID: "q1", Selection: []int{0}, ClientTime: f.clock.Now(),
	})

	dist := f.recorder.lastDistribution(t, "quiz-9")
	if dist.TotalRespondents != 2 {
		t.Fatalf("expected 2 respondents, got %d", dist.TotalRespondents)
	}
	if dist.Percentages[0] != 50 || dist.Percentages[1] != 50 {
		t.Fatalf("expected 50/50 split, got %v", dist.Percentages)
	}
	if f.recorder.projectionCount("quiz-9") == 0 {
		t.Fatalf("distribution must also reach the projection view")
	}
}

func TestDeferredSessionAnswersArePlayerPaced(t *testing.T) {
	f := newFixture(t)
	sess := f.activeSession("ABCD_77", "q1", 20*time.Second, 90*time.Second)
	sess.Deferred = true

	f.service.SubmitAnswer(context.Background(), "ABCD_77", "conn1", domain.AnswerSubmission{
		QuestionUID: "q1", Selection: []int{1}, ClientTime: f.clock.Now(),
	})

	receipt := f.recorder.receipt(t, "conn1")
	if !receipt.Accepted {
		t.Fatalf("deferred sessions are player-paced, got %+v", receipt)
	}
}

// --- fixture ---

type fixture struct {
	service  *TournamentService
	registry *stubRegistry
	recorder *stubBroadcaster
	clock    *clockwork.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClock()
	registry := &stubRegistry{sessions: make(map[string]*Session)}
	recorder := &stubBroadcaster{}
	service := NewTournamentService(
		registry,
		stubQuestionRepo{},
		&stubStore{},
		recorder,
		RapidityScorer{},
		clock,
		zerolog.Nop(),
	)
	return &fixture{service: service, registry: registry, recorder: recorder, clock: clock}
}

// activeSession builds a session whose question started `elapsed` ago, with
// player p1 joined on conn1.
func (f *fixture) activeSession(code, questionUID string, allowed, elapsed time.Duration) *Session {
	questions := []domain.Question{{
		UID:  questionUID,
		Text: "pick one",
		Options: []domain.Option{
			{Text: "wrong", Correct: false},
			{Text: "right", Correct: true},
			{Text: "also wrong", Correct: false},
		},
		TimeSeconds: int(allowed / time.Second),
	}}
	sess := newSession(code, questions, SessionOptions{}, f.clock)
	sess.state = domain.TimerActive
	sess.currentUID = questionUID
	sess.currentDuration = allowed
	sess.questionStart = f.clock.Now().Add(-elapsed)
	f.registry.sessions[code] = sess
	f.join(sess, "conn1", "p1", "Alice")
	return sess
}

func (f *fixture) join(sess *Session, connID, playerID, name string) {
	sess.participants[playerID] = &domain.Participant{
		ID:              playerID,
		DisplayName:     name,
		ScoredQuestions: make(map[string]float64),
	}
	sess.connToPlayer[connID] = playerID
}

type stubRegistry struct {
	sessions map[string]*Session
}

func (r *stubRegistry) Put(s *Session) { r.sessions[s.Code] = s }
func (r *stubRegistry) Remove(code string) { delete(r.sessions, code) }

func (r *stubRegistry) Get(code string) (*Session, bool) {
	s, ok := r.sessions[code]
	return s, ok
}

type stubQuestionRepo struct{}

func (stubQuestionRepo) GetQuestions(_ context.Context, _ []string) ([]domain.Question, error) {
	return nil, nil
}

type stubStore struct {
	mu           sync.Mutex
	leaderboards int
	playerRows   int
}

func (s *stubStore) LoadQuestions(_ context.Context, _ []string) ([]domain.Question, error) {
	return nil, nil
}

func (s *stubStore) PersistLeaderboard(_ context.Context, _ string, _ domain.Leaderboard, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaderboards++
	return nil
}

func (s *stubStore) UpsertPlayerScore(_ context.Context, _ string, _ domain.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playerRows++
	return nil
}

type stubBroadcaster struct {
	mu          sync.Mutex
	receipts    map[string][]domain.AnswerReceipt
	dashboards  map[string][]domain.Event
	projections map[string][]domain.Event
}

func (b *stubBroadcaster) ToSession(string, domain.Event) {}

func (b *stubBroadcaster) ToConnection(connID string, event domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.receipts == nil {
		b.receipts = make(map[string][]domain.AnswerReceipt)
	}
	if receipt, ok := event.Payload.(domain.AnswerReceipt); ok {
		b.receipts[connID] = append(b.receipts[connID], receipt)
	}
}

func (b *stubBroadcaster) ToDashboard(quizID string, event domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dashboards == nil {
		b.dashboards = make(map[string][]domain.Event)
	}
	b.dashboards[quizID] = append(b.dashboards[quizID], event)
}

func (b *stubBroadcaster) ToProjection(quizID string, event domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.projections == nil {
		b.projections = make(map[string][]domain.Event)
	}
	b.projections[quizID] = append(b.projections[quizID], event)
}

func (b *stubBroadcaster) receipt(t *testing.T, connID string) domain.AnswerReceipt {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	receipts := b.receipts[connID]
	if len(receipts) == 0 {
		t.Fatalf("no receipt for %s", connID)
	}
	return receipts[len(receipts)-1]
}

func (b *stubBroadcaster) receiptCount(connID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.receipts[connID])
}

func (b *stubBroadcaster) lastDistribution(t *testing.T, quizID string) domain.AnswerDistribution {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	events := b.dashboards[quizID]
	for i := len(events) - 1; i >= 0; i-- {
		if dist, ok := events[i].Payload.(domain.AnswerDistribution); ok {
			return dist
		}
	}
	t.Fatalf("no distribution for quiz %s", quizID)
	return domain.AnswerDistribution{}
}

func (b *stubBroadcaster) projectionCount(quizID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.projections[quizID])
}
