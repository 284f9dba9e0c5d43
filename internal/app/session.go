package app

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"tournament-service/internal/domain"
)

// Session is the in-memory state of one running tournament, keyed by its
// session code (live code, or code_suffix for a deferred replay).
//
// All mutation happens under mu, applied by the timer controller, the
// admission engine and the finalizer; timer callbacks re-acquire mu before
// touching state, so an event handler always sees the fully-applied effects
// of the previous one.
type Session struct {
	Code            string
	Deferred        bool
	LinkedQuizID    string
	DashboardDriven bool

	mu    sync.Mutex
	clock clockwork.Clock

	questions []domain.Question

	state              domain.TimerState
	currentUID         string
	currentDuration    time.Duration
	questionStart      time.Time
	pausedRemaining    time.Duration
	pausedAt           time.Time
	lastActiveUID      string
	countdown          *countdown

	participants map[string]*domain.Participant
	answers      map[string]map[string]domain.Answer
	asked        map[string]struct{}
	connToPlayer map[string]string
}

func newSession(code string, questions []domain.Question, opts SessionOptions, clock clockwork.Clock) *Session {
	return &Session{
		Code:            code,
		Deferred:        opts.Deferred,
		LinkedQuizID:    opts.LinkedQuizID,
		DashboardDriven: opts.DashboardDriven,
		clock:           clock,
		questions:       questions,
		state:           domain.TimerIdle,
		participants:    make(map[string]*domain.Participant),
		answers:         make(map[string]map[string]domain.Answer),
		asked:           make(map[string]struct{}),
		connToPlayer:    make(map[string]string),
	}
}

// NewSession is exported for infrastructure layers that need to seed sessions.
func NewSession(code string, questions []domain.Question, opts SessionOptions, clock clockwork.Clock) *Session {
	return newSession(code, questions, opts, clock)
}

// State returns the current timer state.
func (s *Session) State() domain.TimerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CurrentQuestion returns the active question, if one is set.
func (s *Session) CurrentQuestion() (domain.Question, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.questionByUIDLocked(s.currentUID)
}

// PausedRemaining returns the remaining time captured at pause, valid only
// while paused.
func (s *Session) PausedRemaining() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pausedRemaining
}

// Participant returns a copy of one participant's current standing.
func (s *Session) Participant(playerID string) (domain.Participant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[playerID]
	if !ok {
		return domain.Participant{}, false
	}
	return *p, true
}

// QuizLinked reports whether the session mirrors into a dashboard view.
func (s *Session) QuizLinked() bool {
	return s.LinkedQuizID != ""
}

func (s *Session) questionByUIDLocked(uid string) (domain.Question, bool) {
	for _, q := range s.questions {
		if q.UID == uid {
			return q, true
		}
	}
	return domain.Question{}, false
}

func (s *Session) questionIndexLocked(uid string) int {
	for i, q := range s.questions {
		if q.UID == uid {
			return i
		}
	}
	return -1
}

// remainingLocked computes the live remaining time from the elapsed-time
// reference point, floored at zero.
func (s *Session) remainingLocked() time.Duration {
	remaining := s.currentDuration - s.clock.Since(s.questionStart)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// countdown owns at most one tick handle and one deadline handle for the
// active question. Transitions always cancel-then-replace it within one
// handler invocation, so duplicate expiry cannot fire.
type countdown struct {
	ticker   clockwork.Ticker
	deadline clockwork.Timer
	done     chan struct{}
	once     sync.Once
}

func newCountdown(clock clockwork.Clock, duration time.Duration) *countdown {
	return &countdown{
		ticker:   clock.NewTicker(time.Second),
		deadline: clock.NewTimer(duration),
		done:     make(chan struct{}),
	}
}

// run pumps ticks and the deadline until either expiry or cancellation.
// Whichever of the two timers fires expiry first wins; the loop exits and the
// other handle is stopped, so the expiry callback runs at most once.
func (c *countdown) run(onTick func(cd *countdown), onExpire func(cd *countdown)) {
	go func() {
		defer c.ticker.Stop()
		for {
			select {
			case <-c.done:
				return
			case <-c.deadline.Chan():
				onExpire(c)
				return
			case <-c.ticker.Chan():
				onTick(c)
			}
		}
	}()
}

// cancel stops both handles and releases the pump goroutine. Safe to call
// more than once.
func (c *countdown) cancel() {
	c.once.Do(func() {
		close(c.done)
		c.ticker.Stop()
		stopAndDrainTimer(c.deadline)
	})
}

// stopAndDrainTimer stops a timer and drains its channel if it already fired,
// per the time.Timer.Stop documentation.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}

// replaceCountdownLocked cancels any outstanding countdown and installs a new
// one. Must be called with mu held.
func (s *Session) replaceCountdownLocked(cd *countdown) {
	if s.countdown != nil {
		s.countdown.cancel()
	}
	s.countdown = cd
}

// cancelCountdownLocked cancels the outstanding countdown, if any. Must be
// called with mu held.
func (s *Session) cancelCountdownLocked() {
	if s.countdown != nil {
		s.countdown.cancel()
		s.countdown = nil
	}
}
