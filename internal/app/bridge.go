package app

import (
	"sync"
	"time"

	"tournament-service/internal/domain"
)

// QuizLinkBridge mirrors tournament timer transitions and answer
// distributions into the paired dashboard view's own state and channels.
// Control flows one way: the tournament timer drives the mirror, never the
// reverse.
type QuizLinkBridge struct {
	broadcast Broadcaster

	mu     sync.Mutex
	timers map[string]domain.TimerMirror // quizID:questionUID
}

func NewQuizLinkBridge(broadcast Broadcaster) *QuizLinkBridge {
	return &QuizLinkBridge{
		broadcast: broadcast,
		timers:    make(map[string]domain.TimerMirror),
	}
}

// MirrorTimer records a timer transition under the quiz's own keying and
// emits it on the dashboard channel.
func (b *QuizLinkBridge) MirrorTimer(quizID, questionUID, status string, timeLeft float64, at time.Time) {
	mirror := domain.TimerMirror{
		Status:      status,
		QuestionUID: questionUID,
		TimeLeft:    timeLeft,
		Timestamp:   domain.MirrorTimestamp(at),
	}

	b.mu.Lock()
	b.timers[quizID+":"+questionUID] = mirror
	b.mu.Unlock()

	b.broadcast.ToDashboard(quizID, domain.Event{
		Type:    domain.EventTimerMirror,
		Payload: mirror,
	})
}

// TimerState returns the last mirrored transition for a quiz question, so a
// dashboard that reconnects can restore its view.
func (b *QuizLinkBridge) TimerState(quizID, questionUID string) (domain.TimerMirror, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	mirror, ok := b.timers[quizID+":"+questionUID]
	return mirror, ok
}

// RelayDistribution forwards an aggregate answer snapshot to the dashboard
// and any projection view watching the same quiz.
func (b *QuizLinkBridge) RelayDistribution(quizID string, dist domain.AnswerDistribution) {
	event := domain.Event{
		Type:    domain.EventAnswerDistribution,
		Payload: dist,
	}
	b.broadcast.ToDashboard(quizID, event)
	b.broadcast.ToProjection(quizID, event)
}

// Forget drops mirrored state for a quiz, called when its tournament ends.
func (b *QuizLinkBridge) Forget(quizID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for key := range b.timers {
		if len(key) > len(quizID) && key[:len(quizID)+1] == quizID+":" {
			delete(b.timers, key)
		}
	}
}
