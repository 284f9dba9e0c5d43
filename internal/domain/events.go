package domain

import "time"

// Event is the wire envelope for everything the engine emits.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Outbound event types.
const (
	EventAnswerReceipt      = "answer_receipt"
	EventQuestionPresented  = "question_presented"
	EventTimerUpdate        = "timer_update"
	EventTimerMirror        = "timer_mirror"
	EventAnswerDistribution = "answer_distribution"
	EventTournamentEnded    = "tournament_ended"
	EventRedirect           = "redirect"
)

// AnswerReceipt is unicast to the submitting connection.
type AnswerReceipt struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
	Message  string `json:"message"`
}

// QuestionPresented announces the active question to the session channel.
type QuestionPresented struct {
	Question   Question `json:"question"`
	Index      int      `json:"index"`
	Total      int      `json:"total"`
	Duration   float64  `json:"duration"`
	State      string   `json:"state"`
	QuizLinked bool     `json:"quizLinked"`
}

// TimerUpdate is broadcast on the session channel, at least once per second
// while the countdown is active.
type TimerUpdate struct {
	TimeLeft float64 `json:"timeLeft"`
	State    string  `json:"state"`
}

// TimerMirror is the dashboard-facing reflection of a timer transition for
// quiz-linked sessions.
type TimerMirror struct {
	Status      string  `json:"status"`
	QuestionUID string  `json:"questionId"`
	TimeLeft    float64 `json:"timeLeft"`
	Timestamp   int64   `json:"timestamp"`
}

// AnswerDistribution aggregates current answers for the active question into
// a per-option percentage view.
type AnswerDistribution struct {
	QuestionUID      string    `json:"questionUid"`
	Percentages      []float64 `json:"percentagesByOption"`
	TotalRespondents int       `json:"totalRespondents"`
}

// TournamentEnded carries the final scaled leaderboard.
type TournamentEnded struct {
	Leaderboard Leaderboard `json:"leaderboard"`
}

// Redirect tells clients where to go once the tournament is over.
type Redirect struct {
	Code string `json:"code"`
}

// MirrorTimestamp formats a mirror timestamp the way dashboards expect it.
func MirrorTimestamp(t time.Time) int64 {
	return t.UnixMilli()
}
