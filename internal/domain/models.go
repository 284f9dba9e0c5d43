package domain

import "time"

// DefaultQuestionSeconds is used when neither the session nor the question
// carries an explicit time allowance.
const DefaultQuestionSeconds = 20

// AnswerGracePeriod is the server-side tolerance added on top of the allowed
// duration before an answer is rejected as late.
const AnswerGracePeriod = 500 * time.Millisecond

// TimerState is the tagged state of a session countdown. Exactly one state
// holds at any instant.
type TimerState int

const (
	TimerIdle TimerState = iota
	TimerQuestionSet
	TimerActive
	TimerPaused
	TimerStopped
)

func (s TimerState) String() string {
	switch s {
	case TimerIdle:
		return "idle"
	case TimerQuestionSet:
		return "question_set"
	case TimerActive:
		return "active"
	case TimerPaused:
		return "paused"
	case TimerStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Option represents a possible answer for a question.
type Option struct {
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Question models an MCQ question; Multiple marks questions where several
// options may be correct and players submit a set of indices.
type Question struct {
	UID         string   `json:"uid"`
	Text        string   `json:"text"`
	Options     []Option `json:"options"`
	Multiple    bool     `json:"multiple"`
	TimeSeconds int      `json:"time"` // intrinsic allowance; 0 falls back to DefaultQuestionSeconds
}

// CorrectCount returns how many options are flagged correct.
func (q Question) CorrectCount() int {
	n := 0
	for _, opt := range q.Options {
		if opt.Correct {
			n++
		}
	}
	return n
}

// Participant is a player inside a tournament session. Score is always the
// sum of ScoredQuestions values, never mutated independently.
type Participant struct {
	ID              string             `json:"id"`
	DisplayName     string             `json:"displayName"`
	Avatar          string             `json:"avatar,omitempty"`
	Score           float64            `json:"score"`
	ScoredQuestions map[string]float64 `json:"-"`
}

// Answer is the latest submission by one player for one question; a
// re-submission before finalization overwrites it.
type Answer struct {
	Selection  []int     `json:"selection"`
	ClientTime time.Time `json:"clientTime"`
}

// AnswerSubmission carries a raw submission from the wire.
type AnswerSubmission struct {
	QuestionUID string
	Selection   []int
	ClientTime  time.Time
}

// LeaderboardEntry is a snapshot-friendly view of a participant's standing.
type LeaderboardEntry struct {
	PlayerID    string  `json:"playerId"`
	DisplayName string  `json:"displayName"`
	Avatar      string  `json:"avatar,omitempty"`
	Score       float64 `json:"score"`
}

// Leaderboard captures the ordered standings for one tournament.
type Leaderboard struct {
	Code      string             `json:"code"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}
