package app

import (
	"math"
	"time"

	"tournament-service/internal/domain"
)

// scoreBudget is the pool of points a tournament distributes across its
// questions; each question is worth scoreBudget/totalQuestions.
const scoreBudget = 1000.0

// baseShare and rapidityShare split a question's worth between plain
// correctness and how early in the window the answer landed.
const (
	baseShare     = 0.7
	rapidityShare = 0.3
)

// RapidityScorer is the default Scorer: correctness earns the base share of
// the question's worth, and answering earlier in the allowed window earns up
// to the rapidity share on top. An answer after the window (possible while
// paused, when admission stays open) still earns the base share.
type RapidityScorer struct{}

func (RapidityScorer) Score(q domain.Question, selection []int, elapsed, allowed time.Duration, totalQuestions int) float64 {
	if totalQuestions < 1 {
		totalQuestions = 1
	}
	worth := scoreBudget / float64(totalQuestions)

	credit := answerCredit(q, selection)
	if credit <= 0 {
		return 0
	}

	remainingFrac := 0.0
	if allowed > 0 {
		remainingFrac = 1 - elapsed.Seconds()/allowed.Seconds()
		if remainingFrac < 0 {
			remainingFrac = 0
		}
		if remainingFrac > 1 {
			remainingFrac = 1
		}
	}

	score := worth*credit*baseShare + worth*credit*rapidityShare*remainingFrac
	return round2(score)
}

// answerCredit rates a selection in [0,1]. Single-choice questions are all or
// nothing; multi-choice questions earn proportional credit with wrong picks
// cancelling right ones.
func answerCredit(q domain.Question, selection []int) float64 {
	correctTotal := q.CorrectCount()
	if correctTotal == 0 || len(selection) == 0 {
		return 0
	}

	if !q.Multiple {
		if len(selection) != 1 {
			return 0
		}
		idx := selection[0]
		if idx < 0 || idx >= len(q.Options) {
			return 0
		}
		if q.Options[idx].Correct {
			return 1
		}
		return 0
	}

	hits, misses := 0, 0
	seen := make(map[int]struct{}, len(selection))
	for _, idx := range selection {
		if idx < 0 || idx >= len(q.Options) {
			continue
		}
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		if q.Options[idx].Correct {
			hits++
		} else {
			misses++
		}
	}

	credit := float64(hits-misses) / float64(correctTotal)
	if credit < 0 {
		return 0
	}
	if credit > 1 {
		return 1
	}
	return credit
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
