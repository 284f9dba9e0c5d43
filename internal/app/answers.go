package app

import (
	"context"
	"sort"

	"tournament-service/internal/domain"
)

// Join registers or refreshes a participant and maps the submitting
// connection to the player. The connection mapping is ephemeral; it is
// rebuilt on every reconnect and never persisted.
func (s *TournamentService) Join(ctx context.Context, code, connID, playerID, displayName, avatar string) (domain.Leaderboard, error) {
	sess, ok := s.registry.Get(code)
	if !ok {
		return domain.Leaderboard{}, domain.ErrSessionNotFound
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if p, ok := sess.participants[playerID]; ok {
		p.DisplayName = displayName
		p.Avatar = avatar
	} else {
		sess.participants[playerID] = &domain.Participant{
			ID:              playerID,
			DisplayName:     displayName,
			Avatar:          avatar,
			ScoredQuestions: make(map[string]float64),
		}
	}
	sess.connToPlayer[connID] = playerID

	s.log.Info().Str("code", code).Str("player", playerID).Msg("participant joined")
	return s.leaderboardLocked(sess), nil
}

// Leave drops the connection mapping; the participant and their scores stay
// so a reconnect picks up where they left off.
func (s *TournamentService) Leave(ctx context.Context, code, connID string) {
	sess, ok := s.registry.Get(code)
	if !ok {
		return
	}
	sess.mu.Lock()
	delete(sess.connToPlayer, connID)
	sess.mu.Unlock()
}

// SubmitAnswer validates a player's answer against the countdown state,
// scores it immediately when admitted and answers the submitter with a
// receipt. Rejections travel on the receipt channel; structural problems are
// logged and the call abandoned without reply.
func (s *TournamentService) SubmitAnswer(ctx context.Context, code, connID string, sub domain.AnswerSubmission) {
	sess, ok := s.registry.Get(code)
	if !ok {
		s.log.Error().Str("code", code).Msg("answer for unknown session")
		return
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	playerID, ok := sess.connToPlayer[connID]
	if !ok {
		// Stale socket or duplicate network artifact; drop silently.
		s.log.Debug().Str("code", code).Str("conn", connID).Msg("answer from unmapped connection")
		return
	}

	if sess.currentUID == "" {
		s.log.Debug().Str("code", code).Str("player", playerID).Msg("answer with no active question")
		return
	}
	if sub.QuestionUID != sess.currentUID {
		s.log.Debug().Str("code", code).Str("got", sub.QuestionUID).Str("want", sess.currentUID).
			Msg("answer for inactive question")
		return
	}
	question, ok := sess.questionByUIDLocked(sess.currentUID)
	if !ok {
		s.log.Error().Str("code", code).Str("uid", sess.currentUID).Msg("active question missing from session")
		return
	}

	allowed := sess.currentDuration
	if allowed <= 0 {
		allowed = effectiveDuration(0, question)
	}
	if sess.questionStart.IsZero() {
		s.sendReceipt(connID, false, domain.RejectNotStarted, "question not started")
		return
	}

	if sess.state == domain.TimerStopped {
		s.sendReceipt(connID, false, domain.RejectStopped, "tournament question is stopped")
		return
	}

	elapsed := s.clock.Since(sess.questionStart)
	paced := sess.state == domain.TimerPaused || sess.Deferred
	if !paced {
		// Server clock check with a fixed grace period, then the client's own
		// reported elapsed time without one.
		if elapsed > allowed+domain.AnswerGracePeriod {
			s.sendReceipt(connID, false, domain.RejectLate, "answer arrived after the allowed time")
			return
		}
		if !sub.ClientTime.IsZero() && sub.ClientTime.Sub(sess.questionStart) > allowed {
			s.sendReceipt(connID, false, domain.RejectLate, "answer arrived after the allowed time")
			return
		}
	}

	// Last write per player per question wins.
	if sess.answers[playerID] == nil {
		sess.answers[playerID] = make(map[string]domain.Answer)
	}
	sess.answers[playerID][question.UID] = domain.Answer{
		Selection:  sub.Selection,
		ClientTime: sub.ClientTime,
	}

	participant, ok := sess.participants[playerID]
	if !ok {
		s.log.Error().Str("code", code).Str("player", playerID).Msg("mapped player missing from participants")
		return
	}

	// Recomputed, never summed: a re-answer overwrites the previous score for
	// this question and the total is rebuilt from the per-question map.
	score := s.scorer.Score(question, sub.Selection, elapsed, allowed, len(sess.questions))
	participant.ScoredQuestions[question.UID] = score
	participant.Score = sumScores(participant.ScoredQuestions)

	s.sendReceipt(connID, true, "", "answer recorded")
	s.log.Debug().Str("code", code).Str("player", playerID).Str("uid", question.UID).
		Float64("score", score).Msg("answer scored")

	if sess.QuizLinked() {
		dist := s.distributionLocked(sess, question)
		s.bridge.RelayDistribution(sess.LinkedQuizID, dist)
	}
}

func (s *TournamentService) sendReceipt(connID string, accepted bool, reason, message string) {
	s.broadcast.ToConnection(connID, domain.Event{
		Type: domain.EventAnswerReceipt,
		Payload: domain.AnswerReceipt{
			Accepted: accepted,
			Reason:   reason,
			Message:  message,
		},
	})
}

// distributionLocked aggregates the latest answers for the active question
// into a per-option percentage view, counting each respondent once.
func (s *TournamentService) distributionLocked(sess *Session, q domain.Question) domain.AnswerDistribution {
	counts := make([]int, len(q.Options))
	respondents := 0
	for _, byQuestion := range sess.answers {
		answer, ok := byQuestion[q.UID]
		if !ok {
			continue
		}
		respondents++
		for _, idx := range answer.Selection {
			if idx >= 0 && idx < len(counts) {
				counts[idx]++
			}
		}
	}

	percentages := make([]float64, len(counts))
	if respondents > 0 {
		for i, c := range counts {
			percentages[i] = round2(100 * float64(c) / float64(respondents))
		}
	}
	return domain.AnswerDistribution{
		QuestionUID:      q.UID,
		Percentages:      percentages,
		TotalRespondents: respondents,
	}
}

func (s *TournamentService) leaderboardLocked(sess *Session) domain.Leaderboard {
	entries := make([]domain.LeaderboardEntry, 0, len(sess.participants))
	for _, p := range sess.participants {
		entries = append(entries, domain.LeaderboardEntry{
			PlayerID:    p.ID,
			DisplayName: p.DisplayName,
			Avatar:      p.Avatar,
			Score:       p.Score,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].DisplayName < entries[j].DisplayName
	})
	return domain.Leaderboard{
		Code:      sess.Code,
		Entries:   entries,
		UpdatedAt: s.clock.Now(),
	}
}

func sumScores(scores map[string]float64) float64 {
	total := 0.0
	for _, v := range scores {
		total += v
	}
	return total
}
