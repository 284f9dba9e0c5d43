package app

import (
	"context"

	"tournament-service/internal/domain"
)

// ForceEnd finalizes a tournament: it cancels any live countdown, computes
// the scaled leaderboard, persists it, broadcasts the results and a redirect,
// and removes the session from the registry. Safe to call on an already
// removed session; it logs and returns.
func (s *TournamentService) ForceEnd(ctx context.Context, code string) {
	sess, ok := s.registry.Get(code)
	if !ok {
		s.log.Info().Str("code", code).Msg("force_end on missing session, nothing to do")
		return
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.cancelCountdownLocked()
	sess.state = domain.TimerStopped

	// Scale by asked-vs-total so a tournament cut short does not penalize
	// everyone who never saw the remaining questions.
	scale := 1.0
	if asked := len(sess.asked); asked > 0 && len(sess.questions) > 0 {
		scale = float64(len(sess.questions)) / float64(asked)
	}
	for _, p := range sess.participants {
		p.Score = round2(p.Score * scale)
	}
	leaderboard := s.leaderboardLocked(sess)
	endedAt := s.clock.Now()

	if err := s.store.PersistLeaderboard(ctx, code, leaderboard, endedAt); err != nil {
		// Players still get their results even when the durable write failed.
		s.log.Error().Err(err).Str("code", code).Msg("persist leaderboard failed")
	}

	s.broadcast.ToSession(code, domain.Event{
		Type:    domain.EventTournamentEnded,
		Payload: domain.TournamentEnded{Leaderboard: leaderboard},
	})
	s.broadcast.ToSession(code, domain.Event{
		Type:    domain.EventRedirect,
		Payload: domain.Redirect{Code: code},
	})

	if !sess.Deferred {
		for _, p := range sess.participants {
			if p.ID == "" {
				continue
			}
			if err := s.store.UpsertPlayerScore(ctx, code, *p); err != nil {
				s.log.Error().Err(err).Str("code", code).Str("player", p.ID).Msg("persist player score failed")
			}
		}
	}

	if sess.QuizLinked() {
		s.bridge.Forget(sess.LinkedQuizID)
	}
	s.registry.Remove(code)
	s.log.Info().Str("code", code).Int("participants", len(sess.participants)).Msg("tournament ended")
}
