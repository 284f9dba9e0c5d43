package app

import (
	"context"
	"math"
	"time"

	"tournament-service/internal/domain"
)

// Timer statuses mirrored to a linked dashboard.
const (
	mirrorPlay  = "play"
	mirrorPause = "pause"
	mirrorStop  = "stop"
)

// SetQuestionRequest selects the question a session should present next.
// TargetUID takes precedence over Index, which guards against reordering
// races between moderator view and session state.
type SetQuestionRequest struct {
	Index            int
	TargetUID        string
	DurationOverride float64 // seconds; 0 keeps the question's own allowance
	LinkedQuizID     string  // optional late pairing with a dashboard view
}

// SetQuestion resolves the target question, records it as the session's
// current question and broadcasts it. It never starts the countdown.
func (s *TournamentService) SetQuestion(ctx context.Context, code string, req SetQuestionRequest) error {
	sess, ok := s.registry.Get(code)
	if !ok {
		s.log.Error().Str("code", code).Msg("set_question on unknown session")
		return domain.ErrSessionNotFound
	}
	if sess.Deferred {
		s.log.Debug().Str("code", code).Msg("set_question ignored on deferred session")
		return nil
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	question, ok := s.resolveQuestionLocked(sess, req)
	if !ok {
		s.log.Error().Str("code", code).Str("uid", req.TargetUID).Int("index", req.Index).
			Msg("set_question target not in session")
		return domain.ErrQuestionNotFound
	}

	if req.LinkedQuizID != "" {
		sess.LinkedQuizID = req.LinkedQuizID
	}

	duration := effectiveDuration(req.DurationOverride, question)

	// A new question invalidates whatever countdown was outstanding.
	sess.cancelCountdownLocked()
	sess.currentUID = question.UID
	sess.currentDuration = duration
	sess.questionStart = time.Time{}
	sess.pausedRemaining = 0
	sess.pausedAt = time.Time{}
	sess.state = domain.TimerQuestionSet
	sess.asked[question.UID] = struct{}{}

	s.broadcastQuestionLocked(sess, question)
	s.log.Info().Str("code", code).Str("uid", question.UID).
		Float64("duration", duration.Seconds()).Msg("question set")
	return nil
}

func (s *TournamentService) resolveQuestionLocked(sess *Session, req SetQuestionRequest) (domain.Question, bool) {
	if req.TargetUID != "" {
		if q, ok := sess.questionByUIDLocked(req.TargetUID); ok {
			return q, true
		}
	}
	if req.Index >= 0 && req.Index < len(sess.questions) {
		return sess.questions[req.Index], true
	}
	return domain.Question{}, false
}

// SetTimer is the single authority over play, stop and duration edits.
//
//   - timeLeft == 0 stops the countdown (idempotent).
//   - timeLeft > 0 without forceActive edits the stored duration in place,
//     preserving the current state.
//   - forceActive starts or resumes the countdown; resuming from pause always
//     restores the remaining time captured at pause, a caller-supplied value
//     cannot extend it.
func (s *TournamentService) SetTimer(ctx context.Context, code string, timeLeft float64, forceActive bool) error {
	sess, ok := s.registry.Get(code)
	if !ok {
		s.log.Error().Str("code", code).Msg("set_timer on unknown session")
		return domain.ErrSessionNotFound
	}
	if sess.Deferred {
		s.log.Debug().Str("code", code).Msg("set_timer ignored on deferred session")
		return nil
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if timeLeft == 0 {
		if sess.state == domain.TimerStopped {
			// Repeated stops are no-ops, no duplicate broadcast.
			return nil
		}
		s.stopLocked(sess)
		return nil
	}
	if timeLeft < 0 {
		s.log.Warn().Str("code", code).Float64("time_left", timeLeft).Msg("rejecting negative timer duration")
		return domain.ErrInvalidDuration
	}

	requested := secondsToDuration(timeLeft)

	if !forceActive {
		switch sess.state {
		case domain.TimerPaused:
			sess.pausedRemaining = requested
			sess.currentDuration = requested
			s.broadcastTimerLocked(sess, requested)
			s.mirrorTimerLocked(sess, mirrorPause, requested)
		case domain.TimerActive:
			// Live edit: reset the elapsed-time reference and keep running.
			sess.currentDuration = requested
			sess.questionStart = s.clock.Now()
			s.startCountdownLocked(sess, requested)
			s.broadcastTimerLocked(sess, requested)
			s.mirrorTimerLocked(sess, mirrorPlay, requested)
		default:
			// Stopped (or not yet started): store the duration, stay put.
			sess.currentDuration = requested
			s.broadcastTimerLocked(sess, requested)
		}
		return nil
	}

	remaining := requested
	if sess.state == domain.TimerPaused {
		if diff := sess.pausedRemaining - requested; diff < -time.Millisecond || diff > time.Millisecond {
			s.log.Warn().Str("code", code).
				Float64("requested", timeLeft).
				Float64("paused_remaining", sess.pausedRemaining.Seconds()).
				Msg("resume overrides caller time with remaining captured at pause")
		}
		remaining = sess.pausedRemaining
	}
	if remaining <= 0 {
		s.log.Warn().Str("code", code).Msg("refusing to start timer without positive duration")
		return domain.ErrInvalidDuration
	}

	sess.currentDuration = remaining
	sess.questionStart = s.clock.Now()
	sess.pausedRemaining = 0
	sess.pausedAt = time.Time{}
	sess.state = domain.TimerActive

	// Late joiners and reconnecting clients need the question alongside the
	// start when the active question changed since the last run.
	if sess.currentUID != "" && sess.currentUID != sess.lastActiveUID {
		if q, ok := sess.questionByUIDLocked(sess.currentUID); ok {
			s.broadcastQuestionLocked(sess, q)
		}
		sess.lastActiveUID = sess.currentUID
	}

	s.startCountdownLocked(sess, remaining)
	s.broadcastTimerLocked(sess, remaining)
	s.mirrorTimerLocked(sess, mirrorPlay, remaining)
	s.log.Info().Str("code", code).Float64("time_left", remaining.Seconds()).Msg("timer started")
	return nil
}

// Pause freezes the countdown, capturing the remaining time with sub-second
// precision. Ignored unless the session is live and currently active.
func (s *TournamentService) Pause(ctx context.Context, code string, remainingOverride *float64) error {
	sess, ok := s.registry.Get(code)
	if !ok {
		s.log.Error().Str("code", code).Msg("pause on unknown session")
		return domain.ErrSessionNotFound
	}
	if sess.Deferred {
		s.log.Debug().Str("code", code).Msg("pause ignored on deferred session")
		return nil
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state != domain.TimerActive {
		s.log.Debug().Str("code", code).Stringer("state", sess.state).Msg("pause ignored")
		return nil
	}

	var remaining time.Duration
	if remainingOverride != nil {
		remaining = secondsToDuration(*remainingOverride)
	} else {
		remaining = sess.remainingLocked()
	}
	if remaining < 0 {
		remaining = 0
	}

	sess.state = domain.TimerPaused
	sess.pausedRemaining = remaining
	sess.pausedAt = s.clock.Now()
	sess.cancelCountdownLocked()

	s.broadcastTimerLocked(sess, remaining)
	if remaining > 0 {
		// Guard: never mirror a non-positive countdown to the dashboard.
		s.mirrorTimerLocked(sess, mirrorPause, remaining)
	}
	s.log.Info().Str("code", code).Float64("remaining", remaining.Seconds()).Msg("timer paused")
	return nil
}

// startCountdownLocked arms a fresh 1 Hz tick handle plus a deadline handle as
// a redundant expiry signal, cancelling whatever was outstanding first.
func (s *TournamentService) startCountdownLocked(sess *Session, duration time.Duration) {
	cd := newCountdown(s.clock, duration)
	sess.replaceCountdownLocked(cd)
	cd.run(
		func(cd *countdown) { s.onTick(sess, cd) },
		func(cd *countdown) { s.onDeadline(sess, cd) },
	)
}

func (s *TournamentService) onTick(sess *Session, cd *countdown) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	// A replaced countdown may still deliver one buffered tick; drop it.
	if sess.countdown != cd || sess.state != domain.TimerActive {
		return
	}
	remaining := sess.remainingLocked()
	if remaining <= 0 {
		s.expireLocked(sess)
		return
	}
	s.broadcastTimerLocked(sess, remaining)
}

func (s *TournamentService) onDeadline(sess *Session, cd *countdown) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.countdown != cd || sess.state != domain.TimerActive {
		return
	}
	s.expireLocked(sess)
}

// expireLocked handles countdown expiry exactly once per active run: the
// session transitions to Stopped and both audiences hear about it.
func (s *TournamentService) expireLocked(sess *Session) {
	s.log.Info().Str("code", sess.Code).Str("uid", sess.currentUID).Msg("countdown expired")
	s.stopLocked(sess)
}

// stopLocked performs the Stopped transition: cancel the countdown, zero the
// duration, clear pause bookkeeping, tell everyone.
func (s *TournamentService) stopLocked(sess *Session) {
	sess.cancelCountdownLocked()
	sess.currentDuration = 0
	sess.pausedRemaining = 0
	sess.pausedAt = time.Time{}
	sess.state = domain.TimerStopped
	s.broadcastTimerLocked(sess, 0)
	s.mirrorTimerLocked(sess, mirrorStop, 0)
}

func (s *TournamentService) broadcastTimerLocked(sess *Session, remaining time.Duration) {
	s.broadcast.ToSession(sess.Code, domain.Event{
		Type: domain.EventTimerUpdate,
		Payload: domain.TimerUpdate{
			TimeLeft: roundSeconds(remaining),
			State:    sess.state.String(),
		},
	})
}

func (s *TournamentService) broadcastQuestionLocked(sess *Session, q domain.Question) {
	s.broadcast.ToSession(sess.Code, domain.Event{
		Type: domain.EventQuestionPresented,
		Payload: domain.QuestionPresented{
			Question:   q,
			Index:      sess.questionIndexLocked(q.UID),
			Total:      len(sess.questions),
			Duration:   sess.currentDuration.Seconds(),
			State:      sess.state.String(),
			QuizLinked: sess.QuizLinked(),
		},
	})
}

// mirrorTimerLocked reflects a timer transition to the linked dashboard, but
// only when this session is the standalone timing authority.
func (s *TournamentService) mirrorTimerLocked(sess *Session, status string, remaining time.Duration) {
	if !sess.QuizLinked() || sess.DashboardDriven {
		return
	}
	s.bridge.MirrorTimer(sess.LinkedQuizID, sess.currentUID, status, roundSeconds(remaining), s.clock.Now())
}

func effectiveDuration(overrideSeconds float64, q domain.Question) time.Duration {
	if overrideSeconds > 0 {
		return secondsToDuration(overrideSeconds)
	}
	if q.TimeSeconds > 0 {
		return time.Duration(q.TimeSeconds) * time.Second
	}
	return domain.DefaultQuestionSeconds * time.Second
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

// roundSeconds keeps millisecond precision on the wire without float noise.
func roundSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*1000) / 1000
}
