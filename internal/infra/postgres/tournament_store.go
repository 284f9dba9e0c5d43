package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"tournament-service/internal/domain"
)

// TournamentStore implements app.TournamentStore on Postgres. Questions live
// as JSONB rows; finalized leaderboards and per-player score rows are written
// once per tournament.
type TournamentStore struct {
	pool *pgxpool.Pool
}

func NewTournamentStore(pool *pgxpool.Pool) *TournamentStore {
	return &TournamentStore{pool: pool}
}

func (s *TournamentStore) LoadQuestions(ctx context.Context, uids []string) ([]domain.Question, error) {
	rows, err := s.pool.Query(ctx, `SELECT uid, data FROM questions WHERE uid = ANY($1)`, uids)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	byUID := make(map[string]domain.Question, len(uids))
	for rows.Next() {
		var uid string
		var raw []byte
		if err := rows.Scan(&uid, &raw); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		var q domain.Question
		if err := json.Unmarshal(raw, &q); err != nil {
			return nil, fmt.Errorf("unmarshal question %s: %w", uid, err)
		}
		q.UID = uid
		byUID[uid] = q
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}

	// Preserve the requested ordering; the sequence defines ordinal position.
	out := make([]domain.Question, 0, len(uids))
	for _, uid := range uids {
		q, ok := byUID[uid]
		if !ok {
			return nil, fmt.Errorf("load questions: %s: %w", uid, domain.ErrQuestionNotFound)
		}
		out = append(out, q)
	}
	return out, nil
}

func (s *TournamentStore) PersistLeaderboard(ctx context.Context, code string, leaderboard domain.Leaderboard, endedAt time.Time) error {
	raw, err := json.Marshal(leaderboard.Entries)
	if err != nil {
		return fmt.Errorf("marshal leaderboard: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO tournaments (code, leaderboard, status, ended_at)
		VALUES ($1, $2, 'ended', $3)
		ON CONFLICT (code) DO UPDATE
		SET leaderboard = EXCLUDED.leaderboard,
		    status = EXCLUDED.status,
		    ended_at = EXCLUDED.ended_at`,
		code, raw, endedAt)
	if err != nil {
		return fmt.Errorf("persist leaderboard: %w", err)
	}
	return nil
}

func (s *TournamentStore) UpsertPlayerScore(ctx context.Context, tournamentID string, participant domain.Participant) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tournament_scores (tournament_code, player_id, display_name, score)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tournament_code, player_id) DO UPDATE
		SET display_name = EXCLUDED.display_name,
		    score = EXCLUDED.score`,
		tournamentID, participant.ID, participant.DisplayName, participant.Score)
	if err != nil {
		return fmt.Errorf("upsert player score: %w", err)
	}
	return nil
}
