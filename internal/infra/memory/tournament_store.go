package memory

import (
	"context"
	"sync"
	"time"

	"tournament-service/internal/domain"
)

// TournamentStore is an in-memory implementation of app.TournamentStore,
// used when no database is configured and by tests.
type TournamentStore struct {
	loader QuestionLoader

	mu           sync.Mutex
	leaderboards map[string]persistedLeaderboard
	playerScores map[string]map[string]domain.Participant
}

type persistedLeaderboard struct {
	leaderboard domain.Leaderboard
	endedAt     time.Time
}

func NewTournamentStore(loader QuestionLoader) *TournamentStore {
	return &TournamentStore{
		loader:       loader,
		leaderboards: make(map[string]persistedLeaderboard),
		playerScores: make(map[string]map[string]domain.Participant),
	}
}

func (s *TournamentStore) LoadQuestions(ctx context.Context, uids []string) ([]domain.Question, error) {
	return s.loader.LoadQuestions(ctx, uids)
}

func (s *TournamentStore) PersistLeaderboard(_ context.Context, code string, leaderboard domain.Leaderboard, endedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaderboards[code] = persistedLeaderboard{leaderboard: leaderboard, endedAt: endedAt}
	return nil
}

func (s *TournamentStore) UpsertPlayerScore(_ context.Context, tournamentID string, participant domain.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playerScores[tournamentID] == nil {
		s.playerScores[tournamentID] = make(map[string]domain.Participant)
	}
	s.playerScores[tournamentID][participant.ID] = participant
	return nil
}

// Leaderboard returns the persisted leaderboard for a tournament, if any.
func (s *TournamentStore) Leaderboard(code string) (domain.Leaderboard, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.leaderboards[code]
	return entry.leaderboard, ok
}

// PlayerScore returns the persisted score row for one player, if any.
func (s *TournamentStore) PlayerScore(tournamentID, playerID string) (domain.Participant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.playerScores[tournamentID][playerID]
	return p, ok
}
