package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"tournament-service/internal/domain"
	"tournament-service/internal/infra/memory"
)

func TestQuestionRepositoryCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)

	loader := &countingLoader{
		QuestionLoader: memory.NewStaticQuestionLoader(map[string]domain.Question{
			"q1": sampleQuestion(),
		}),
	}
	repo := NewQuestionRepository(client, loader, time.Minute)

	questions, err := repo.GetQuestions(context.Background(), []string{"q1"})
	if err != nil {
		t.Fatalf("get questions: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}
	if len(questions) != 1 || questions[0].UID != "q1" {
		t.Fatalf("unexpected questions %+v", questions)
	}
	if !mr.Exists("question:q1") {
		t.Fatalf("expected question cached in redis")
	}

	// Second call should hit cache, loader not incremented.
	cached, err := repo.GetQuestions(context.Background(), []string{"q1"})
	if err != nil {
		t.Fatalf("get questions 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
	if cached[0].Options[1].Correct != true {
		t.Fatalf("correctness flags must survive the cache round trip")
	}
}

type countingLoader struct {
	memory.QuestionLoader
	calls int
}

func (l *countingLoader) LoadQuestions(ctx context.Context, uids []string) ([]domain.Question, error) {
	l.calls++
	return l.QuestionLoader.LoadQuestions(ctx, uids)
}

func sampleQuestion() domain.Question {
	return domain.Question{
		UID:  "q1",
		Text: "What is 2 + 2?",
		Options: []domain.Option{
			{Text: "3", Correct: false},
			{Text: "4", Correct: true},
		},
		TimeSeconds: 20,
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
