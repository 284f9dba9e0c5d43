package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"tournament-service/internal/domain"
)

// QuestionLoader fetches question content from a backing store.
type QuestionLoader interface {
	LoadQuestions(ctx context.Context, uids []string) ([]domain.Question, error)
}

// QuestionRepository caches questions in Redis (one JSON value per uid) and
// falls back to a loader on cache miss. Keys: question:{uid}.
type QuestionRepository struct {
	client *redis.Client
	loader QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewQuestionRepository(client *redis.Client, loader QuestionLoader, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuestionRepository) GetQuestions(ctx context.Context, uids []string) ([]domain.Question, error) {
	cached, missing, err := r.fromCache(ctx, uids)
	if err == nil && len(missing) == 0 {
		return cached, nil
	}

	result, err, _ := r.sf.Do(batchKey(uids), func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		cached, missing, err := r.fromCache(ctx, uids)
		if err == nil && len(missing) == 0 {
			return cached, nil
		}

		questions, err := r.loader.LoadQuestions(ctx, uids)
		if err != nil {
			return nil, err
		}

		ttl := r.ttlWithJitter()
		pipe := r.client.Pipeline()
		for _, q := range questions {
			raw, err := json.Marshal(q)
			if err != nil {
				continue
			}
			pipe.Set(ctx, r.key(q.UID), raw, ttl)
		}
		_, _ = pipe.Exec(ctx)

		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

// fromCache resolves as many uids as possible from Redis, preserving order,
// and reports which ones missed.
func (r *QuestionRepository) fromCache(ctx context.Context, uids []string) ([]domain.Question, []string, error) {
	if len(uids) == 0 {
		return nil, nil, nil
	}
	keys := make([]string, len(uids))
	for i, uid := range uids {
		keys[i] = r.key(uid)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, uids, err
	}

	questions := make([]domain.Question, 0, len(uids))
	var missing []string
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			missing = append(missing, uids[i])
			continue
		}
		var q domain.Question
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			missing = append(missing, uids[i])
			continue
		}
		questions = append(questions, q)
	}
	return questions, missing, nil
}

func (r *QuestionRepository) key(uid string) string {
	return "question:" + uid
}

func (r *QuestionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
