package advice

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisScoreCache shares NLI verdicts across stateless processes so a fleet
// never re-scores identical (premise, advice) pairs. It is purely an
// optimization: every Redis error is treated as a miss and the caller falls
// through to the model.
type RedisScoreCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisScoreCache wraps a Redis client. ttl ≤ 0 defaults to 30 minutes.
func NewRedisScoreCache(client *redis.Client, ttl time.Duration) *RedisScoreCache {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisScoreCache{client: client, ttl: ttl, prefix: "tonecore:nli:"}
}

func (c *RedisScoreCache) key(premise, adviceID string) string {
	sum := sha256.Sum256([]byte(premise))
	return c.prefix + hex.EncodeToString(sum[:16]) + ":" + adviceID
}

// Get implements ScoreCache.
func (c *RedisScoreCache) Get(ctx context.Context, premise, adviceID string) (NLIScores, bool) {
	data, err := c.client.Get(ctx, c.key(premise, adviceID)).Bytes()
	if err != nil {
		return NLIScores{}, false
	}
	var scores NLIScores
	if err := json.Unmarshal(data, &scores); err != nil {
		return NLIScores{}, false
	}
	return scores, true
}

// Put implements ScoreCache; failures are ignored.
func (c *RedisScoreCache) Put(ctx context.Context, premise, adviceID string, scores NLIScores) {
	data, err := json.Marshal(scores)
	if err != nil {
		return
	}
	c.client.Set(ctx, c.key(premise, adviceID), data, c.ttl)
}
