package advice

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestScoreCache(t *testing.T) *RedisScoreCache {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisScoreCache(client, time.Minute)
}

func TestRedisScoreCacheRoundTrip(t *testing.T) {
	c := newTestScoreCache(t)
	ctx := context.Background()

	if _, ok := c.Get(ctx, "premise", "a1"); ok {
		t.Fatal("empty cache must miss")
	}

	want := NLIScores{Entail: 0.71, Contra: 0.05, Neutral: 0.24}
	c.Put(ctx, "premise", "a1", want)

	got, ok := c.Get(ctx, "premise", "a1")
	if !ok {
		t.Fatal("expected hit after put")
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}

	// Different premise, same advice id: distinct key.
	if _, ok := c.Get(ctx, "another premise", "a1"); ok {
		t.Error("different premise must miss")
	}
}

func TestRedisScoreCacheFailsOpen(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	c := NewRedisScoreCache(client, time.Minute)
	srv.Close()

	ctx := context.Background()
	// Every operation against a dead server is a miss, never a panic.
	c.Put(ctx, "p", "a", NLIScores{Entail: 1})
	if _, ok := c.Get(ctx, "p", "a"); ok {
		t.Error("dead backend must read as a miss")
	}
}

func TestGateUsesScoreCache(t *testing.T) {
	cacheSrv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: cacheSrv.Addr()})
	cache := NewRedisScoreCache(client, time.Minute)

	model := &fakeModel{scores: NLIScores{Entail: 0.8, Contra: 0.05}}
	g, _ := newGateWith(t, model)
	g.cache = cache

	it := item("cached", "Pause for a moment.", "de_escalate")
	first := g.Check(context.Background(), "premise", it, "general")
	second := g.Check(context.Background(), "premise", it, "general")

	if !first.OK || !second.OK {
		t.Fatalf("both checks should pass: %+v %+v", first, second)
	}
	if second.Reason != "nli_cached" {
		t.Errorf("second check should hit the cache, reason = %q", second.Reason)
	}
	if model.calls != 1 {
		t.Errorf("model called %d times, want 1", model.calls)
	}
}
