package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/okian/festrank/pkg/metrics"
)

// RedisIndex is a LeaderboardIndex on Redis sorted sets. Scores are stored
// negated so ZRANGE returns highest aggregates first with ties ordered by
// member ascending, matching TreapIndex.
type RedisIndex struct {
	client *redis.Client
	prefix string
	owned  bool
}

// NewRedisIndex connects to addr unless a client is injected.
func NewRedisIndex(ctx context.Context, addr string, opts ...RedisOption) (*RedisIndex, error) {
	r := &RedisIndex{prefix: "festrank:lb"}
	for _, opt := range opts {
		opt(r)
	}
	if r.client == nil {
		r.client = redis.NewClient(&redis.Options{Addr: addr})
		r.owned = true
	}
	if err := r.client.Ping(ctx).Err(); err != nil {
		if r.owned {
			_ = r.client.Close()
		}
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return r, nil
}

func (r *RedisIndex) key(instrument string) string {
	if k := Key(instrument); k != AllInstruments {
		return r.prefix + ":" + k
	}
	return r.prefix + ":all"
}

// Set implements LeaderboardIndex.Set.
func (r *RedisIndex) Set(ctx context.Context, userID, instrument string, score float64) error {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryUpdateLatency("redis", float64(time.Since(start).Microseconds())/1000)
	}()

	if Key(userID) == "" || Key(instrument) == "" {
		return ErrInvalidKey
	}
	z := &redis.Z{Score: -score, Member: member(userID, instrument)}
	pipe := r.client.TxPipeline()
	pipe.ZAdd(ctx, r.key(instrument), z)
	pipe.ZAdd(ctx, r.key(AllInstruments), z)
	card := pipe.ZCard(ctx, r.key(instrument))
	if _, err := pipe.Exec(ctx); err != nil {
		metrics.RecordErrorByComponent("repository", "redis_write")
		return fmt.Errorf("update redis zset: %w", err)
	}
	metrics.UpdateLeaderboardSize(Key(instrument), int(card.Val()))
	return nil
}

// Top implements LeaderboardIndex.Top.
func (r *RedisIndex) Top(ctx context.Context, instrument string, n int) ([]Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency("redis", float64(time.Since(start).Microseconds())/1000)
	}()

	if n < 1 {
		return nil, ErrInvalidLimit
	}
	zs, err := r.client.ZRangeWithScores(ctx, r.key(instrument), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read redis zset: %w", err)
	}
	out := make([]Entry, len(zs))
	for i, z := range zs {
		m, _ := z.Member.(string)
		user, inst := splitMember(m)
		rank := i + 1
		if i > 0 && z.Score == zs[i-1].Score {
			rank = out[i-1].Rank
		}
		out[i] = Entry{Rank: rank, UserID: user, Instrument: inst, Score: -z.Score}
	}
	return out, nil
}

// Rank implements LeaderboardIndex.Rank.
func (r *RedisIndex) Rank(ctx context.Context, userID, instrument string) (Entry, error) {
	key := r.key(instrument)
	neg, err := r.client.ZScore(ctx, key, member(userID, instrument)).Result()
	if errors.Is(err, redis.Nil) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("read redis score: %w", err)
	}
	above, err := r.client.ZCount(ctx, key, "-inf", fmt.Sprintf("(%s", formatScore(neg))).Result()
	if err != nil {
		return Entry{}, fmt.Errorf("count redis zset: %w", err)
	}
	return Entry{Rank: int(above) + 1, UserID: Key(userID), Instrument: Key(instrument), Score: -neg}, nil
}

// Count implements LeaderboardIndex.Count.
func (r *RedisIndex) Count(ctx context.Context, instrument string) (int, error) {
	n, err := r.client.ZCard(ctx, r.key(instrument)).Result()
	if err != nil {
		return 0, fmt.Errorf("count redis zset: %w", err)
	}
	return int(n), nil
}

// Close implements LeaderboardIndex.Close. Injected clients stay open.
func (r *RedisIndex) Close() error {
	if !r.owned {
		return nil
	}
	return r.client.Close()
}

func formatScore(v float64) string {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return "0"
	}
	return fmt.Sprintf("%.17g", v)
}
