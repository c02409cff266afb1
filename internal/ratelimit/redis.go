package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	r "gopkg.in/redis.v5"
)

const prefix = "_RATELIMIT_"

// RedisWindow is a sliding log limiter kept in a Redis sorted set per key, shared by
// every instance pointing at the same Redis.
type RedisWindow struct {
	client *r.Client
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewRedisWindow(url string, limit int, window time.Duration) (*RedisWindow, error) {
	opts, err := r.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisWindow{client: r.NewClient(opts), limit: limit, window: window, now: time.Now}, nil
}

// Ping checks connectivity.
func (w *RedisWindow) Ping() error {
	return w.client.Ping().Err()
}

func (w *RedisWindow) Close() error {
	return w.client.Close()
}

// Allow adds the request to the key's set and removes it again when the limit is exceeded.
func (w *RedisWindow) Allow(_ context.Context, key string) (bool, error) {
	now := w.now()
	redisKey := prefix + key
	member := strconv.FormatInt(now.UnixNano(), 10) + "-" + uuid.NewString()
	cutoff := strconv.FormatInt(now.Add(-w.window).UnixNano(), 10)

	var card *r.IntCmd
	_, err := w.client.TxPipelined(func(pipe *r.Pipeline) error {
		pipe.ZRemRangeByScore(redisKey, "-inf", cutoff)
		pipe.ZAdd(redisKey, r.Z{Score: float64(now.UnixNano()), Member: member})
		card = pipe.ZCard(redisKey)
		pipe.Expire(redisKey, w.window)
		return nil
	})
	if err != nil {
		return false, err
	}
	if card.Val() > int64(w.limit) {
		if err := w.client.ZRem(redisKey, member).Err(); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}
