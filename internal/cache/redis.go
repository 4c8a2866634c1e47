// Package cache keeps graded-exam question sets in Redis so a submit does not
// reload every question from the database.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/chipcloud/ielts-practice/internal/band"
	"github.com/chipcloud/ielts-practice/internal/config"
	"github.com/chipcloud/ielts-practice/internal/exam"
)

const keyPrefix = "ielts:qs:"

var modules = []band.Module{"", band.Reading, band.Listening, band.Writing, band.Speaking}

type Redis struct {
	rdb *redis.Client
	ttl time.Duration
	log *zap.Logger
}

// NewRedis connects and pings. Callers fall back to no cache on error.
func NewRedis(ctx context.Context, cfg config.RedisConfig, log *zap.Logger) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     50,
		MinIdleConns: 5,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return New(rdb, cfg.TTL, log), nil
}

func New(rdb *redis.Client, ttl time.Duration, log *zap.Logger) *Redis {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Redis{rdb: rdb, ttl: ttl, log: log}
}

func Key(examID string, module band.Module) string {
	if module == "" {
		return keyPrefix + examID + ":all"
	}
	return keyPrefix + examID + ":" + string(module)
}

func (c *Redis) Get(ctx context.Context, examID string, module band.Module) (exam.QuestionSet, bool) {
	b, err := c.rdb.Get(ctx, Key(examID, module)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn("question cache get", zap.String("exam_id", examID), zap.Error(err))
		}
		return exam.QuestionSet{}, false
	}
	var qs exam.QuestionSet
	if err := json.Unmarshal(b, &qs); err != nil {
		c.log.Warn("question cache decode", zap.String("exam_id", examID), zap.Error(err))
		return exam.QuestionSet{}, false
	}
	return qs, true
}

func (c *Redis) Set(ctx context.Context, qs exam.QuestionSet) {
	b, err := json.Marshal(qs)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, Key(qs.ExamID, qs.Module), b, c.ttl).Err(); err != nil {
		c.log.Warn("question cache set", zap.String("exam_id", qs.ExamID), zap.Error(err))
	}
}

func (c *Redis) Invalidate(ctx context.Context, examID string) {
	keys := make([]string, len(modules))
	for i, m := range modules {
		keys[i] = Key(examID, m)
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.log.Warn("question cache invalidate", zap.String("exam_id", examID), zap.Error(err))
	}
}

func (c *Redis) Ping(ctx context.Context) error { return c.rdb.Ping(ctx).Err() }

func (c *Redis) Close() error { return c.rdb.Close() }

var _ exam.QuestionCache = (*Redis)(nil)
