package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/multiagent-chat/server/internal/agent/model"
	errx "github.com/multiagent-chat/server/internal/core/error"
)

const stmScanCount = 100

// RedisSTM stores the latest interaction per user and agent under stm:<user>:<agent>.
type RedisSTM struct {
	rdb redis.Cmdable
}

func NewRedisSTM(rdb redis.Cmdable) *RedisSTM {
	return &RedisSTM{rdb: rdb}
}

func stmKey(userID int64, agentID string) string {
	return fmt.Sprintf("stm:%d:%s", userID, agentID)
}

func (s *RedisSTM) Set(ctx context.Context, userID int64, agentID, value string, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, stmKey(userID, agentID), value, ttl).Err(); err != nil {
		return errx.WrapRedis(err)
	}
	return nil
}

// GetAll returns agent id -> value for every live STM key of userID.
func (s *RedisSTM) GetAll(ctx context.Context, userID int64) (map[string]string, error) {
	prefix := fmt.Sprintf("stm:%d:", userID)
	out := map[string]string{}

	var cursor uint64
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, prefix+"*", stmScanCount).Result()
		if err != nil {
			return nil, errx.WrapRedis(err)
		}
		for _, key := range keys {
			v, err := s.rdb.Get(ctx, key).Result()
			if errors.Is(err, redis.Nil) {
				// expired between SCAN and GET
				continue
			}
			if err != nil {
				return nil, errx.WrapRedis(err)
			}
			out[strings.TrimPrefix(key, prefix)] = v
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return out, nil
}

var _ model.ShortTermMemory = (*RedisSTM)(nil)
