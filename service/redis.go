package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/joyzh1029/ALG/config"
	"github.com/joyzh1029/ALG/model"
	"github.com/joyzh1029/ALG/utils"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisService caches frame results keyed by the upload's MD5, so repeated
// uploads of the same image skip inference entirely.
type RedisService struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisService(cfg *config.RedisConfig) *RedisService {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &RedisService{
		client: client,
		ttl:    cfg.TTL,
	}
}

func (s *RedisService) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// GetFrameResult returns the cached result for a frame hash, or nil on a
// cache miss.
func (s *RedisService) GetFrameResult(ctx context.Context, key string) (*model.FrameResult, error) {
	data, err := s.client.Get(ctx, "frame:"+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var result model.FrameResult
	if err := json.Unmarshal(data, &result); err != nil {
		utils.Logger.Error("failed to unmarshal cached frame result",
			zap.String("key", key), zap.Error(err))
		return nil, err
	}

	return &result, nil
}

// SetFrameResult stores a frame result under its image hash with the
// configured TTL.
func (s *RedisService) SetFrameResult(ctx context.Context, key string, result *model.FrameResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}

	return s.client.Set(ctx, "frame:"+key, data, s.ttl).Err()
}

func (s *RedisService) Close() error {
	return s.client.Close()
}
