package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const predictionKeyPrefix = "htr:prediction:"

// ErrCacheMiss is returned when no prediction is cached for a key.
var ErrCacheMiss = errors.New("prediction not cached")

type IRedis interface {
	SetPrediction(ctx context.Context, key string, text string, expiration time.Duration) error
	GetPrediction(ctx context.Context, key string) (string, error)
	Close() error
}

type redisClient struct {
	client *redis.Client
}

type Options struct {
	Address  string
	Password string
	DB       int
}

func New(opts Options) IRedis {
	logrus.Info(fmt.Sprintf("Connecting to Redis at %s...", opts.Address))

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Address,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		logrus.Error(fmt.Sprintf("Failed to connect to Redis: %v", err))
	} else {
		logrus.Info("Successfully connected to Redis")
	}

	return &redisClient{client: client}
}

// NewFromClient wraps an existing client.
func NewFromClient(client *redis.Client) IRedis {
	return &redisClient{client: client}
}

func (r *redisClient) SetPrediction(ctx context.Context, key string, text string, expiration time.Duration) error {
	logrus.Debug(fmt.Sprintf("Caching prediction for key %s with expiration %v", key, expiration))
	err := r.client.Set(ctx, predictionKeyPrefix+key, text, expiration).Err()
	if err != nil {
		logrus.Error(fmt.Sprintf("Error caching prediction for key %s: %v", key, err))
		return err
	}
	return nil
}

func (r *redisClient) GetPrediction(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, predictionKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		logrus.Debug(fmt.Sprintf("Prediction not cached for key %s", key))
		return "", ErrCacheMiss
	} else if err != nil {
		logrus.Error(fmt.Sprintf("Error getting prediction for key %s: %v", key, err))
		return "", err
	}
	logrus.Debug(fmt.Sprintf("Prediction cache hit for key %s", key))
	return val, nil
}

func (r *redisClient) Close() error {
	return r.client.Close()
}
