package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"imwithroc.com/ensemble/redis"
	"imwithroc.com/ensemble/utils"
)

const FeaturesDB redis.DB = 2

type Config struct {
	Enabled    bool `envconfig:"ENS_CACHE_ENABLED" default:"false"`
	TTLSeconds int  `envconfig:"ENS_CACHE_TTL_SECONDS" default:"604800"`
}

// Store is the byte level backend of FeatureCache; *redis.Client implements it.
type Store interface {
	GetBytes(ctx context.Context, key string) ([]byte, bool, error)
	SetBytes(ctx context.Context, key string, b []byte, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
	Lock(ctx context.Context, key string) (redis.ReleaseLock, error)
	Close() error
}

// FeatureCache keeps extracted feature vectors so reruns over the same corpus skip the
// backbone. Vectors are never overwritten: the first writer wins.
type FeatureCache struct {
	store Store
	ttl   time.Duration
}

func New(store Store, ttl time.Duration) *FeatureCache {
	return &FeatureCache{store: store, ttl: ttl}
}

// NewFromEnvironment returns nil, without an error, when caching is disabled.
func NewFromEnvironment() (*FeatureCache, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return nil, nil
	}
	client, err := redis.NewClient(FeaturesDB)
	if err != nil {
		return nil, err
	}
	return New(client, time.Duration(cfg.TTLSeconds)*time.Second), nil
}

func (c *FeatureCache) GetVector(ctx context.Context, key string) ([]float64, bool, error) {
	b, ok, err := c.store.GetBytes(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	v, ok := utils.DecodeVector(b)
	if !ok {
		return nil, false, fmt.Errorf("cached vector %s has %d bytes", key, len(b))
	}
	return v, true, nil
}

func (c *FeatureCache) SetVector(ctx context.Context, key string, v []float64) (err error) {
	releaseLock, err := c.store.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = releaseLock()
			return
		}
		err = releaseLock()
	}()
	exists, err := c.store.Exists(ctx, key)
	if err != nil || exists {
		return err
	}
	return c.store.SetBytes(ctx, key, utils.EncodeVector(v), c.ttl)
}

func (c *FeatureCache) Close() error {
	return c.store.Close()
}
