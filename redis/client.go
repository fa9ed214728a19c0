package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	jsonpatch "github.com/evanphx/json-patch"
	"github.com/go-redis/redis/v8"
	"github.com/kelseyhightower/envconfig"
)

type DB int
type ReleaseLock func() error

type Client struct {
	client         redis.UniversalClient
	lockExpiration time.Duration
}

type Config struct {
	LockExpirationSeconds   int     `envconfig:"ENS_REDIS_LOCK_EXPIRATION" default:"3"`
	Host                    string  `envconfig:"ENS_REDIS_HOST" required:"true"`
	Port                    string  `envconfig:"ENS_REDIS_PORT" required:"true"`
	HASentinelPort          string  `envconfig:"ENS_REDIS_HA_SENTINEL_PORT" default:"26379"`
	HASentinelMasterName    string  `envconfig:"ENS_REDIS_HA_MASTER_NAME" default:"mymaster"`
	Password                string  `envconfig:"ENS_REDIS_AUTH_PASSWORD" default:"0"`
	AuthRequired            bool    `envconfig:"ENS_REDIS_AUTH_REQUIRED" default:"false"`
	HAMode                  bool    `envconfig:"ENS_REDIS_HA_MODE" default:"false"`
	HASentinelSocketTimeout float32 `envconfig:"ENS_REDIS_SOCKET_TIMEOUT" default:"0.5"`
}

func NewClient(db DB) (*Client, error) {
	cfg, err := readEnvironment()
	if err != nil {
		return nil, err
	}
	return NewClientFromConfig(cfg, db), nil
}

func NewClientFromConfig(cfg *Config, db DB) *Client {
	var client redis.UniversalClient
	if cfg.HAMode {
		client = CreateClusterClient(cfg, db)
	} else {
		client = CreateClient(cfg, db)
	}
	return &Client{
		client:         client,
		lockExpiration: time.Duration(cfg.LockExpirationSeconds) * time.Second,
	}
}

func CreateClusterClient(cfg *Config, db DB) *redis.ClusterClient {
	addr := fmt.Sprintf("%s:%s", cfg.Host, cfg.HASentinelPort)
	timeout := time.Duration(float64(cfg.HASentinelSocketTimeout) * float64(time.Second))
	options := redis.FailoverOptions{
		SentinelAddrs: []string{addr},
		ReadTimeout:   timeout,
		WriteTimeout:  timeout,
		MaxRetries:    6,
		DB:            int(db),
		MasterName:    cfg.HASentinelMasterName,
	}
	if cfg.AuthRequired {
		options.Password = cfg.Password
	}
	return redis.NewFailoverClusterClient(&options)
}

func CreateClient(cfg *Config, db DB) *redis.Client {
	addr := fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)
	options := redis.Options{
		Addr:       addr,
		MaxRetries: 6,
		DB:         int(db),
	}
	if cfg.AuthRequired {
		options.Password = cfg.Password
	}
	return redis.NewClient(&options)
}

// GetBytes reports false, without an error, for a missing key.
func (client *Client) GetBytes(ctx context.Context, redisKey string) ([]byte, bool, error) {
	b, err := client.client.Get(ctx, redisKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// SetBytes stores b; a zero ttl keeps the key forever.
func (client *Client) SetBytes(ctx context.Context, redisKey string, b []byte, ttl time.Duration) error {
	return client.client.Set(ctx, redisKey, b, ttl).Err()
}

func (client *Client) Exists(ctx context.Context, redisKey string) (bool, error) {
	n, err := client.client.Exists(ctx, redisKey).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (client *Client) GetDoc(ctx context.Context, redisKey string, doc interface{}) error {
	b, ok, err := client.GetBytes(ctx, redisKey)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("key %s: %w", redisKey, redis.Nil)
	}
	return json.Unmarshal(b, doc)
}

func (client *Client) SaveDoc(ctx context.Context, redisKey string, document interface{}) error {
	b, err := json.Marshal(document)
	if err != nil {
		return err
	}
	return client.SetBytes(ctx, redisKey, b, 0)
}

// MergeDoc applies an RFC 7386 merge patch to the stored document under the key lock and
// returns the merged document.
func (client *Client) MergeDoc(ctx context.Context, redisKey string, patch []byte) (merged []byte, err error) {
	releaseLock, err := client.Lock(ctx, redisKey)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = releaseLock()
			return
		}
		err = releaseLock()
	}()
	current, ok, err := client.GetBytes(ctx, redisKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("key %s: %w", redisKey, redis.Nil)
	}
	merged, err = jsonpatch.MergePatch(current, patch)
	if err != nil {
		return nil, fmt.Errorf("merging update into %s: %w", redisKey, err)
	}
	if err = client.SetBytes(ctx, redisKey, merged, 0); err != nil {
		return nil, err
	}
	return merged, nil
}

func (client *Client) Lock(ctx context.Context, redisKey string) (ReleaseLock, error) {
	lockCl := redislock.New(client.client)
	str := redislock.LimitRetry(redislock.LinearBackoff(time.Second), 20)
	lockKey := fmt.Sprintf("lock:%s", redisKey)
	lock, err := lockCl.Obtain(ctx, lockKey, client.lockExpiration, &redislock.Options{RetryStrategy: str})
	if err != nil {
		return nil, err
	}
	return func() error {
		return lock.Release(ctx)
	}, nil
}

func (client *Client) Ping(ctx context.Context) error {
	return client.client.Ping(ctx).Err()
}

func (client *Client) Close() error {
	return client.client.Close()
}

// IsMissing reports whether err comes from a missing key.
func IsMissing(err error) bool {
	return errors.Is(err, redis.Nil)
}

func readEnvironment() (*Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}
