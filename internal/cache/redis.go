package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/creatorcast/backend/internal/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// channelListTTL bounds how long channel metadata from the platform is served
// from cache before a fresh fetch.
const channelListTTL = 10 * time.Minute

type RedisClient struct {
	client *redis.Client
	ctx    context.Context
}

// NewRedisClient creates a new Redis client
func NewRedisClient(addr, password string, db int) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisClient{
		client: client,
		ctx:    ctx,
	}, nil
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	return r.client.Close()
}

// Channel metadata cache

// SetChannelList caches a user's connected channel list.
func (r *RedisClient) SetChannelList(userID uuid.UUID, channels []models.Channel) error {
	key := fmt.Sprintf("channels:user:%s", userID.String())
	data, err := json.Marshal(channels)
	if err != nil {
		return err
	}
	return r.client.Set(r.ctx, key, data, channelListTTL).Err()
}

// GetChannelList returns the cached channel list, or (nil, nil) on a miss.
func (r *RedisClient) GetChannelList(userID uuid.UUID) ([]models.Channel, error) {
	key := fmt.Sprintf("channels:user:%s", userID.String())
	data, err := r.client.Get(r.ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var channels []models.Channel
	if err := json.Unmarshal([]byte(data), &channels); err != nil {
		return nil, err
	}
	return channels, nil
}

// InvalidateChannelList drops the cached list after connect/disconnect/refresh.
func (r *RedisClient) InvalidateChannelList(userID uuid.UUID) error {
	key := fmt.Sprintf("channels:user:%s", userID.String())
	return r.client.Del(r.ctx, key).Err()
}

// Pub/Sub

// PublishEvent publishes a domain event to the events channel so that other
// instances can fan it out to their websocket clients.
func (r *RedisClient) PublishEvent(event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return r.client.Publish(r.ctx, "events", data).Err()
}

// SubscribeToEvents subscribes to the events channel
func (r *RedisClient) SubscribeToEvents() *redis.PubSub {
	return r.client.Subscribe(r.ctx, "events")
}

// GetClient returns the underlying Redis client
func (r *RedisClient) GetClient() *redis.Client {
	return r.client
}

// AllowAction implements a Redis-backed token-bucket limiter per key (user+action).
// Returns true if the action is allowed, false if rate-limited.
func (r *RedisClient) AllowAction(userID uuid.UUID, action string, rate int, burst int) (bool, error) {
	key := fmt.Sprintf("rl:%s:%s", action, userID.String())
	// Lua script: manage tokens and last timestamp
	script := `
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local vals = redis.call('HMGET', key, 'tokens', 'last')
local tokens = tonumber(vals[1])
local last = tonumber(vals[2])
if tokens == nil then tokens = burst end
if last == nil then last = now end
local delta = math.max(0, now - last)
local new_tokens = math.min(burst, tokens + (delta * rate / 1000))
if new_tokens >= 1 then
	new_tokens = new_tokens - 1
	redis.call('HMSET', key, 'tokens', new_tokens, 'last', now)
	redis.call('PEXPIRE', key, 60000)
	return 1
else
	redis.call('HMSET', key, 'tokens', new_tokens, 'last', now)
	redis.call('PEXPIRE', key, 60000)
	return 0
end
`

	now := time.Now().UnixNano() / int64(time.Millisecond)
	res, err := r.client.Eval(r.ctx, script, []string{key}, rate, burst, now).Result()
	if err != nil {
		return false, err
	}
	// Eval returns int64 (1 or 0)
	switch v := res.(type) {
	case int64:
		return v == 1, nil
	case int:
		return v == 1, nil
	default:
		return false, fmt.Errorf("unexpected result from rate limiter: %T %v", res, res)
	}
}
