// Package store provides storage backends for GutCheck.
//
// This file implements a Redis-backed store. Conversation state and history
// are session-shaped, so they carry a TTL and expire with inactivity;
// profiles are stored without expiry.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gutcheck/gutcheck/internal/models"
	"github.com/redis/go-redis/v9"
)

// Redis key prefixes and the default conversation TTL.
const (
	redisStatePrefix   = "gutcheck:state:"
	redisHistoryPrefix = "gutcheck:history:"
	redisProfilePrefix = "gutcheck:profile:"
	defaultRedisTTL    = 24 * time.Hour
)

// RedisStore persists conversations in Redis with per-conversation TTLs.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a new Redis store and verifies connectivity.
func NewRedisStore(opts ...Option) (*RedisStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewRedisStore invoked", "addr_set", cfg.RedisAddr != "", "db", cfg.RedisDB)

	if cfg.RedisAddr == "" {
		slog.Error("RedisStore address not set")
		return nil, fmt.Errorf("redis address not set")
	}
	ttl := cfg.RedisTTL
	if ttl <= 0 {
		ttl = defaultRedisTTL
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	if err := client.Ping(context.Background()).Err(); err != nil {
		slog.Error("Redis ping failed", "error", err, "addr", cfg.RedisAddr)
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	slog.Debug("Redis connection established", "addr", cfg.RedisAddr, "ttl", ttl)

	return &RedisStore{client: client, ttl: ttl}, nil
}

// GetConversationState retrieves the live state for a conversation. A read
// refreshes the TTL so active conversations do not expire mid-session.
func (s *RedisStore) GetConversationState(conversationID string) (*models.ConversationState, error) {
	ctx := context.Background()
	key := redisStatePrefix + conversationID

	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		slog.Debug("RedisStore GetConversationState not found", "conversationID", conversationID)
		return nil, nil
	}
	if err != nil {
		slog.Error("RedisStore GetConversationState failed", "error", err, "conversationID", conversationID)
		return nil, fmt.Errorf("failed to get conversation state: %w", err)
	}
	s.client.Expire(ctx, key, s.ttl)

	var state models.ConversationState
	if err := json.Unmarshal([]byte(val), &state); err != nil {
		slog.Error("RedisStore GetConversationState unmarshal failed", "error", err, "conversationID", conversationID)
		return nil, fmt.Errorf("failed to unmarshal conversation state: %w", err)
	}
	return &state, nil
}

// SaveConversationState stores or updates the live state for a conversation.
func (s *RedisStore) SaveConversationState(state models.ConversationState) error {
	state.UpdatedAt = time.Now()
	stateJSON, err := json.Marshal(state)
	if err != nil {
		slog.Error("RedisStore SaveConversationState marshal failed", "error", err, "conversationID", state.ConversationID)
		return fmt.Errorf("failed to marshal conversation state: %w", err)
	}
	key := redisStatePrefix + state.ConversationID
	if err := s.client.Set(context.Background(), key, stateJSON, s.ttl).Err(); err != nil {
		slog.Error("RedisStore SaveConversationState failed", "error", err, "conversationID", state.ConversationID)
		return fmt.Errorf("failed to save conversation state: %w", err)
	}
	slog.Debug("RedisStore SaveConversationState succeeded", "conversationID", state.ConversationID, "stage", state.Stage)
	return nil
}

// DeleteConversationState removes the live state for a conversation.
func (s *RedisStore) DeleteConversationState(conversationID string) error {
	if err := s.client.Del(context.Background(), redisStatePrefix+conversationID).Err(); err != nil {
		slog.Error("RedisStore DeleteConversationState failed", "error", err, "conversationID", conversationID)
		return fmt.Errorf("failed to delete conversation state: %w", err)
	}
	return nil
}

// ListMessages returns the committed history in commit order.
func (s *RedisStore) ListMessages(conversationID string) ([]models.Message, error) {
	ctx := context.Background()
	key := redisHistoryPrefix + conversationID

	vals, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		slog.Error("RedisStore ListMessages failed", "error", err, "conversationID", conversationID)
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	s.client.Expire(ctx, key, s.ttl)

	var msgs []models.Message
	for _, v := range vals {
		var m models.Message
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			slog.Error("RedisStore ListMessages unmarshal failed", "error", err, "conversationID", conversationID)
			return nil, fmt.Errorf("failed to unmarshal message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// AppendMessage commits one message to the history.
func (s *RedisStore) AppendMessage(conversationID string, msg models.Message) error {
	msgJSON, err := json.Marshal(msg)
	if err != nil {
		slog.Error("RedisStore AppendMessage marshal failed", "error", err, "conversationID", conversationID)
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	ctx := context.Background()
	key := redisHistoryPrefix + conversationID
	if err := s.client.RPush(ctx, key, msgJSON).Err(); err != nil {
		slog.Error("RedisStore AppendMessage failed", "error", err, "conversationID", conversationID)
		return fmt.Errorf("failed to append message: %w", err)
	}
	s.client.Expire(ctx, key, s.ttl)
	return nil
}

// DeleteMessages removes the committed history for a conversation.
func (s *RedisStore) DeleteMessages(conversationID string) error {
	if err := s.client.Del(context.Background(), redisHistoryPrefix+conversationID).Err(); err != nil {
		slog.Error("RedisStore DeleteMessages failed", "error", err, "conversationID", conversationID)
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	return nil
}

// GetProfile retrieves a user profile, nil when none exists.
func (s *RedisStore) GetProfile(userID string) (*models.Profile, error) {
	val, err := s.client.Get(context.Background(), redisProfilePrefix+userID).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		slog.Error("RedisStore GetProfile failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	var profile models.Profile
	if err := json.Unmarshal([]byte(val), &profile); err != nil {
		slog.Error("RedisStore GetProfile unmarshal failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	return &profile, nil
}

// SaveProfile stores or updates a user profile. Profiles do not expire.
func (s *RedisStore) SaveProfile(profile models.Profile) error {
	profileJSON, err := json.Marshal(profile)
	if err != nil {
		slog.Error("RedisStore SaveProfile marshal failed", "error", err, "userID", profile.UserID)
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	if err := s.client.Set(context.Background(), redisProfilePrefix+profile.UserID, profileJSON, 0).Err(); err != nil {
		slog.Error("RedisStore SaveProfile failed", "error", err, "userID", profile.UserID)
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	slog.Debug("Closing Redis connection")
	return s.client.Close()
}
