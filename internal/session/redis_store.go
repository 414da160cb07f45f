package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"proposaldesk/api/internal/rbac"
)

// ErrNotFound is returned when a refresh token or draft is missing or expired.
var ErrNotFound = errors.New("session: not found or expired")

// TokenData holds the data stored for each refresh token
type TokenData struct {
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Draft is an unsubmitted proposal payload cached per user.
type Draft struct {
	UniqueID  string          `json:"unique_id"`
	UserID    string          `json:"user_id"`
	Payload   json.RawMessage `json:"payload"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// RedisStore keeps refresh tokens and drafts in Redis.
type RedisStore struct {
	client      *redis.Client
	prefix      string
	draftPrefix string
	draftTTL    time.Duration
}

// NewRedisStore connects to redisURL and pings it.
func NewRedisStore(redisURL string, draftTTL time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, draftTTL), nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client
func NewRedisStoreWithClient(client *redis.Client, draftTTL time.Duration) *RedisStore {
	if draftTTL <= 0 {
		draftTTL = 7 * 24 * time.Hour
	}
	return &RedisStore{
		client:      client,
		prefix:      "refresh:",
		draftPrefix: "draft:",
		draftTTL:    draftTTL,
	}
}

func (s *RedisStore) key(tokenHash string) string {
	return s.prefix + tokenHash
}

func (s *RedisStore) draftKey(userID, uniqueID string) string {
	return s.draftPrefix + userID + ":" + uniqueID
}

// SaveRefreshSession stores a refresh token for sess until expiresAt.
func (s *RedisStore) SaveRefreshSession(ctx context.Context, tokenHash string, sess Session, expiresAt time.Time) error {
	data := TokenData{
		UserID:    sess.UserID,
		UserName:  sess.UserName,
		Role:      string(sess.Role),
		CreatedAt: time.Now(),
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal token data: %w", err)
	}

	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}

	if err := s.client.Set(ctx, s.key(tokenHash), jsonData, ttl).Err(); err != nil {
		return fmt.Errorf("save refresh token: %w", err)
	}
	return nil
}

// LookupRefreshSession returns the identity a refresh token was issued to.
func (s *RedisStore) LookupRefreshSession(ctx context.Context, tokenHash string) (Session, error) {
	jsonData, err := s.client.Get(ctx, s.key(tokenHash)).Result()
	if err == redis.Nil {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("lookup refresh token: %w", err)
	}

	var data TokenData
	if err := json.Unmarshal([]byte(jsonData), &data); err != nil {
		return Session{}, fmt.Errorf("unmarshal token data: %w", err)
	}

	return New(data.UserID, data.UserName, rbac.Normalize(data.Role)), nil
}

// RevokeRefreshSession deletes a refresh token
func (s *RedisStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	if err := s.client.Del(ctx, s.key(tokenHash)).Err(); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// SaveDraft caches an unsubmitted payload for the draft TTL.
func (s *RedisStore) SaveDraft(ctx context.Context, draft Draft) error {
	if draft.UpdatedAt.IsZero() {
		draft.UpdatedAt = time.Now().UTC()
	}
	jsonData, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("marshal draft: %w", err)
	}
	if err := s.client.Set(ctx, s.draftKey(draft.UserID, draft.UniqueID), jsonData, s.draftTTL).Err(); err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

// LoadDraft returns the cached draft for a user and proposal.
func (s *RedisStore) LoadDraft(ctx context.Context, userID, uniqueID string) (Draft, error) {
	jsonData, err := s.client.Get(ctx, s.draftKey(userID, uniqueID)).Bytes()
	if err == redis.Nil {
		return Draft{}, ErrNotFound
	}
	if err != nil {
		return Draft{}, fmt.Errorf("load draft: %w", err)
	}
	var draft Draft
	if err := json.Unmarshal(jsonData, &draft); err != nil {
		return Draft{}, fmt.Errorf("unmarshal draft: %w", err)
	}
	return draft, nil
}

// DeleteDraft drops a cached draft, typically after a successful submit.
func (s *RedisStore) DeleteDraft(ctx context.Context, userID, uniqueID string) error {
	if err := s.client.Del(ctx, s.draftKey(userID, uniqueID)).Err(); err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
