package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionKeyFmt = "session:%s"

// SessionTTL is the inactivity timeout; every authenticated request refreshes it.
const SessionTTL = 30 * time.Minute

var ErrNoSession = errors.New("session not found")

// SessionStore keeps one active token per user.
type SessionStore interface {
	Set(ctx context.Context, userID, token string, ttl time.Duration) error
	Get(ctx context.Context, userID string) (string, error)
	Delete(ctx context.Context, userID string) error
	// OnlineCount is the number of users with a live session.
	OnlineCount(ctx context.Context) (int, error)
}

type RedisSessions struct {
	rdb *redis.Client
}

func NewRedisSessions(rdb *redis.Client) *RedisSessions {
	return &RedisSessions{rdb: rdb}
}

func (s *RedisSessions) Set(ctx context.Context, userID, token string, ttl time.Duration) error {
	return s.rdb.Set(ctx, fmt.Sprintf(sessionKeyFmt, userID), token, ttl).Err()
}

func (s *RedisSessions) Get(ctx context.Context, userID string) (string, error) {
	tok, err := s.rdb.Get(ctx, fmt.Sprintf(sessionKeyFmt, userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNoSession
	}
	return tok, err
}

func (s *RedisSessions) Delete(ctx context.Context, userID string) error {
	return s.rdb.Del(ctx, fmt.Sprintf(sessionKeyFmt, userID)).Err()
}

func (s *RedisSessions) OnlineCount(ctx context.Context) (int, error) {
	var cursor uint64
	userIDs := make(map[string]struct{})
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, "session:*", 100).Result()
		if err != nil {
			return 0, err
		}
		for _, key := range keys {
			parts := strings.SplitN(key, ":", 2)
			if len(parts) == 2 && parts[0] == "session" && parts[1] != "" {
				userIDs[parts[1]] = struct{}{}
			}
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	return len(userIDs), nil
}

type memorySession struct {
	token   string
	expires time.Time
}

// MemorySessions is a single-process SessionStore for running without Redis.
type MemorySessions struct {
	mu   sync.RWMutex
	byID map[string]memorySession
	now  func() time.Time
}

func NewMemorySessions() *MemorySessions {
	return &MemorySessions{byID: make(map[string]memorySession), now: time.Now}
}

func (m *MemorySessions) Set(_ context.Context, userID, token string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[userID] = memorySession{token: token, expires: m.now().Add(ttl)}
	return nil
}

func (m *MemorySessions) Get(_ context.Context, userID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byID[userID]
	if !ok || !m.now().Before(s.expires) {
		return "", ErrNoSession
	}
	return s.token, nil
}

func (m *MemorySessions) Delete(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, userID)
	return nil
}

func (m *MemorySessions) OnlineCount(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for id, s := range m.byID {
		if !now.Before(s.expires) {
			delete(m.byID, id)
		}
	}
	return len(m.byID), nil
}
