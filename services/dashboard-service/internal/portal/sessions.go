package portal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrNoSession = errors.New("portal session not found")

// Session is what a portal bearer token resolves to.
type Session struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	ClientID  string    `json:"client_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionStore keeps live sessions in Redis keyed by token hash.
type SessionStore struct {
	rdb    redis.UniversalClient
	ttl    time.Duration
	prefix string
}

func NewSessionStore(rdb redis.UniversalClient, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionStore{rdb: rdb, ttl: ttl, prefix: "portal:session:"}
}

func (s *SessionStore) TTL() time.Duration { return s.ttl }

func (s *SessionStore) Put(ctx context.Context, hash string, sess Session) error {
	b, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.prefix+hash, b, time.Until(sess.ExpiresAt)).Err()
}

func (s *SessionStore) Get(ctx context.Context, hash string) (Session, error) {
	b, err := s.rdb.Get(ctx, s.prefix+hash).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, ErrNoSession
	}
	if err != nil {
		return Session{}, err
	}
	var sess Session
	if err := json.Unmarshal(b, &sess); err != nil {
		return Session{}, err
	}
	if !sess.ExpiresAt.After(time.Now()) {
		return Session{}, ErrNoSession
	}
	return sess, nil
}

func (s *SessionStore) Delete(ctx context.Context, hashes ...string) error {
	if len(hashes) == 0 {
		return nil
	}
	keys := make([]string, len(hashes))
	for i, h := range hashes {
		keys[i] = s.prefix + h
	}
	return s.rdb.Del(ctx, keys...).Err()
}
