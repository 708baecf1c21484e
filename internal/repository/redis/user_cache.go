// Package redis provides a read-through cache in front of the Scylla user
// store. Cache entries are invalidated on every write so the auth engines
// always observe their own updates.
package redis

import (
	"context"
	"encoding/json"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"phone-auth-service/internal/models"
	"phone-auth-service/internal/util"
)

// UserStore is the contract of the wrapped store; satisfied by
// scylla.UserRepository.
type UserStore interface {
	FindByPhone(ctx context.Context, phone string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
}

type CachedUserStore struct {
	inner  UserStore
	client *goredis.Client
	ttl    time.Duration
}

func NewCachedUserStore(inner UserStore, client *goredis.Client, ttl time.Duration) *CachedUserStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedUserStore{
		inner:  inner,
		client: client,
		ttl:    ttl,
	}
}

func userIDKey(id string) string       { return "user:id:" + id }
func userPhoneKey(phone string) string { return "user:phone:" + phone }

func (s *CachedUserStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	if cached := s.getCached(ctx, userIDKey(id)); cached != nil {
		return cached, nil
	}

	user, err := s.inner.FindByID(ctx, id)
	if err != nil || user == nil {
		return user, err
	}

	s.setCached(ctx, user)
	return user, nil
}

func (s *CachedUserStore) FindByPhone(ctx context.Context, phone string) (*models.User, error) {
	// Phone key holds the user id; the record itself lives under the id key.
	if id, err := s.client.Get(ctx, userPhoneKey(phone)).Result(); err == nil && id != "" {
		if cached := s.getCached(ctx, userIDKey(id)); cached != nil {
			return cached, nil
		}
	}

	user, err := s.inner.FindByPhone(ctx, phone)
	if err != nil || user == nil {
		return user, err
	}

	s.setCached(ctx, user)
	return user, nil
}

func (s *CachedUserStore) Create(ctx context.Context, user *models.User) error {
	if err := s.inner.Create(ctx, user); err != nil {
		return err
	}
	s.invalidate(ctx, user)
	return nil
}

func (s *CachedUserStore) Update(ctx context.Context, user *models.User) error {
	if err := s.inner.Update(ctx, user); err != nil {
		return err
	}
	s.invalidate(ctx, user)
	return nil
}

func (s *CachedUserStore) getCached(ctx context.Context, key string) *models.User {
	payload, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil
	}
	user := &models.User{}
	if err := json.Unmarshal(payload, user); err != nil {
		util.Warn("dropping undecodable user cache entry",
			zap.String("key", key),
			zap.Error(err))
		_ = s.client.Del(ctx, key).Err()
		return nil
	}
	return user
}

func (s *CachedUserStore) setCached(ctx context.Context, user *models.User) {
	payload, err := json.Marshal(user)
	if err != nil {
		return
	}
	pipe := s.client.Pipeline()
	pipe.Set(ctx, userIDKey(user.ID), payload, s.ttl)
	pipe.Set(ctx, userPhoneKey(user.Phone), user.ID, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		util.Warn("failed to populate user cache",
			zap.String("user_id", user.ID),
			zap.Error(err))
	}
}

func (s *CachedUserStore) invalidate(ctx context.Context, user *models.User) {
	if err := s.client.Del(ctx, userIDKey(user.ID), userPhoneKey(user.Phone)).Err(); err != nil {
		util.Warn("failed to invalidate user cache",
			zap.String("user_id", user.ID),
			zap.Error(err))
	}
}
