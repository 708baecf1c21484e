package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"phone-auth-service/internal/bucketing"
	"phone-auth-service/internal/models"
	"phone-auth-service/internal/util"
)

// UserRepository persists accounts in the users table, partitioned by murmur3
// bucket of the user id, with a users_by_phone lookup table for phone login.
type UserRepository struct {
	client    *Client
	bucketing *bucketing.Manager
}

func NewUserRepository(client *Client, bucketing *bucketing.Manager) *UserRepository {
	return &UserRepository{
		client:    client,
		bucketing: bucketing,
	}
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	user := &models.User{}
	bucket := r.bucketing.UserBucket(id)

	query := r.client.Prepared.GetUserByID.Bind(bucket, id).WithContext(ctx)
	err := query.Scan(&user.ID, &user.Phone, &user.PasswordHash, &user.Status,
		&user.ErrorLoginCount, &user.RefreshToken, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, nil
		}
		util.Error("failed to get user by id",
			zap.String("user_id", id),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}

	return user, nil
}

func (r *UserRepository) FindByPhone(ctx context.Context, phone string) (*models.User, error) {
	var bucket int
	var id string

	query := r.client.Prepared.GetUserByPhone.Bind(phone).WithContext(ctx)
	if err := query.Scan(&bucket, &id); err != nil {
		if err == gocql.ErrNotFound {
			return nil, nil
		}
		util.Error("failed to look up user by phone",
			zap.String("phone", phone),
			zap.Error(err))
		return nil, fmt.Errorf("failed to look up user by phone: %w", err)
	}

	return r.FindByID(ctx, id)
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = now
	}

	bucket := r.bucketing.UserBucket(user.ID)

	query := r.client.Prepared.CreateUser.Bind(
		bucket, user.ID, user.Phone, user.PasswordHash, user.Status,
		user.ErrorLoginCount, user.RefreshToken, user.CreatedAt, user.UpdatedAt,
	).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("failed to create user",
			zap.String("user_id", user.ID),
			zap.Error(err))
		return fmt.Errorf("failed to create user: %w", err)
	}

	phoneQuery := r.client.Prepared.CreateUserByPhone.Bind(user.Phone, bucket, user.ID).WithContext(ctx)
	if err := r.client.ExecuteWithRetry(phoneQuery, 2); err != nil {
		util.Error("failed to create phone lookup row",
			zap.String("user_id", user.ID),
			zap.Error(err))
		return fmt.Errorf("failed to create phone lookup row: %w", err)
	}

	util.Info("user created",
		zap.String("user_id", user.ID),
		zap.Int("user_bucket", bucket))

	return nil
}

// Update writes the full set of mutable fields. The engines compute next
// values themselves; there are no store-side increments.
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	bucket := r.bucketing.UserBucket(user.ID)

	query := r.client.Prepared.UpdateUser.Bind(
		user.PasswordHash, user.Status, user.ErrorLoginCount,
		user.RefreshToken, user.UpdatedAt,
		bucket, user.ID,
	).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("failed to update user",
			zap.String("user_id", user.ID),
			zap.Error(err))
		return fmt.Errorf("failed to update user: %w", err)
	}

	return nil
}
