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

// OtpRepository persists the one-challenge-per-phone records, partitioned by
// murmur3 bucket of the phone number.
type OtpRepository struct {
	client    *Client
	bucketing *bucketing.Manager
}

func NewOtpRepository(client *Client, bucketing *bucketing.Manager) *OtpRepository {
	return &OtpRepository{
		client:    client,
		bucketing: bucketing,
	}
}

func (r *OtpRepository) FindByPhone(ctx context.Context, phone string) (*models.OtpChallenge, error) {
	challenge := &models.OtpChallenge{}
	bucket := r.bucketing.PhoneBucket(phone)

	query := r.client.Prepared.GetOtpByPhone.Bind(bucket, phone).WithContext(ctx)
	err := query.Scan(&challenge.ID, &challenge.Phone, &challenge.OTPHash,
		&challenge.RememberToken, &challenge.VerifyToken,
		&challenge.RequestCount, &challenge.ErrorCount,
		&challenge.CreatedAt, &challenge.UpdatedAt)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, nil
		}
		util.Error("failed to get otp challenge",
			zap.String("phone", phone),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get otp challenge: %w", err)
	}

	return challenge, nil
}

func (r *OtpRepository) Create(ctx context.Context, challenge *models.OtpChallenge) error {
	if challenge.ID == "" {
		challenge.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if challenge.CreatedAt.IsZero() {
		challenge.CreatedAt = now
	}
	if challenge.UpdatedAt.IsZero() {
		challenge.UpdatedAt = now
	}

	bucket := r.bucketing.PhoneBucket(challenge.Phone)

	query := r.client.Prepared.CreateOtp.Bind(
		bucket, challenge.Phone, challenge.ID, challenge.OTPHash,
		challenge.RememberToken, challenge.VerifyToken,
		challenge.RequestCount, challenge.ErrorCount,
		challenge.CreatedAt, challenge.UpdatedAt,
	).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("failed to create otp challenge",
			zap.String("phone", challenge.Phone),
			zap.Error(err))
		return fmt.Errorf("failed to create otp challenge: %w", err)
	}

	return nil
}

func (r *OtpRepository) Update(ctx context.Context, challenge *models.OtpChallenge) error {
	bucket := r.bucketing.PhoneBucket(challenge.Phone)

	query := r.client.Prepared.UpdateOtp.Bind(
		challenge.OTPHash, challenge.RememberToken, challenge.VerifyToken,
		challenge.RequestCount, challenge.ErrorCount, challenge.UpdatedAt,
		bucket, challenge.Phone,
	).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("failed to update otp challenge",
			zap.String("phone", challenge.Phone),
			zap.Error(err))
		return fmt.Errorf("failed to update otp challenge: %w", err)
	}

	return nil
}
