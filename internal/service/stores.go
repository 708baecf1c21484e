package service

import (
	"context"
	"time"

	"phone-auth-service/internal/models"
)

// UserStore and OtpStore are the persistence contracts the engines run
// against. Implementations live under internal/repository; tests use
// in-memory doubles. A missing record is (nil, nil), never an error.
type UserStore interface {
	FindByPhone(ctx context.Context, phone string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
}

type OtpStore interface {
	FindByPhone(ctx context.Context, phone string) (*models.OtpChallenge, error)
	Create(ctx context.Context, challenge *models.OtpChallenge) error
	Update(ctx context.Context, challenge *models.OtpChallenge) error
}

// Clock abstracts time so the daily windows and expiry boundaries are
// testable with a fake.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

var SystemClock Clock = systemClock{}

// sameLocalDay reports whether two instants fall on the same local calendar
// date. The daily counters window on dates, not rolling 24h periods: 23:59
// and 00:01 belong to different windows.
func sameLocalDay(a, b time.Time) bool {
	ay, am, ad := a.Local().Date()
	by, bm, bd := b.Local().Date()
	return ay == by && am == bm && ad == bd
}
