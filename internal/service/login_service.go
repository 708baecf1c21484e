package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"phone-auth-service/internal/apperr"
	"phone-auth-service/internal/credentials"
	"phone-auth-service/internal/events"
	"phone-auth-service/internal/models"
	"phone-auth-service/internal/util"
)

// lockoutState classifies an account for the current local calendar day.
// The daily failure counter only counts when the last write to the account
// happened today; a stale counter from a previous day means a fresh window.
type lockoutState int

const (
	stateOK lockoutState = iota
	stateWrongToday
	stateFrozen
)

// maxDailyLoginErrors is the same-day failure count at which login is
// rejected before the password is even compared. The freeze fires one step
// earlier: a mismatch on top of more than 3 same-day failures flips the
// account to FREEZE while incrementing to 5.
const maxDailyLoginErrors = 5

// LoginService authenticates passwords under the daily lockout policy and
// hands successful logins to the session engine.
type LoginService struct {
	users    UserStore
	hasher   *credentials.Hasher
	sessions *SessionService
	clock    Clock
	recorder *events.Recorder
}

func NewLoginService(users UserStore, hasher *credentials.Hasher,
	sessions *SessionService, clock Clock, recorder *events.Recorder) *LoginService {
	if clock == nil {
		clock = SystemClock
	}
	return &LoginService{
		users:    users,
		hasher:   hasher,
		sessions: sessions,
		clock:    clock,
		recorder: recorder,
	}
}

func lockoutFor(user *models.User, now time.Time) (lockoutState, int) {
	if user.Status == models.UserStatusFreeze {
		return stateFrozen, user.ErrorLoginCount
	}
	if sameLocalDay(user.UpdatedAt, now) && user.ErrorLoginCount > 0 {
		return stateWrongToday, user.ErrorLoginCount
	}
	return stateOK, 0
}

// Login validates the password and issues a session. Frozen accounts and
// accounts at the daily failure ceiling are rejected without comparing the
// password, so the lockout cannot be probed.
func (s *LoginService) Login(ctx context.Context, phone, password string) (*Session, error) {
	user, err := s.users.FindByPhone(ctx, phone)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if user == nil {
		return nil, apperr.InvalidInput("Phone number is not registered")
	}

	now := s.clock.Now()
	state, failures := lockoutFor(user, now)
	switch state {
	case stateFrozen:
		return nil, apperr.RateLimited("Your account is temporarily locked. Please contact us")
	case stateWrongToday:
		if failures >= maxDailyLoginErrors {
			s.recorder.Record(ctx, events.Event{
				Type:   events.TypeLoginRateLimited,
				Phone:  user.Phone,
				UserID: user.ID,
				At:     now,
			})
			return nil, apperr.RateLimited("Password was wrong 5 times today. Please try again tomorrow")
		}
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, s.recordFailure(ctx, user, state, failures, now)
	}

	return s.sessions.Issue(ctx, user)
}

// recordFailure advances the lockout state after a password mismatch. A
// first-of-day failure opens a fresh window at 1; a same-day failure on top
// of more than 3 prior ones freezes the account.
func (s *LoginService) recordFailure(ctx context.Context, user *models.User,
	state lockoutState, failures int, now time.Time) error {

	frozen := false
	if state == stateWrongToday {
		user.ErrorLoginCount = failures + 1
		if failures > 3 {
			user.Status = models.UserStatusFreeze
			frozen = true
		}
	} else {
		user.ErrorLoginCount = 1
	}
	user.UpdatedAt = now

	if err := s.users.Update(ctx, user); err != nil {
		return apperr.Internal(err)
	}

	if frozen {
		util.Warn("account frozen after repeated login failures",
			zap.String("user_id", user.ID),
			zap.Int("error_login_count", user.ErrorLoginCount))
		s.recorder.Record(ctx, events.Event{
			Type:   events.TypeAccountFrozen,
			Phone:  user.Phone,
			UserID: user.ID,
			At:     now,
		})
	}
	// The freezing attempt still reads as a wrong password; the caller only
	// sees the lock on the next try.
	return apperr.InvalidInput("Password is incorrect")
}
