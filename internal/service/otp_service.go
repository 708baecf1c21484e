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

// Daily ceilings on the per-phone challenge record. These are part of the
// security contract, not tunables, so they live here rather than in config.
const (
	maxDailyRequests = 3
	maxDailyErrors   = 5
)

// OtpService runs the three-stage phone verification used by both
// registration and password reset: request a code, verify it, confirm with a
// password. Each stage hands the client an opaque token that the next stage
// must present.
type OtpService struct {
	users    UserStore
	otps     OtpStore
	hasher   *credentials.Hasher
	sessions *SessionService
	clock    Clock
	recorder *events.Recorder
	window   time.Duration

	// newCode is a test seam; defaults to credentials.GenerateCode.
	newCode func() string
}

func NewOtpService(users UserStore, otps OtpStore, hasher *credentials.Hasher,
	sessions *SessionService, window time.Duration, clock Clock, recorder *events.Recorder) *OtpService {
	if clock == nil {
		clock = SystemClock
	}
	if window <= 0 {
		window = 30 * time.Minute
	}
	return &OtpService{
		users:    users,
		otps:     otps,
		hasher:   hasher,
		sessions: sessions,
		clock:    clock,
		recorder: recorder,
		window:   window,
		newCode:  credentials.GenerateCode,
	}
}

// WithCodeSource overrides the OTP generator. Test use only.
func (s *OtpService) WithCodeSource(newCode func() string) *OtpService {
	s.newCode = newCode
	return s
}

// RequestRegistration starts a registration challenge for an unregistered
// phone and returns the remember token the verify step must present.
func (s *OtpService) RequestRegistration(ctx context.Context, phone string) (string, error) {
	user, err := s.users.FindByPhone(ctx, phone)
	if err != nil {
		return "", apperr.Internal(err)
	}
	if user != nil {
		return "", apperr.Conflict("Phone number is already registered")
	}
	return s.issueChallenge(ctx, phone, true)
}

// RequestReset starts a password-reset challenge for a registered,
// non-frozen account. The phone must already have a challenge record from
// its original registration.
func (s *OtpService) RequestReset(ctx context.Context, phone string) (string, error) {
	if err := s.requireResettableUser(ctx, phone); err != nil {
		return "", err
	}
	return s.issueChallenge(ctx, phone, false)
}

// VerifyRegistration checks the submitted code for a registration challenge
// and returns the verify token the confirm step must present.
func (s *OtpService) VerifyRegistration(ctx context.Context, phone, rememberToken, code string) (string, error) {
	user, err := s.users.FindByPhone(ctx, phone)
	if err != nil {
		return "", apperr.Internal(err)
	}
	if user != nil {
		return "", apperr.Conflict("Phone number is already registered")
	}
	return s.verifyCode(ctx, phone, rememberToken, code)
}

// VerifyReset is the reset-flow counterpart of VerifyRegistration.
func (s *OtpService) VerifyReset(ctx context.Context, phone, rememberToken, code string) (string, error) {
	if err := s.requireResettableUser(ctx, phone); err != nil {
		return "", err
	}
	return s.verifyCode(ctx, phone, rememberToken, code)
}

// ConfirmRegistration finishes the registration challenge: it creates the
// account with the given password and issues its first session.
func (s *OtpService) ConfirmRegistration(ctx context.Context, phone, verifyToken, password string) (*Session, error) {
	user, err := s.users.FindByPhone(ctx, phone)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if user != nil {
		return nil, apperr.Conflict("Phone number is already registered")
	}

	challenge, err := s.gateConfirm(ctx, phone, verifyToken)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	user = &models.User{
		Phone:        phone,
		PasswordHash: passwordHash,
		Status:       models.UserStatusActive,
		RefreshToken: credentials.GenerateToken(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, apperr.Internal(err)
	}

	session, err := s.sessions.Issue(ctx, user)
	if err != nil {
		return nil, err
	}

	if err := s.retireVerifyToken(ctx, challenge, now); err != nil {
		return nil, err
	}

	util.Info("account registered", zap.String("user_id", user.ID))
	s.recorder.Record(ctx, events.Event{
		Type:   events.TypeAccountRegistered,
		Phone:  phone,
		UserID: user.ID,
		At:     now,
	})
	return session, nil
}

// ConfirmReset finishes the reset challenge: it rewrites the password,
// clears the login lockout counter, and revokes the current session. The
// client has to log in again with the new password.
func (s *OtpService) ConfirmReset(ctx context.Context, phone, verifyToken, password string) error {
	user, err := s.users.FindByPhone(ctx, phone)
	if err != nil {
		return apperr.Internal(err)
	}
	if user == nil {
		return apperr.InvalidInput("Phone number is not registered")
	}
	if user.Status == models.UserStatusFreeze {
		return apperr.RateLimited("Your account is temporarily locked. Please contact us")
	}

	challenge, err := s.gateConfirm(ctx, phone, verifyToken)
	if err != nil {
		return err
	}
	now := s.clock.Now()

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return apperr.Internal(err)
	}

	user.PasswordHash = passwordHash
	user.ErrorLoginCount = 0
	user.RefreshToken = credentials.GenerateToken()
	user.UpdatedAt = now
	if err := s.users.Update(ctx, user); err != nil {
		return apperr.Internal(err)
	}

	if err := s.retireVerifyToken(ctx, challenge, now); err != nil {
		return err
	}

	util.Info("password reset", zap.String("user_id", user.ID))
	s.recorder.Record(ctx, events.Event{
		Type:   events.TypePasswordChanged,
		Phone:  phone,
		UserID: user.ID,
		At:     now,
	})
	return nil
}

func (s *OtpService) requireResettableUser(ctx context.Context, phone string) error {
	user, err := s.users.FindByPhone(ctx, phone)
	if err != nil {
		return apperr.Internal(err)
	}
	if user == nil {
		return apperr.InvalidInput("Phone number is not registered")
	}
	if user.Status == models.UserStatusFreeze {
		return apperr.RateLimited("Your account is temporarily locked. Please contact us")
	}
	return nil
}

// issueChallenge generates a fresh code and remember token for the phone.
// Counters window on the local calendar date of the record's last update: a
// new day fully resets the record, a same-day request must clear the daily
// ceilings before it increments.
func (s *OtpService) issueChallenge(ctx context.Context, phone string, allowCreate bool) (string, error) {
	challenge, err := s.otps.FindByPhone(ctx, phone)
	if err != nil {
		return "", apperr.Internal(err)
	}
	if challenge == nil && !allowCreate {
		return "", apperr.InvalidInput("Phone number is incorrect")
	}

	now := s.clock.Now()
	if challenge != nil && sameLocalDay(challenge.UpdatedAt, now) {
		if challenge.RequestCount >= maxDailyRequests {
			s.recordCeiling(ctx, phone, "daily request ceiling", now)
			return "", apperr.RateLimited("OTP is allowed to request 3 times per day. Please try again tomorrow")
		}
		if challenge.ErrorCount >= maxDailyErrors {
			s.recordCeiling(ctx, phone, "daily error ceiling", now)
			return "", apperr.RateLimited("OTP was wrong 5 times today. Please try again tomorrow")
		}
	}

	code := s.newCode()
	otpHash, err := s.hasher.Hash(code)
	if err != nil {
		return "", apperr.Internal(err)
	}
	rememberToken := credentials.GenerateToken()

	if challenge == nil {
		challenge = &models.OtpChallenge{
			Phone:         phone,
			OTPHash:       otpHash,
			RememberToken: rememberToken,
			RequestCount:  1,
			ErrorCount:    0,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.otps.Create(ctx, challenge); err != nil {
			return "", apperr.Internal(err)
		}
		return rememberToken, nil
	}

	if sameLocalDay(challenge.UpdatedAt, now) {
		challenge.RequestCount++
	} else {
		challenge.RequestCount = 1
	}
	challenge.OTPHash = otpHash
	challenge.RememberToken = rememberToken
	challenge.ErrorCount = 0
	challenge.UpdatedAt = now
	if err := s.otps.Update(ctx, challenge); err != nil {
		return "", apperr.Internal(err)
	}
	return rememberToken, nil
}

func (s *OtpService) verifyCode(ctx context.Context, phone, rememberToken, code string) (string, error) {
	challenge, err := s.otps.FindByPhone(ctx, phone)
	if err != nil {
		return "", apperr.Internal(err)
	}
	if challenge == nil {
		return "", apperr.InvalidInput("Phone number is incorrect")
	}
	now := s.clock.Now()

	if challenge.RememberToken != rememberToken {
		if err := s.poisonChallenge(ctx, challenge, now); err != nil {
			return "", err
		}
		return "", apperr.NotAllowed("You are not allowed for this request")
	}
	if now.Sub(challenge.UpdatedAt) > s.window {
		return "", apperr.OTPExpired("OTP is expired")
	}
	if challenge.ErrorCount >= maxDailyErrors {
		return "", apperr.RateLimited("OTP was wrong 5 times today. Please try again tomorrow")
	}

	if !s.hasher.Verify(code, challenge.OTPHash) {
		challenge.ErrorCount++
		challenge.UpdatedAt = now
		if err := s.otps.Update(ctx, challenge); err != nil {
			return "", apperr.Internal(err)
		}
		return "", apperr.InvalidInput("OTP is incorrect")
	}

	verifyToken := credentials.GenerateToken()
	challenge.VerifyToken = verifyToken
	challenge.RequestCount = 1
	challenge.ErrorCount = 0
	challenge.UpdatedAt = now
	if err := s.otps.Update(ctx, challenge); err != nil {
		return "", apperr.Internal(err)
	}
	return verifyToken, nil
}

// gateConfirm validates the verify token and the confirm window, returning
// the live challenge on success.
func (s *OtpService) gateConfirm(ctx context.Context, phone, verifyToken string) (*models.OtpChallenge, error) {
	challenge, err := s.otps.FindByPhone(ctx, phone)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if challenge == nil {
		return nil, apperr.InvalidInput("Phone number is incorrect")
	}
	now := s.clock.Now()

	if challenge.VerifyToken == "" || challenge.VerifyToken != verifyToken {
		if err := s.poisonChallenge(ctx, challenge, now); err != nil {
			return nil, err
		}
		return nil, apperr.NotAllowed("You are not allowed for this request")
	}
	if now.Sub(challenge.UpdatedAt) > s.window {
		return nil, apperr.RequestExpired("Your request is expired. Please try again")
	}
	if challenge.ErrorCount >= maxDailyErrors {
		return nil, apperr.RateLimited("OTP was wrong 5 times today. Please try again tomorrow")
	}
	return challenge, nil
}

// poisonChallenge pins the error counter at the ceiling after a token
// mismatch, locking the channel for the rest of the day.
func (s *OtpService) poisonChallenge(ctx context.Context, challenge *models.OtpChallenge, now time.Time) error {
	challenge.ErrorCount = maxDailyErrors
	challenge.UpdatedAt = now
	if err := s.otps.Update(ctx, challenge); err != nil {
		return apperr.Internal(err)
	}
	util.Warn("challenge token mismatch", zap.String("phone", challenge.Phone))
	s.recorder.Record(ctx, events.Event{
		Type:  events.TypeOTPTokenMismatch,
		Phone: challenge.Phone,
		At:    now,
	})
	return nil
}

// retireVerifyToken clears the verify token after a successful confirm so it
// cannot be replayed.
func (s *OtpService) retireVerifyToken(ctx context.Context, challenge *models.OtpChallenge, now time.Time) error {
	challenge.VerifyToken = ""
	challenge.UpdatedAt = now
	if err := s.otps.Update(ctx, challenge); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

func (s *OtpService) recordCeiling(ctx context.Context, phone, detail string, now time.Time) {
	s.recorder.Record(ctx, events.Event{
		Type:   events.TypeOTPCeilingHit,
		Phone:  phone,
		Detail: detail,
		At:     now,
	})
}
