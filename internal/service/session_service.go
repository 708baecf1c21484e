package service

import (
	"context"

	"go.uber.org/zap"

	"phone-auth-service/internal/apperr"
	"phone-auth-service/internal/credentials"
	"phone-auth-service/internal/events"
	"phone-auth-service/internal/models"
	"phone-auth-service/internal/token"
	"phone-auth-service/internal/util"
)

// Session is an issued access/refresh pair bound to an account.
type Session struct {
	UserID       string
	Phone        string
	AccessToken  string
	RefreshToken string
}

// AuthResult reports how a request was authenticated. Session is non-nil
// only when the pair was rotated and the caller must send fresh cookies.
type AuthResult struct {
	UserID  string
	Session *Session
}

// SessionService issues, rotates, and revokes token pairs. Exactly one
// refresh token is live per account: the stored copy is the source of truth,
// and any signed-but-superseded token presented for rotation is treated as
// reuse and rejected.
type SessionService struct {
	users    UserStore
	signer   *token.Signer
	clock    Clock
	recorder *events.Recorder
}

func NewSessionService(users UserStore, signer *token.Signer, clock Clock, recorder *events.Recorder) *SessionService {
	if clock == nil {
		clock = SystemClock
	}
	return &SessionService{
		users:    users,
		signer:   signer,
		clock:    clock,
		recorder: recorder,
	}
}

// Issue signs a fresh pair for the account and persists the refresh token,
// superseding any previous session. A successful issuance also clears the
// daily login failure counter.
func (s *SessionService) Issue(ctx context.Context, user *models.User) (*Session, error) {
	accessToken, err := s.signer.SignAccess(user.ID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	refreshToken, err := s.signer.SignRefresh(user.ID, user.Phone)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	user.RefreshToken = refreshToken
	user.ErrorLoginCount = 0
	user.UpdatedAt = s.clock.Now()
	if err := s.users.Update(ctx, user); err != nil {
		return nil, apperr.Internal(err)
	}

	return &Session{
		UserID:       user.ID,
		Phone:        user.Phone,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// Authenticate validates a request from its token pair. A valid access token
// wins outright; otherwise the refresh token is rotated, and the returned
// session carries the replacement pair.
func (s *SessionService) Authenticate(ctx context.Context, accessToken, refreshToken string) (*AuthResult, error) {
	if accessToken != "" {
		if userID, err := s.signer.VerifyAccess(accessToken); err == nil {
			return &AuthResult{UserID: userID}, nil
		}
	}

	session, err := s.Rotate(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	return &AuthResult{UserID: session.UserID, Session: session}, nil
}

// Rotate exchanges a refresh token for a fresh pair. The presented token must
// verify, must name the account's current phone, and must equal the stored
// refresh token byte for byte; anything else ends the session attempt.
func (s *SessionService) Rotate(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, apperr.Unauthenticated("You are not an authenticated user")
	}

	userID, phone, err := s.signer.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, apperr.Unauthenticated("You are not an authenticated user")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if user == nil || user.Phone != phone {
		return nil, apperr.Unauthenticated("You are not an authenticated user")
	}

	if user.RefreshToken != refreshToken {
		util.Warn("refresh token reuse detected",
			zap.String("user_id", user.ID))
		s.recorder.Record(ctx, events.Event{
			Type:   events.TypeTokenReuse,
			Phone:  user.Phone,
			UserID: user.ID,
			At:     s.clock.Now(),
		})
		return nil, apperr.Unauthenticated("You are not an authenticated user")
	}

	return s.Issue(ctx, user)
}

// Check verifies a refresh token without rotating it, for lightweight
// auth-status probes.
func (s *SessionService) Check(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", apperr.Unauthenticated("You are not an authenticated user")
	}
	userID, _, err := s.signer.VerifyRefresh(refreshToken)
	if err != nil {
		return "", apperr.Unauthenticated("You are not an authenticated user")
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return "", apperr.Internal(err)
	}
	if user == nil {
		return "", apperr.Unauthenticated("You are not an authenticated user")
	}
	return user.ID, nil
}

// Revoke ends the account's session by overwriting the stored refresh token
// with an unguessable placeholder. The token the client still holds can then
// never match the stored value again.
func (s *SessionService) Revoke(ctx context.Context, userID string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return apperr.Internal(err)
	}
	if user == nil {
		return apperr.Unauthenticated("You are not an authenticated user")
	}

	user.RefreshToken = credentials.GenerateToken()
	user.UpdatedAt = s.clock.Now()
	if err := s.users.Update(ctx, user); err != nil {
		return apperr.Internal(err)
	}

	s.recorder.Record(ctx, events.Event{
		Type:   events.TypeSessionRevoked,
		Phone:  user.Phone,
		UserID: user.ID,
		At:     s.clock.Now(),
	})
	return nil
}
