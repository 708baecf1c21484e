package service

import (
	"context"
	"testing"
	"time"

	"phone-auth-service/internal/apperr"
	"phone-auth-service/internal/models"
)

func TestRequestRegistrationCreatesChallenge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rememberToken, err := f.otp.RequestRegistration(ctx, testPhone)
	if err != nil {
		t.Fatalf("RequestRegistration: %v", err)
	}
	if rememberToken == "" {
		t.Fatal("expected a remember token")
	}

	challenge := f.storedChallenge(t, testPhone)
	if challenge.RequestCount != 1 || challenge.ErrorCount != 0 {
		t.Fatalf("counters = (%d, %d), want (1, 0)", challenge.RequestCount, challenge.ErrorCount)
	}
	if challenge.RememberToken != rememberToken {
		t.Fatal("stored remember token does not match the returned one")
	}
}

func TestRequestRegistrationRejectsRegisteredPhone(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, testPhone, testPassword)

	_, err := f.otp.RequestRegistration(context.Background(), testPhone)
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("kind = %v, want KindConflict (err: %v)", apperr.KindOf(err), err)
	}
}

func TestRequestRegistrationDailyCeiling(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := f.otp.RequestRegistration(ctx, testPhone); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
		f.clock.advance(time.Minute)
	}

	_, err := f.otp.RequestRegistration(ctx, testPhone)
	if apperr.KindOf(err) != apperr.KindRateLimited {
		t.Fatalf("4th request kind = %v, want KindRateLimited", apperr.KindOf(err))
	}

	// A new calendar day fully resets the counters.
	f.clock.advance(24 * time.Hour)
	if _, err := f.otp.RequestRegistration(ctx, testPhone); err != nil {
		t.Fatalf("next-day request: %v", err)
	}
	challenge := f.storedChallenge(t, testPhone)
	if challenge.RequestCount != 1 || challenge.ErrorCount != 0 {
		t.Fatalf("counters after day reset = (%d, %d), want (1, 0)", challenge.RequestCount, challenge.ErrorCount)
	}
}

func TestNewDayResetsErrorCeiling(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.otp.RequestRegistration(ctx, testPhone); err != nil {
		t.Fatalf("RequestRegistration: %v", err)
	}
	if _, err := f.otp.VerifyRegistration(ctx, testPhone, "wrong-token", testCode); apperr.KindOf(err) != apperr.KindUnauthorized {
		t.Fatalf("wrong-token verify kind = %v, want KindUnauthorized", apperr.KindOf(err))
	}
	if got := f.storedChallenge(t, testPhone).ErrorCount; got != 5 {
		t.Fatalf("error count = %d, want 5", got)
	}

	// Even a day that ended at the error ceiling starts fresh.
	f.clock.advance(24 * time.Hour)
	if _, err := f.otp.RequestRegistration(ctx, testPhone); err != nil {
		t.Fatalf("next-day request: %v", err)
	}
	if got := f.storedChallenge(t, testPhone).ErrorCount; got != 0 {
		t.Fatalf("error count after day reset = %d, want 0", got)
	}
}

func TestVerifyWrongRememberTokenIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rememberToken, err := f.otp.RequestRegistration(ctx, testPhone)
	if err != nil {
		t.Fatalf("RequestRegistration: %v", err)
	}

	for i := 0; i < 2; i++ {
		_, err := f.otp.VerifyRegistration(ctx, testPhone, "wrong-token", testCode)
		ae := apperr.From(err)
		if ae.Kind != apperr.KindUnauthorized || ae.Code != apperr.CodeNotAllowed {
			t.Fatalf("attempt %d: got (%v, %s), want (KindUnauthorized, %s)", i+1, ae.Kind, ae.Code, apperr.CodeNotAllowed)
		}
		if got := f.storedChallenge(t, testPhone).ErrorCount; got != 5 {
			t.Fatalf("attempt %d: error count = %d, want 5", i+1, got)
		}
	}

	// The channel stays locked even with the right token and code.
	_, err = f.otp.VerifyRegistration(ctx, testPhone, rememberToken, testCode)
	if apperr.KindOf(err) != apperr.KindRateLimited {
		t.Fatalf("kind = %v, want KindRateLimited", apperr.KindOf(err))
	}
}

func TestVerifyExpiryBoundaryIsExclusive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rememberToken, err := f.otp.RequestRegistration(ctx, testPhone)
	if err != nil {
		t.Fatalf("RequestRegistration: %v", err)
	}

	// Exactly 30 minutes is still inside the window.
	f.clock.advance(30 * time.Minute)
	if _, err := f.otp.VerifyRegistration(ctx, testPhone, rememberToken, testCode); err != nil {
		t.Fatalf("verify at boundary: %v", err)
	}
}

func TestVerifyExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rememberToken, err := f.otp.RequestRegistration(ctx, testPhone)
	if err != nil {
		t.Fatalf("RequestRegistration: %v", err)
	}

	f.clock.advance(30*time.Minute + time.Second)
	_, err = f.otp.VerifyRegistration(ctx, testPhone, rememberToken, testCode)
	ae := apperr.From(err)
	if ae.Kind != apperr.KindExpired || ae.Code != apperr.CodeOTPExpired {
		t.Fatalf("got (%v, %s), want (KindExpired, %s)", ae.Kind, ae.Code, apperr.CodeOTPExpired)
	}
}

func TestVerifyWrongCodeIncrementsUntilCeiling(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rememberToken, err := f.otp.RequestRegistration(ctx, testPhone)
	if err != nil {
		t.Fatalf("RequestRegistration: %v", err)
	}

	for i := 1; i <= 5; i++ {
		_, err := f.otp.VerifyRegistration(ctx, testPhone, rememberToken, "000000")
		if apperr.KindOf(err) != apperr.KindInvalidInput {
			t.Fatalf("attempt %d kind = %v, want KindInvalidInput", i, apperr.KindOf(err))
		}
		if got := f.storedChallenge(t, testPhone).ErrorCount; got != i {
			t.Fatalf("attempt %d: error count = %d, want %d", i, got, i)
		}
	}

	_, err = f.otp.VerifyRegistration(ctx, testPhone, rememberToken, "000000")
	if apperr.KindOf(err) != apperr.KindRateLimited {
		t.Fatalf("6th attempt kind = %v, want KindRateLimited", apperr.KindOf(err))
	}
}

func TestFullRegistrationRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rememberToken, err := f.otp.RequestRegistration(ctx, testPhone)
	if err != nil {
		t.Fatalf("RequestRegistration: %v", err)
	}
	verifyToken, err := f.otp.VerifyRegistration(ctx, testPhone, rememberToken, testCode)
	if err != nil {
		t.Fatalf("VerifyRegistration: %v", err)
	}
	session, err := f.otp.ConfirmRegistration(ctx, testPhone, verifyToken, testPassword)
	if err != nil {
		t.Fatalf("ConfirmRegistration: %v", err)
	}
	if session.UserID == "" || session.AccessToken == "" || session.RefreshToken == "" {
		t.Fatal("expected a complete session")
	}

	user := f.storedUser(t, testPhone)
	if user.Status != models.UserStatusActive {
		t.Fatalf("status = %s, want %s", user.Status, models.UserStatusActive)
	}
	if user.RefreshToken != session.RefreshToken {
		t.Fatal("stored refresh token does not match the issued one")
	}
	if got := f.storedChallenge(t, testPhone).VerifyToken; got != "" {
		t.Fatal("verify token should be cleared after confirm")
	}

	// The new account can log in with the chosen password.
	if _, err := f.login.Login(ctx, testPhone, testPassword); err != nil {
		t.Fatalf("Login after registration: %v", err)
	}
}

func TestConfirmWrongVerifyToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rememberToken, err := f.otp.RequestRegistration(ctx, testPhone)
	if err != nil {
		t.Fatalf("RequestRegistration: %v", err)
	}
	if _, err := f.otp.VerifyRegistration(ctx, testPhone, rememberToken, testCode); err != nil {
		t.Fatalf("VerifyRegistration: %v", err)
	}

	_, err = f.otp.ConfirmRegistration(ctx, testPhone, "wrong-token", testPassword)
	if apperr.KindOf(err) != apperr.KindUnauthorized {
		t.Fatalf("kind = %v, want KindUnauthorized", apperr.KindOf(err))
	}
	if got := f.storedChallenge(t, testPhone).ErrorCount; got != 5 {
		t.Fatalf("error count = %d, want 5", got)
	}
}

func TestConfirmExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rememberToken, err := f.otp.RequestRegistration(ctx, testPhone)
	if err != nil {
		t.Fatalf("RequestRegistration: %v", err)
	}
	verifyToken, err := f.otp.VerifyRegistration(ctx, testPhone, rememberToken, testCode)
	if err != nil {
		t.Fatalf("VerifyRegistration: %v", err)
	}

	f.clock.advance(30*time.Minute + time.Second)
	_, err = f.otp.ConfirmRegistration(ctx, testPhone, verifyToken, testPassword)
	ae := apperr.From(err)
	if ae.Kind != apperr.KindExpired || ae.Code != apperr.CodeRequestExpired {
		t.Fatalf("got (%v, %s), want (KindExpired, %s)", ae.Kind, ae.Code, apperr.CodeRequestExpired)
	}
}

func TestConfirmIsSingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rememberToken, err := f.otp.RequestRegistration(ctx, testPhone)
	if err != nil {
		t.Fatalf("RequestRegistration: %v", err)
	}
	verifyToken, err := f.otp.VerifyRegistration(ctx, testPhone, rememberToken, testCode)
	if err != nil {
		t.Fatalf("VerifyRegistration: %v", err)
	}
	if _, err := f.otp.ConfirmRegistration(ctx, testPhone, verifyToken, testPassword); err != nil {
		t.Fatalf("ConfirmRegistration: %v", err)
	}

	// Replaying the confirm hits the registered-phone conflict first; the
	// verify token itself is gone either way.
	_, err = f.otp.ConfirmRegistration(ctx, testPhone, verifyToken, testPassword)
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("kind = %v, want KindConflict", apperr.KindOf(err))
	}
}

func TestRequestResetRequiresKnownPhone(t *testing.T) {
	f := newFixture(t)

	_, err := f.otp.RequestReset(context.Background(), testPhone)
	if apperr.KindOf(err) != apperr.KindInvalidInput {
		t.Fatalf("kind = %v, want KindInvalidInput", apperr.KindOf(err))
	}
}

func TestRequestResetRejectsFrozenAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user := f.seedUser(t, testPhone, testPassword)
	user.Status = models.UserStatusFreeze
	if err := f.users.Update(ctx, user); err != nil {
		t.Fatalf("Update: %v", err)
	}

	_, err := f.otp.RequestReset(ctx, testPhone)
	if apperr.KindOf(err) != apperr.KindRateLimited {
		t.Fatalf("kind = %v, want KindRateLimited", apperr.KindOf(err))
	}
}

func TestFullResetRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Register through the real flow so a challenge record exists.
	rememberToken, err := f.otp.RequestRegistration(ctx, testPhone)
	if err != nil {
		t.Fatalf("RequestRegistration: %v", err)
	}
	verifyToken, err := f.otp.VerifyRegistration(ctx, testPhone, rememberToken, testCode)
	if err != nil {
		t.Fatalf("VerifyRegistration: %v", err)
	}
	session, err := f.otp.ConfirmRegistration(ctx, testPhone, verifyToken, testPassword)
	if err != nil {
		t.Fatalf("ConfirmRegistration: %v", err)
	}

	f.clock.advance(24 * time.Hour)

	resetRemember, err := f.otp.RequestReset(ctx, testPhone)
	if err != nil {
		t.Fatalf("RequestReset: %v", err)
	}
	resetVerify, err := f.otp.VerifyReset(ctx, testPhone, resetRemember, testCode)
	if err != nil {
		t.Fatalf("VerifyReset: %v", err)
	}
	if err := f.otp.ConfirmReset(ctx, testPhone, resetVerify, "password2"); err != nil {
		t.Fatalf("ConfirmReset: %v", err)
	}

	if _, err := f.login.Login(ctx, testPhone, testPassword); apperr.KindOf(err) != apperr.KindInvalidInput {
		t.Fatalf("old password kind = %v, want KindInvalidInput", apperr.KindOf(err))
	}
	if _, err := f.login.Login(ctx, testPhone, "password2"); err != nil {
		t.Fatalf("Login with new password: %v", err)
	}

	// The pre-reset session was revoked.
	if _, err := f.sessions.Rotate(ctx, session.RefreshToken); apperr.KindOf(err) != apperr.KindUnauthenticated {
		t.Fatalf("old session rotate kind = %v, want KindUnauthenticated", apperr.KindOf(err))
	}
}
