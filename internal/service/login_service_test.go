package service

import (
	"context"
	"testing"
	"time"

	"phone-auth-service/internal/apperr"
	"phone-auth-service/internal/models"
)

func TestLoginUnknownPhone(t *testing.T) {
	f := newFixture(t)

	_, err := f.login.Login(context.Background(), testPhone, testPassword)
	if apperr.KindOf(err) != apperr.KindInvalidInput {
		t.Fatalf("kind = %v, want KindInvalidInput", apperr.KindOf(err))
	}
}

func TestLoginSuccessResetsCounter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user := f.seedUser(t, testPhone, testPassword)
	user.ErrorLoginCount = 3
	if err := f.users.Update(ctx, user); err != nil {
		t.Fatalf("Update: %v", err)
	}

	session, err := f.login.Login(ctx, testPhone, testPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if session.AccessToken == "" || session.RefreshToken == "" {
		t.Fatal("expected a complete session")
	}

	stored := f.storedUser(t, testPhone)
	if stored.ErrorLoginCount != 0 {
		t.Fatalf("error login count = %d, want 0", stored.ErrorLoginCount)
	}
	if stored.RefreshToken != session.RefreshToken {
		t.Fatal("stored refresh token does not match the issued one")
	}
}

func TestLoginFailuresFreezeOnFifthAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedUser(t, testPhone, testPassword)

	// Four same-day failures count up without freezing.
	for i := 1; i <= 4; i++ {
		_, err := f.login.Login(ctx, testPhone, "wrong-password")
		if apperr.KindOf(err) != apperr.KindInvalidInput {
			t.Fatalf("attempt %d kind = %v, want KindInvalidInput", i, apperr.KindOf(err))
		}
		stored := f.storedUser(t, testPhone)
		if stored.ErrorLoginCount != i {
			t.Fatalf("attempt %d: error login count = %d, want %d", i, stored.ErrorLoginCount, i)
		}
		if stored.Status != models.UserStatusActive {
			t.Fatalf("attempt %d: status = %s, want %s", i, stored.Status, models.UserStatusActive)
		}
	}

	// The fifth failure freezes the account while incrementing to 5, but the
	// response is still the plain wrong-password error.
	_, err := f.login.Login(ctx, testPhone, "wrong-password")
	if apperr.KindOf(err) != apperr.KindInvalidInput {
		t.Fatalf("5th attempt kind = %v, want KindInvalidInput", apperr.KindOf(err))
	}
	stored := f.storedUser(t, testPhone)
	if stored.Status != models.UserStatusFreeze {
		t.Fatalf("status = %s, want %s", stored.Status, models.UserStatusFreeze)
	}
	if stored.ErrorLoginCount != 5 {
		t.Fatalf("error login count = %d, want 5", stored.ErrorLoginCount)
	}

	// A frozen account rejects even the right password, without touching
	// the counters.
	_, err = f.login.Login(ctx, testPhone, testPassword)
	if apperr.KindOf(err) != apperr.KindRateLimited {
		t.Fatalf("frozen login kind = %v, want KindRateLimited", apperr.KindOf(err))
	}
	after := f.storedUser(t, testPhone)
	if after.ErrorLoginCount != 5 || after.Status != models.UserStatusFreeze {
		t.Fatalf("frozen login mutated the account: count=%d status=%s", after.ErrorLoginCount, after.Status)
	}
}

func TestLoginCeilingRejectsBeforePasswordCompare(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user := f.seedUser(t, testPhone, testPassword)
	user.ErrorLoginCount = 5
	user.UpdatedAt = f.clock.Now()
	if err := f.users.Update(ctx, user); err != nil {
		t.Fatalf("Update: %v", err)
	}

	// Correct password, but the same-day counter is exhausted.
	_, err := f.login.Login(ctx, testPhone, testPassword)
	if apperr.KindOf(err) != apperr.KindRateLimited {
		t.Fatalf("kind = %v, want KindRateLimited", apperr.KindOf(err))
	}
}

func TestLoginFreshWindowResetsCounter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user := f.seedUser(t, testPhone, testPassword)
	user.ErrorLoginCount = 4
	if err := f.users.Update(ctx, user); err != nil {
		t.Fatalf("Update: %v", err)
	}

	// The next failure lands on a new calendar day: fresh window, no freeze.
	f.clock.advance(24 * time.Hour)
	_, err := f.login.Login(ctx, testPhone, "wrong-password")
	if apperr.KindOf(err) != apperr.KindInvalidInput {
		t.Fatalf("kind = %v, want KindInvalidInput", apperr.KindOf(err))
	}

	stored := f.storedUser(t, testPhone)
	if stored.ErrorLoginCount != 1 {
		t.Fatalf("error login count = %d, want 1", stored.ErrorLoginCount)
	}
	if stored.Status != models.UserStatusActive {
		t.Fatalf("status = %s, want %s", stored.Status, models.UserStatusActive)
	}

	// A stale counter at the ceiling does not block a correct next-day login.
	stored.ErrorLoginCount = 5
	stored.UpdatedAt = f.clock.Now().Add(-24 * time.Hour)
	if err := f.users.Update(ctx, stored); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := f.login.Login(ctx, testPhone, testPassword); err != nil {
		t.Fatalf("next-day login: %v", err)
	}
}
