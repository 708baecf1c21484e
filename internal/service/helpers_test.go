package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"phone-auth-service/internal/credentials"
	"phone-auth-service/internal/models"
	"phone-auth-service/internal/token"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memUserStore struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: make(map[string]*models.User)}
}

func (s *memUserStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	copied := *user
	return &copied, nil
}

func (s *memUserStore) FindByPhone(ctx context.Context, phone string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.Phone == phone {
			copied := *user
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *memUserStore) Create(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	copied := *user
	s.users[user.ID] = &copied
	return nil
}

func (s *memUserStore) Update(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *user
	s.users[user.ID] = &copied
	return nil
}

type memOtpStore struct {
	mu         sync.Mutex
	challenges map[string]*models.OtpChallenge
}

func newMemOtpStore() *memOtpStore {
	return &memOtpStore{challenges: make(map[string]*models.OtpChallenge)}
}

func (s *memOtpStore) FindByPhone(ctx context.Context, phone string) (*models.OtpChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	challenge, ok := s.challenges[phone]
	if !ok {
		return nil, nil
	}
	copied := *challenge
	return &copied, nil
}

func (s *memOtpStore) Create(ctx context.Context, challenge *models.OtpChallenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if challenge.ID == "" {
		challenge.ID = uuid.New().String()
	}
	copied := *challenge
	s.challenges[challenge.Phone] = &copied
	return nil
}

func (s *memOtpStore) Update(ctx context.Context, challenge *models.OtpChallenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *challenge
	s.challenges[challenge.Phone] = &copied
	return nil
}

const (
	testPhone    = "771234567"
	testCode     = "123456"
	testPassword = "password1"
)

type fixture struct {
	users    *memUserStore
	otps     *memOtpStore
	clock    *fakeClock
	hasher   *credentials.Hasher
	signer   *token.Signer
	otp      *OtpService
	login    *LoginService
	sessions *SessionService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := &fakeClock{now: time.Date(2025, 3, 10, 10, 0, 0, 0, time.Local)}
	users := newMemUserStore()
	otps := newMemOtpStore()
	hasher := credentials.NewHasher(4)

	signer, err := token.NewSigner("access-secret", "refresh-secret", time.Minute, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	signer.WithClock(clock.Now)

	sessions := NewSessionService(users, signer, clock, nil)
	login := NewLoginService(users, hasher, sessions, clock, nil)
	otp := NewOtpService(users, otps, hasher, sessions, 30*time.Minute, clock, nil).
		WithCodeSource(func() string { return testCode })

	return &fixture{
		users:    users,
		otps:     otps,
		clock:    clock,
		hasher:   hasher,
		signer:   signer,
		otp:      otp,
		login:    login,
		sessions: sessions,
	}
}

// seedUser inserts an account with a bcrypt-hashed password directly into the
// store, bypassing the registration flow.
func (f *fixture) seedUser(t *testing.T, phone, password string) *models.User {
	t.Helper()

	hash, err := f.hasher.Hash(password)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	user := &models.User{
		Phone:        phone,
		PasswordHash: hash,
		Status:       models.UserStatusActive,
		RefreshToken: credentials.GenerateToken(),
		CreatedAt:    f.clock.Now(),
		UpdatedAt:    f.clock.Now(),
	}
	if err := f.users.Create(context.Background(), user); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return user
}

func (f *fixture) storedUser(t *testing.T, phone string) *models.User {
	t.Helper()
	user, err := f.users.FindByPhone(context.Background(), phone)
	if err != nil {
		t.Fatalf("FindByPhone: %v", err)
	}
	if user == nil {
		t.Fatalf("user %q not found", phone)
	}
	return user
}

func (f *fixture) storedChallenge(t *testing.T, phone string) *models.OtpChallenge {
	t.Helper()
	challenge, err := f.otps.FindByPhone(context.Background(), phone)
	if err != nil {
		t.Fatalf("FindByPhone: %v", err)
	}
	if challenge == nil {
		t.Fatalf("challenge %q not found", phone)
	}
	return challenge
}
