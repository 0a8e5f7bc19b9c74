package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/mattgren/viewfinder/internal/apperror"
)

// --- Mock Repository ---

// mockUserRepo implements UserRepository for testing.
type mockUserRepo struct {
	createFn          func(ctx context.Context, user *User) error
	findByIDFn        func(ctx context.Context, id string) (*User, error)
	findByEmailFn     func(ctx context.Context, email string) (*User, error)
	emailExistsFn     func(ctx context.Context, email string) (bool, error)
	updateLastLoginFn func(ctx context.Context, id string) error

	created []*User
}

func (m *mockUserRepo) Create(ctx context.Context, user *User) error {
	m.created = append(m.created, user)
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, apperror.NewNotFound("user not found")
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, apperror.NewNotFound("user not found")
}

func (m *mockUserRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	if m.emailExistsFn != nil {
		return m.emailExistsFn(ctx, email)
	}
	return false, nil
}

func (m *mockUserRepo) UpdateLastLogin(ctx context.Context, id string) error {
	if m.updateLastLoginFn != nil {
		return m.updateLastLoginFn(ctx, id)
	}
	return nil
}

func (m *mockUserRepo) StorageUsage(ctx context.Context, userID string) (int64, int64, error) {
	return 0, 1 << 30, nil
}

func (m *mockUserRepo) AddStorageUsage(ctx context.Context, userID string, delta int64) error {
	return nil
}

// --- Test Helpers ---

// newTestService creates an auth service backed by a mock repo and an
// in-process miniredis instance.
func newTestService(t *testing.T, repo *mockUserRepo) Service {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewService(repo, rdb, 24*time.Hour)
}

func assertAppError(t *testing.T, err error, expectedCode int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %d, got nil", expectedCode)
	}
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *apperror.AppError, got %T: %v", err, err)
	}
	if appErr.Code != expectedCode {
		t.Errorf("expected status %d, got %d (message: %s)", expectedCode, appErr.Code, appErr.Message)
	}
}

// existingUser returns a user with a real argon2id hash of "correct-horse".
func existingUser(t *testing.T) *User {
	t.Helper()
	hash, err := hashPassword("correct-horse")
	if err != nil {
		t.Fatalf("hashing fixture password: %v", err)
	}
	return &User{
		ID:           "user-1",
		Email:        "ansel@example.com",
		DisplayName:  "Ansel",
		PasswordHash: hash,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}
}

// --- Register Tests ---

func TestRegister_Success(t *testing.T) {
	repo := &mockUserRepo{}
	svc := newTestService(t, repo)

	user, err := svc.Register(context.Background(), RegisterInput{
		Email:       "  Ansel@Example.COM ",
		DisplayName: " Ansel ",
		Password:    "correct-horse",
	})
	if err != nil {
		t.Fatalf("registering: %v", err)
	}

	if user.Email != "ansel@example.com" {
		t.Errorf("expected normalized email, got %q", user.Email)
	}
	if user.DisplayName != "Ansel" {
		t.Errorf("expected trimmed display name, got %q", user.DisplayName)
	}
	if user.ID == "" {
		t.Error("expected a generated user ID")
	}
	if user.PasswordHash == "correct-horse" || user.PasswordHash == "" {
		t.Error("password must be stored hashed")
	}
	if !user.IsActive {
		t.Error("new accounts should be active")
	}
	if len(repo.created) != 1 {
		t.Errorf("expected 1 created user, got %d", len(repo.created))
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	repo := &mockUserRepo{
		emailExistsFn: func(ctx context.Context, email string) (bool, error) {
			return true, nil
		},
	}
	svc := newTestService(t, repo)

	_, err := svc.Register(context.Background(), RegisterInput{
		Email:       "ansel@example.com",
		DisplayName: "Ansel",
		Password:    "correct-horse",
	})
	assertAppError(t, err, 409)
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name  string
		input RegisterInput
	}{
		{"bad email", RegisterInput{Email: "not-an-email", DisplayName: "Ansel", Password: "correct-horse"}},
		{"short display name", RegisterInput{Email: "a@b.com", DisplayName: "A", Password: "correct-horse"}},
		{"short password", RegisterInput{Email: "a@b.com", DisplayName: "Ansel", Password: "short"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, &mockUserRepo{})
			_, err := svc.Register(context.Background(), tt.input)
			assertAppError(t, err, 422)
		})
	}
}

// --- Login Tests ---

func TestLogin_Success(t *testing.T) {
	user := existingUser(t)
	repo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*User, error) {
			if email == user.Email {
				return user, nil
			}
			return nil, apperror.NewNotFound("user not found")
		},
	}
	svc := newTestService(t, repo)

	token, loggedIn, err := svc.Login(context.Background(), LoginInput{
		Email:    "Ansel@Example.com",
		Password: "correct-horse",
	})
	if err != nil {
		t.Fatalf("logging in: %v", err)
	}
	if token == "" {
		t.Fatal("expected a session token")
	}
	if loggedIn.ID != user.ID {
		t.Errorf("expected user %s, got %s", user.ID, loggedIn.ID)
	}

	// The token must round-trip through session validation.
	session, err := svc.ValidateSession(context.Background(), token)
	if err != nil {
		t.Fatalf("validating session: %v", err)
	}
	if session.UserID != user.ID {
		t.Errorf("expected session for %s, got %s", user.ID, session.UserID)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	user := existingUser(t)
	repo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*User, error) {
			return user, nil
		},
	}
	svc := newTestService(t, repo)

	_, _, err := svc.Login(context.Background(), LoginInput{
		Email:    user.Email,
		Password: "wrong-password",
	})
	assertAppError(t, err, 401)
}

func TestLogin_UnknownEmailSameError(t *testing.T) {
	// Unknown email and wrong password must be indistinguishable.
	svc := newTestService(t, &mockUserRepo{})

	_, _, err := svc.Login(context.Background(), LoginInput{
		Email:    "nobody@example.com",
		Password: "whatever-pass",
	})
	assertAppError(t, err, 401)

	var appErr *apperror.AppError
	errors.As(err, &appErr)
	if appErr.Message != "invalid email or password" {
		t.Errorf("login failure must use the generic message, got %q", appErr.Message)
	}
}

func TestLogin_InactiveAccount(t *testing.T) {
	user := existingUser(t)
	user.IsActive = false
	repo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*User, error) {
			return user, nil
		},
	}
	svc := newTestService(t, repo)

	_, _, err := svc.Login(context.Background(), LoginInput{
		Email:    user.Email,
		Password: "correct-horse",
	})
	assertAppError(t, err, 401)
}

// --- Session Tests ---

func TestDestroySession(t *testing.T) {
	user := existingUser(t)
	repo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*User, error) {
			return user, nil
		},
	}
	svc := newTestService(t, repo)

	token, _, err := svc.Login(context.Background(), LoginInput{
		Email:    user.Email,
		Password: "correct-horse",
	})
	if err != nil {
		t.Fatalf("logging in: %v", err)
	}

	if err := svc.DestroySession(context.Background(), token); err != nil {
		t.Fatalf("destroying session: %v", err)
	}

	_, err = svc.ValidateSession(context.Background(), token)
	assertAppError(t, err, 401)
}

func TestValidateSession_UnknownToken(t *testing.T) {
	svc := newTestService(t, &mockUserRepo{})

	_, err := svc.ValidateSession(context.Background(), "no-such-token")
	assertAppError(t, err, 401)
}

// --- Password Hashing Tests ---

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := hashPassword("correct-horse")
	if err != nil {
		t.Fatalf("hashing: %v", err)
	}

	if !verifyPassword("correct-horse", hash) {
		t.Error("correct password should verify")
	}
	if verifyPassword("wrong-password", hash) {
		t.Error("wrong password should not verify")
	}
	if verifyPassword("correct-horse", "not-a-phc-string") {
		t.Error("malformed hash should not verify")
	}
}
