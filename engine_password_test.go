package phoneauth

import (
	"context"
	"errors"
	"strings"
	"testing"
)

const testPassword = "s3cret-pass"

func TestPasswordSignUpThenSignIn(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	engine, _ := newTestEngine(t, rdb, nil)

	created, err := engine.PasswordSignUp(ctx, "Asha", testCountryCode, testLocalNumber, testPassword)
	if err != nil {
		t.Fatalf("PasswordSignUp failed: %v", err)
	}
	if created.AccessToken == "" {
		t.Fatal("expected a session from sign-up")
	}

	session, err := engine.PasswordSignIn(ctx, testCountryCode, testLocalNumber, testPassword)
	if err != nil {
		t.Fatalf("PasswordSignIn failed: %v", err)
	}
	if session.UserID != created.UserID {
		t.Fatalf("sign-in resolved a different account: %q vs %q", session.UserID, created.UserID)
	}
}

func TestPasswordSignUpValidatesBeforeNetwork(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	engine, deps := newTestEngine(t, rdb, nil)

	if _, err := engine.PasswordSignUp(ctx, "Asha", testCountryCode, testLocalNumber, "short"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for short password, got %v", err)
	}
	if _, err := engine.PasswordSignUp(ctx, "   ", testCountryCode, testLocalNumber, testPassword); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for blank name, got %v", err)
	}

	if deps.store.SignUpCalls() != 0 {
		t.Fatalf("local validation must reject before the store is called, got %d calls", deps.store.SignUpCalls())
	}
}

func TestPasswordSignUpAlreadyRegisteredPassesThrough(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	engine, _ := newTestEngine(t, rdb, nil)

	if _, err := engine.PasswordSignUp(ctx, "Asha", testCountryCode, testLocalNumber, testPassword); err != nil {
		t.Fatalf("first sign-up failed: %v", err)
	}
	if _, err := engine.PasswordSignUp(ctx, "Asha", testCountryCode, testLocalNumber, testPassword); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
}

func TestPasswordSignInWrongCredentials(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	engine, _ := newTestEngine(t, rdb, nil)

	if _, err := engine.PasswordSignUp(ctx, "Asha", testCountryCode, testLocalNumber, testPassword); err != nil {
		t.Fatalf("sign-up failed: %v", err)
	}

	if _, err := engine.PasswordSignIn(ctx, testCountryCode, testLocalNumber, "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := engine.PasswordSignIn(ctx, testCountryCode, "9999999999", testPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown number, got %v", err)
	}
}

func TestPasswordSignUpDeferredSession(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	engine, deps := newTestEngine(t, rdb, nil)
	deps.store.DeferSession = true

	session, err := engine.PasswordSignUp(ctx, "Asha", testCountryCode, testLocalNumber, testPassword)
	if err != nil {
		t.Fatalf("deferred sign-up failed: %v", err)
	}
	if session == nil || session.AccessToken == "" {
		t.Fatal("expected the settling sign-in to produce a session")
	}
}

func TestPasswordSignUpTrimsName(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	engine, deps := newTestEngine(t, rdb, nil)

	if _, err := engine.PasswordSignUp(ctx, "  Asha  ", testCountryCode, testLocalNumber, testPassword); err != nil {
		t.Fatalf("sign-up failed: %v", err)
	}

	profile, err := deps.store.GetProfileByPhone(ctx, testPhone)
	if err != nil {
		t.Fatalf("GetProfileByPhone failed: %v", err)
	}
	if profile == nil || strings.TrimSpace(profile.FullName) != profile.FullName {
		t.Fatalf("expected trimmed name on profile, got %+v", profile)
	}
}

// outageSignInStore simulates an identity backend whose sign-in endpoint is
// down, as opposed to one rejecting the credentials.
type outageSignInStore struct {
	*MemoryIdentityStore
}

func (s *outageSignInStore) SignIn(ctx context.Context, email, password string) (*Session, error) {
	return nil, errors.New("identity backend unreachable")
}

func TestPasswordSignInBackendOutageIsNotCredentialFailure(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	engine, _ := newTestEngine(t, rdb, func(b *Builder) {
		inner, err := NewMemoryIdentityStore()
		if err != nil {
			t.Fatalf("NewMemoryIdentityStore failed: %v", err)
		}
		b.WithIdentityStore(&outageSignInStore{MemoryIdentityStore: inner})
	})

	_, err := engine.PasswordSignIn(ctx, testCountryCode, testLocalNumber, testPassword)
	if err == nil {
		t.Fatal("expected the outage to surface")
	}
	if errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("backend outage must not read as wrong credentials: %v", err)
	}
	if !errors.Is(err, ErrProviderUnknown) {
		t.Fatalf("expected ErrProviderUnknown, got %v", err)
	}
	if kind := Classify(err); kind != KindUnavailable {
		t.Fatalf("expected KindUnavailable, got %v", kind)
	}
}
