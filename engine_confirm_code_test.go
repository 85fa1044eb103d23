package phoneauth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestConfirmCodeSuccess(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	engine, _ := newTestEngine(t, rdb, nil)

	handle, err := engine.SendCode(ctx, testCountryCode, testLocalNumber)
	if err != nil {
		t.Fatalf("SendCode failed: %v", err)
	}

	identity, err := engine.ConfirmCode(ctx, handle, testCode)
	if err != nil {
		t.Fatalf("ConfirmCode failed: %v", err)
	}
	if identity.Phone != testPhone {
		t.Fatalf("expected phone %q, got %q", testPhone, identity.Phone)
	}
	if identity.ProviderUID == "" {
		t.Fatal("expected provider UID")
	}
	if identity.VerifiedAt.IsZero() {
		t.Fatal("expected VerifiedAt to be set")
	}
	if engine.WidgetMounted() {
		t.Fatal("widget must be released after a confirmed attempt")
	}
}

func TestConfirmCodeFormatRejectedLocally(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	engine, _ := newTestEngine(t, rdb, nil)

	handle, err := engine.SendCode(ctx, testCountryCode, testLocalNumber)
	if err != nil {
		t.Fatalf("SendCode failed: %v", err)
	}

	for _, code := range []string{"", "12345", "1234567", "12a456", "12 456"} {
		if _, err := engine.ConfirmCode(ctx, handle, code); !errors.Is(err, ErrInvalidCodeFormat) {
			t.Fatalf("code %q: expected ErrInvalidCodeFormat, got %v", code, err)
		}
	}

	// Malformed input must not have charged an attempt.
	if _, err := engine.ConfirmCode(ctx, handle, testCode); err != nil {
		t.Fatalf("confirm after format rejections failed: %v", err)
	}
}

func TestConfirmCodeWrongCodeKeepsHandle(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	engine, _ := newTestEngine(t, rdb, nil)

	handle, err := engine.SendCode(ctx, testCountryCode, testLocalNumber)
	if err != nil {
		t.Fatalf("SendCode failed: %v", err)
	}

	if _, err := engine.ConfirmCode(ctx, handle, "000000"); !errors.Is(err, ErrIncorrectCode) {
		t.Fatalf("expected ErrIncorrectCode, got %v", err)
	}

	// The user corrects the entry without a fresh send.
	if _, err := engine.ConfirmCode(ctx, handle, testCode); err != nil {
		t.Fatalf("confirm after wrong code failed: %v", err)
	}
}

func TestConfirmCodeAttemptCap(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	engine, _ := newTestEngine(t, rdb, func(b *Builder) {
		cfg := testConfig()
		cfg.OTP.MaxConfirmAttempts = 3
		b.WithConfig(cfg)
	})

	handle, err := engine.SendCode(ctx, testCountryCode, testLocalNumber)
	if err != nil {
		t.Fatalf("SendCode failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := engine.ConfirmCode(ctx, handle, "000000"); !errors.Is(err, ErrIncorrectCode) {
			t.Fatalf("attempt %d: expected ErrIncorrectCode, got %v", i+1, err)
		}
	}
	if _, err := engine.ConfirmCode(ctx, handle, "000000"); !errors.Is(err, ErrVerificationAttemptsExceeded) {
		t.Fatalf("expected ErrVerificationAttemptsExceeded, got %v", err)
	}

	// The cap invalidates the handle; even the right code is too late.
	if _, err := engine.ConfirmCode(ctx, handle, testCode); !errors.Is(err, ErrVerificationNotFound) {
		t.Fatalf("expected ErrVerificationNotFound after cap, got %v", err)
	}

	snap := engine.MetricsSnapshot()
	if got := snap.Counters[MetricConfirmAttemptsExceeded]; got != 1 {
		t.Fatalf("expected 1 exceeded count, got %d", got)
	}
}

func TestConfirmCodeSingleUse(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	engine, _ := newTestEngine(t, rdb, nil)

	handle, err := engine.SendCode(ctx, testCountryCode, testLocalNumber)
	if err != nil {
		t.Fatalf("SendCode failed: %v", err)
	}

	if _, err := engine.ConfirmCode(ctx, handle, testCode); err != nil {
		t.Fatalf("first confirm failed: %v", err)
	}
	if _, err := engine.ConfirmCode(ctx, handle, testCode); !errors.Is(err, ErrVerificationNotFound) {
		t.Fatalf("expected consumed handle to be gone, got %v", err)
	}
}

func TestConfirmCodeExpiredHandle(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	engine, _ := newTestEngine(t, rdb, nil)

	handle, err := engine.SendCode(ctx, testCountryCode, testLocalNumber)
	if err != nil {
		t.Fatalf("SendCode failed: %v", err)
	}

	mr.FastForward(6 * time.Minute)

	_, err = engine.ConfirmCode(ctx, handle, testCode)
	if !errors.Is(err, ErrVerificationNotFound) && !errors.Is(err, ErrVerificationExpired) {
		t.Fatalf("expected expired or missing handle, got %v", err)
	}
}

func TestConfirmCodeNilHandle(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	engine, _ := newTestEngine(t, rdb, nil)

	if _, err := engine.ConfirmCode(context.Background(), nil, testCode); !errors.Is(err, ErrVerificationNotFound) {
		t.Fatalf("expected ErrVerificationNotFound, got %v", err)
	}
}

func TestConfirmCodeProviderFailureResetsWidget(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	ctx := context.Background()
	engine, deps := newTestEngine(t, rdb, nil)

	handle, err := engine.SendCode(ctx, testCountryCode, testLocalNumber)
	if err != nil {
		t.Fatalf("SendCode failed: %v", err)
	}

	deps.verifier.FailNextConfirm(errors.New("verification service glitch"))
	if _, err := engine.ConfirmCode(ctx, handle, testCode); !errors.Is(err, ErrProviderUnknown) {
		t.Fatalf("expected ErrProviderUnknown, got %v", err)
	}
	if engine.WidgetMounted() {
		t.Fatal("provider failure must tear the widget down")
	}

	// Only a rejected code charges an attempt; a provider fault leaves the
	// handle confirmable once the injected failure clears.
	if _, err := engine.ConfirmCode(ctx, handle, testCode); err != nil {
		t.Fatalf("confirm after provider recovery failed: %v", err)
	}
}
