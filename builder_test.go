package phoneauth

import (
	"strings"
	"testing"
)

func TestBuilderRequiresDependencies(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	store, err := NewMemoryIdentityStore()
	if err != nil {
		t.Fatalf("NewMemoryIdentityStore failed: %v", err)
	}
	verifier := NewSimulatedVerifier()
	host := NewSimulatedChallengeHost()

	cases := []struct {
		name    string
		build   func() *Builder
		wantMsg string
	}{
		{
			"missing redis",
			func() *Builder {
				return New().WithVerifier(verifier).WithChallengeHost(host).WithIdentityStore(store)
			},
			"redis",
		},
		{
			"missing verifier",
			func() *Builder {
				return New().WithRedis(rdb).WithChallengeHost(host).WithIdentityStore(store)
			},
			"verifier",
		},
		{
			"missing identity store",
			func() *Builder {
				return New().WithRedis(rdb).WithVerifier(verifier).WithChallengeHost(host)
			},
			"identity store",
		},
		{
			"missing challenge host",
			func() *Builder {
				return New().WithRedis(rdb).WithVerifier(verifier).WithIdentityStore(store)
			},
			"challenge host",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.build().Build()
			if err == nil {
				t.Fatal("expected build error")
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Fatalf("expected error naming %s, got %v", tc.wantMsg, err)
			}
		})
	}
}

func TestBuilderChallengeHostOptionalWhenNotRequired(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	store, err := NewMemoryIdentityStore()
	if err != nil {
		t.Fatalf("NewMemoryIdentityStore failed: %v", err)
	}

	cfg := testConfig()
	cfg.Challenge.Required = false

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithVerifier(NewSimulatedVerifier()).
		WithIdentityStore(store).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	engine.Close()
}

func TestBuilderSingleUse(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	store, err := NewMemoryIdentityStore()
	if err != nil {
		t.Fatalf("NewMemoryIdentityStore failed: %v", err)
	}

	b := New().
		WithConfig(testConfig()).
		WithRedis(rdb).
		WithVerifier(NewSimulatedVerifier()).
		WithChallengeHost(NewSimulatedChallengeHost()).
		WithIdentityStore(store)

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}

func TestBuilderRejectsInvalidConfig(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	store, err := NewMemoryIdentityStore()
	if err != nil {
		t.Fatalf("NewMemoryIdentityStore failed: %v", err)
	}

	cfg := testConfig()
	cfg.OTP.Digits = 0

	_, err = New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithVerifier(NewSimulatedVerifier()).
		WithChallengeHost(NewSimulatedChallengeHost()).
		WithIdentityStore(store).
		Build()
	if err == nil {
		t.Fatal("expected config validation to fail the build")
	}
}
