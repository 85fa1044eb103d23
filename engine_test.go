package phoneauth

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestMapProviderErr(t *testing.T) {
	cases := []struct {
		name string
		in   error
		want error
	}{
		{"deadline", context.DeadlineExceeded, ErrProviderTimeout},
		{"wrapped deadline", fmt.Errorf("rpc: %w", context.DeadlineExceeded), ErrProviderTimeout},
		{"invalid phone", &VerifierError{Code: VerifierInvalidPhone, Message: "bad number"}, ErrInvalidPhoneNumber},
		{"rate limited", &VerifierError{Code: VerifierRateLimited, Message: "slow down"}, ErrRateLimited},
		{"unauthorized origin", &VerifierError{Code: VerifierUnauthorizedOrigin, Message: "blocked"}, ErrUnauthorizedOrigin},
		{"challenge failed", &VerifierError{Code: VerifierChallengeFailed, Message: "token rejected"}, ErrChallengeFailed},
		{"incorrect code", &VerifierError{Code: VerifierIncorrectCode, Message: "mismatch"}, ErrIncorrectCode},
		{"unmapped verifier code", &VerifierError{Code: VerifierErrorCode(99), Message: "mystery"}, ErrProviderUnknown},
		{"plain error", errors.New("wire snapped"), ErrProviderUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := mapProviderErr(tc.in)
			if !errors.Is(got, tc.want) {
				t.Fatalf("mapProviderErr(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestMapProviderErrIncorrectCodeIsBare(t *testing.T) {
	got := mapProviderErr(&VerifierError{Code: VerifierIncorrectCode, Message: "mismatch"})
	if got != ErrIncorrectCode {
		t.Fatalf("expected the bare sentinel, got %v", got)
	}
}
