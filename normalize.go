package phoneauth

import (
	"fmt"

	"github.com/vikram17dp/soul-flow-studio-main-sub000/internal"
)

// Normalized numbers must carry at least this many characters including the
// leading plus.
const minNormalizedLen = 10

// NormalizePhone turns a (country code, local number) pair into a canonical
// "+<digits>" string. The country code may carry a leading plus; the local
// number may carry spaces, dashes, or other formatting characters. Pure and
// idempotent.
func NormalizePhone(countryCode, localNumber string) (string, error) {
	cc := internal.DigitsOnly(countryCode)
	local := internal.DigitsOnly(localNumber)

	if local == "" {
		return "", fmt.Errorf("%w: empty local number", ErrInvalidPhoneNumber)
	}
	if cc == "" {
		return "", fmt.Errorf("%w: empty country code", ErrInvalidPhoneNumber)
	}

	normalized := "+" + cc + local
	if len(normalized) < minNormalizedLen {
		return "", fmt.Errorf("%w: %q too short", ErrInvalidPhoneNumber, normalized)
	}
	return normalized, nil
}
