package phoneauth

import (
	"errors"
	"time"
)

// Config groups all engine configuration. Populate it once, pass it to
// [Builder.WithConfig], and treat it as immutable afterwards.
type Config struct {
	Challenge ChallengeConfig
	OTP       OTPConfig
	Bridge    BridgeConfig
	Password  PasswordConfig
	Synthetic SyntheticConfig
	Provider  ProviderConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
CHALLENGE WIDGET CONFIG
====================================
*/

// ChallengeConfig controls the anti-automation widget requirement. Required
// is an explicit construction-time decision; the engine never inspects
// ambient environment state to decide whether a widget is needed.
type ChallengeConfig struct {
	// Required gates every code send on a solved widget token. Disable only
	// in test/dev setups whose provider accepts token-less sends.
	Required bool
	// HostElementID is the mount point passed to the widget host.
	HostElementID string
	// RenderTimeout bounds the wait for the widget to render and solve.
	RenderTimeout time.Duration
}

/*
====================================
OTP CONFIG
====================================
*/

// OTPConfig controls verification handles and the resend throttle.
type OTPConfig struct {
	// Digits is the exact code length accepted client-side.
	Digits int
	// HandleTTL bounds how long a sent code stays confirmable.
	HandleTTL time.Duration
	// MaxConfirmAttempts invalidates a handle after this many provider-side
	// rejections.
	MaxConfirmAttempts int
	// ResendCooldown is the client-side gate between sends to the same
	// number. A UX throttle only; the provider's own rate limiting remains
	// the authority.
	ResendCooldown time.Duration
	// RedisPrefix namespaces handle and cooldown keys.
	RedisPrefix string
}

/*
====================================
IDENTITY BRIDGE CONFIG
====================================
*/

// BridgeConfig controls the verified-phone to backend-session
// reconciliation.
type BridgeConfig struct {
	// RetryDelay is the pause before the single bounded sign-in retry that
	// absorbs backend propagation races.
	RetryDelay time.Duration
	// InFlightTTL bounds the per-phone guard so a crashed run cannot wedge a
	// number forever.
	InFlightTTL time.Duration
}

/*
====================================
PASSWORD PATH CONFIG
====================================
*/

// PasswordConfig controls local validation on the classic password path.
type PasswordConfig struct {
	MinLength int
}

/*
====================================
SYNTHETIC CREDENTIAL CONFIG
====================================
*/

// SyntheticConfig controls the deterministic credential pair derived from a
// verified phone number.
type SyntheticConfig struct {
	// EmailDomain forms the synthetic address as "<phone>@<EmailDomain>".
	EmailDomain string
	// Pepper is mixed into the password derivation. It must stay stable for
	// the lifetime of the deployment: changing it strands every
	// phone-registered account.
	Pepper []byte
}

/*
====================================
PROVIDER CALL CONFIG
====================================
*/

// ProviderConfig bounds outbound calls to both collaborators.
type ProviderConfig struct {
	// CallTimeout is applied to every verifier and identity-store call;
	// expiry surfaces as ErrProviderTimeout.
	CallTimeout time.Duration
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops events instead of blocking the flow when the buffer
	// is saturated. Dropped counts are observable via Engine.AuditDropped.
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

func defaultConfig() Config {
	return Config{
		Challenge: ChallengeConfig{
			Required:      true,
			HostElementID: "challenge-widget-host",
			RenderTimeout: 30 * time.Second,
		},
		OTP: OTPConfig{
			Digits:             6,
			HandleTTL:          5 * time.Minute,
			MaxConfirmAttempts: 5,
			ResendCooldown:     90 * time.Second,
			RedisPrefix:        "pvh",
		},
		Bridge: BridgeConfig{
			RetryDelay:  1500 * time.Millisecond,
			InFlightTTL: 30 * time.Second,
		},
		Password: PasswordConfig{
			MinLength: 6,
		},
		Synthetic: SyntheticConfig{
			EmailDomain: "phone.local",
		},
		Provider: ProviderConfig{
			CallTimeout: 30 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if c.OTP.Digits < 4 || c.OTP.Digits > 10 {
		return errors.New("OTP.Digits must be between 4 and 10")
	}
	if c.OTP.HandleTTL <= 0 {
		return errors.New("OTP.HandleTTL must be positive")
	}
	if c.OTP.MaxConfirmAttempts < 1 {
		return errors.New("OTP.MaxConfirmAttempts must be >= 1")
	}
	if c.OTP.ResendCooldown <= 0 {
		return errors.New("OTP.ResendCooldown must be positive")
	}
	if c.OTP.RedisPrefix == "" {
		return errors.New("OTP.RedisPrefix must not be empty")
	}
	if c.Challenge.Required && c.Challenge.HostElementID == "" {
		return errors.New("Challenge.HostElementID required when Challenge.Required")
	}
	if c.Challenge.Required && c.Challenge.RenderTimeout <= 0 {
		return errors.New("Challenge.RenderTimeout must be positive when Challenge.Required")
	}
	if c.Bridge.RetryDelay < 0 {
		return errors.New("Bridge.RetryDelay must not be negative")
	}
	if c.Bridge.InFlightTTL <= 0 {
		return errors.New("Bridge.InFlightTTL must be positive")
	}
	if c.Password.MinLength < 1 {
		return errors.New("Password.MinLength must be >= 1")
	}
	if c.Synthetic.EmailDomain == "" {
		return errors.New("Synthetic.EmailDomain must not be empty")
	}
	if c.Provider.CallTimeout <= 0 {
		return errors.New("Provider.CallTimeout must be positive")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.Synthetic.Pepper != nil {
		out.Synthetic.Pepper = append([]byte(nil), cfg.Synthetic.Pepper...)
	}
	return out
}
