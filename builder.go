package phoneauth

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/vikram17dp/soul-flow-studio-main-sub000/password"
)

// Builder assembles an Engine. Configure it during initialization, call
// Build once, and discard it.
type Builder struct {
	config Config

	redis         *redis.Client
	verifier      PhoneVerifier
	challengeHost ChallengeHost
	identityStore IdentityStore
	auditSink     AuditSink

	built bool
}

// New returns a builder seeded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the entire configuration. The builder keeps its own
// copy.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing handle storage, the resend
// cooldown, and the bridge guard.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithVerifier sets the phone verification provider.
func (b *Builder) WithVerifier(v PhoneVerifier) *Builder {
	b.verifier = v
	return b
}

// WithChallengeHost sets the widget host. Required unless
// Config.Challenge.Required is false.
func (b *Builder) WithChallengeHost(h ChallengeHost) *Builder {
	b.challengeHost = h
	return b
}

// WithIdentityStore sets the backend identity store the bridge signs into.
func (b *Builder) WithIdentityStore(s IdentityStore) *Builder {
	b.identityStore = s
	return b
}

// WithAuditSink sets the destination for audit events. Nil with auditing
// enabled falls back to a no-op sink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and wiring and returns an immutable
// Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.verifier == nil {
		return nil, errors.New("phone verifier required")
	}
	if b.identityStore == nil {
		return nil, errors.New("identity store required")
	}
	if cfg.Challenge.Required && b.challengeHost == nil {
		return nil, errors.New("challenge host required when Challenge.Required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	engine := &Engine{
		config:   cfg,
		verifier: b.verifier,
		identity: b.identityStore,
	}

	engine.widgets = newWidgetManager(b.challengeHost, cfg.Challenge)
	engine.handles = newVerificationHandleStore(b.redis, cfg.OTP.RedisPrefix)
	engine.resendLimiter = newResendCooldownLimiter(b.redis, cfg.OTP.RedisPrefix, cfg.OTP.ResendCooldown)
	engine.bridgeGuard = newBridgeGuard(b.redis, cfg.OTP.RedisPrefix, cfg.Bridge.InFlightTTL)
	engine.deriver = password.NewDeriver(cfg.Synthetic.Pepper)
	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	b.built = true

	return engine, nil
}
