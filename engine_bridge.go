package phoneauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
)

// bridgeGuard serializes bridge runs per phone number. The reconciliation
// ladder is not safe to run twice concurrently for the same number, so the
// second caller is rejected instead of interleaved. The TTL bounds the lease
// in case a run crashes without releasing.
type bridgeGuard struct {
	redis  *redis.Client
	prefix string
	ttl    time.Duration
}

func newBridgeGuard(redisClient *redis.Client, prefix string, ttl time.Duration) *bridgeGuard {
	return &bridgeGuard{redis: redisClient, prefix: prefix, ttl: ttl}
}

func (g *bridgeGuard) key(phone string) string {
	return g.prefix + ":br:" + phone
}

func (g *bridgeGuard) acquire(ctx context.Context, phone string) error {
	ok, err := g.redis.SetNX(ctx, g.key(phone), 1, g.ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: guard: %v", ErrSessionEstablishmentFailed, err)
	}
	if !ok {
		return ErrBridgeInFlight
	}
	return nil
}

func (g *bridgeGuard) release(ctx context.Context, phone string) {
	_, _ = g.redis.Del(ctx, g.key(phone)).Result()
}

// EstablishSession turns a verified phone identity into a live backend
// session. It reconciles three prior states: no backend record, a profile
// without a working credential (a previous run died between steps), and a
// fully registered user. The whole ladder is idempotent: re-running it for
// the same phone number converges on the same single profile/session pair,
// and at most one profile is ever created per phone number.
func (e *Engine) EstablishSession(ctx context.Context, identity *VerifiedPhoneIdentity, displayName string) (*Session, error) {
	if e == nil || e.identity == nil || e.bridgeGuard == nil || e.deriver == nil {
		return nil, ErrEngineNotReady
	}
	if identity == nil || identity.Phone == "" {
		return nil, fmt.Errorf("%w: no verified identity", ErrSessionEstablishmentFailed)
	}

	phone := identity.Phone
	if err := e.bridgeGuard.acquire(ctx, phone); err != nil {
		e.emitAudit(ctx, auditEventBridge, false, phone, "", err, nil)
		return nil, err
	}
	defer e.bridgeGuard.release(ctx, phone)

	email, pass, err := e.syntheticCredentials(phone)
	if err != nil {
		return nil, e.bridgeFailed(ctx, phone, err)
	}

	// Defensive: never mix a stale session from another number into this
	// attempt. A failed clear is recorded but does not abort.
	if err := e.storeSignOut(ctx); err != nil {
		e.emitAudit(ctx, auditEventSessionClear, false, phone, "", err, nil)
	}

	profile, err := e.storeProfileByPhone(ctx, phone)
	if err != nil {
		return nil, e.bridgeFailed(ctx, phone, err)
	}

	if profile != nil {
		if err := e.signInExisting(ctx, phone, profile, email, pass, displayName); err != nil {
			return nil, e.bridgeFailed(ctx, phone, err)
		}
	} else {
		if err := e.signUpFresh(ctx, phone, email, pass, displayName); err != nil {
			return nil, e.bridgeFailed(ctx, phone, err)
		}
	}

	// An apparently successful call with no resulting session is a failure,
	// not a success: only a fetched live session proves the bridge worked.
	live, err := e.storeGetSession(ctx)
	if err != nil {
		return nil, e.bridgeFailed(ctx, phone, err)
	}
	if live == nil {
		return nil, e.bridgeFailed(ctx, phone, fmt.Errorf("%w: no live session after reconciliation", ErrSessionEstablishmentFailed))
	}

	e.metricInc(MetricBridgeSuccess)
	e.emitAudit(ctx, auditEventBridge, true, phone, live.UserID, nil, nil)
	return live, nil
}

// signInExisting handles the returning-user branches: a working credential, a
// profile whose credential was never created, and the propagation race
// between the two.
func (e *Engine) signInExisting(
	ctx context.Context,
	phone string,
	profile *Profile,
	email, pass, displayName string,
) error {
	if _, err := e.storeSignIn(ctx, email, pass); err == nil {
		return nil
	}

	// Forgiving fallback: the profile exists but sign-in failed, so attempt
	// a registration to recreate the missing credential. If this fires for a
	// number with a working credential it indicates a derivation problem,
	// which is why it carries its own metric and audit event.
	e.metricInc(MetricBridgeFallbackSignup)
	e.emitAudit(ctx, auditEventBridgeFallback, true, phone, profile.UserID, nil, func() map[string]string {
		return map[string]string{"membership_type": profile.MembershipType}
	})

	name := displayName
	if name == "" {
		name = profile.FullName
	}

	result, err := e.storeSignUp(ctx, email, pass, ProfileMetadata{
		FullName:       name,
		Phone:          phone,
		MembershipType: profile.MembershipType,
	})
	switch {
	case err == nil && result.Session != nil:
		return nil
	case err == nil:
		return e.delayedSignIn(ctx, email, pass)
	case errors.Is(err, ErrAlreadyRegistered):
		return e.delayedSignIn(ctx, email, pass)
	default:
		return err
	}
}

// signUpFresh handles the new-user branch, absorbing both the
// confirmation-required case and a concurrent registration race.
func (e *Engine) signUpFresh(ctx context.Context, phone, email, pass, displayName string) error {
	result, err := e.storeSignUp(ctx, email, pass, ProfileMetadata{
		FullName: displayName,
		Phone:    phone,
	})
	switch {
	case err == nil && result.Session != nil:
		return nil
	case err == nil:
		return e.delayedSignIn(ctx, email, pass)
	case errors.Is(err, ErrAlreadyRegistered):
		return e.delayedSignIn(ctx, email, pass)
	default:
		return err
	}
}

// delayedSignIn retries the sign-in at most once after the configured delay,
// absorbing backend propagation of a just-created credential.
func (e *Engine) delayedSignIn(ctx context.Context, email, pass string) error {
	backoff := retry.WithMaxRetries(1, retry.NewConstant(e.config.Bridge.RetryDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if _, err := e.storeSignIn(ctx, email, pass); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

func (e *Engine) bridgeFailed(ctx context.Context, phone string, cause error) error {
	err := cause
	if !errors.Is(err, ErrSessionEstablishmentFailed) && !errors.Is(err, ErrProviderTimeout) {
		err = fmt.Errorf("%w: %v", ErrSessionEstablishmentFailed, cause)
	}
	e.metricInc(MetricBridgeFailure)
	e.emitAudit(ctx, auditEventBridge, false, phone, "", err, nil)
	return err
}

/*
====================================
IDENTITY STORE CALL WRAPPERS
====================================
*/

func (e *Engine) storeSignIn(ctx context.Context, email, pass string) (*Session, error) {
	pctx, cancel := e.providerCtx(ctx)
	defer cancel()

	sess, err := e.identity.SignIn(pctx, email, pass)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: sign-in: %v", ErrProviderTimeout, err)
		}
		return nil, err
	}
	return sess, nil
}

func (e *Engine) storeSignUp(ctx context.Context, email, pass string, meta ProfileMetadata) (*SignUpResult, error) {
	pctx, cancel := e.providerCtx(ctx)
	defer cancel()

	result, err := e.identity.SignUp(pctx, email, pass, meta)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: sign-up: %v", ErrProviderTimeout, err)
		}
		return nil, err
	}
	return result, nil
}

func (e *Engine) storeGetSession(ctx context.Context) (*Session, error) {
	pctx, cancel := e.providerCtx(ctx)
	defer cancel()

	sess, err := e.identity.GetSession(pctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: get-session: %v", ErrProviderTimeout, err)
		}
		return nil, err
	}
	return sess, nil
}

func (e *Engine) storeSignOut(ctx context.Context) error {
	pctx, cancel := e.providerCtx(ctx)
	defer cancel()
	return e.identity.SignOut(pctx)
}

func (e *Engine) storeProfileByPhone(ctx context.Context, phone string) (*Profile, error) {
	pctx, cancel := e.providerCtx(ctx)
	defer cancel()

	profile, err := e.identity.GetProfileByPhone(pctx, phone)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: profile lookup: %v", ErrProviderTimeout, err)
		}
		return nil, err
	}
	return profile, nil
}
