package phoneauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// PasswordSignIn authenticates a returning user with phone number and
// password directly against the identity store, no OTP involved.
func (e *Engine) PasswordSignIn(ctx context.Context, countryCode, localNumber, pass string) (*Session, error) {
	if e == nil || e.identity == nil {
		return nil, ErrEngineNotReady
	}

	phone, err := NormalizePhone(countryCode, localNumber)
	if err != nil {
		e.emitAudit(ctx, auditEventPasswordSignIn, false, "", "", err, nil)
		return nil, err
	}

	email := SyntheticEmail(phone, e.config.Synthetic.EmailDomain)
	sess, err := e.storeSignIn(ctx, email, pass)
	if err != nil {
		// Only genuine credential rejections surface as ErrInvalidCredentials.
		// A backend outage must not look like a wrong password.
		mapped := err
		if !errors.Is(err, ErrInvalidCredentials) && !errors.Is(err, ErrProviderTimeout) {
			mapped = fmt.Errorf("%w: %v", ErrProviderUnknown, err)
		}
		e.metricInc(MetricPasswordSignInFailure)
		e.emitAudit(ctx, auditEventPasswordSignIn, false, phone, "", mapped, nil)
		return nil, mapped
	}

	e.metricInc(MetricPasswordSignInSuccess)
	e.emitAudit(ctx, auditEventPasswordSignIn, true, phone, sess.UserID, nil, nil)
	return sess, nil
}

// PasswordSignUp registers a new user with phone number and password. Local
// validation runs before any network call: an empty name or a short password
// never reaches the backend.
func (e *Engine) PasswordSignUp(ctx context.Context, name, countryCode, localNumber, pass string) (*Session, error) {
	if e == nil || e.identity == nil {
		return nil, ErrEngineNotReady
	}

	if strings.TrimSpace(name) == "" {
		e.emitAudit(ctx, auditEventPasswordSignUp, false, "", "", ErrValidation, func() map[string]string {
			return map[string]string{"reason": "empty_name"}
		})
		return nil, fmt.Errorf("%w: name required", ErrValidation)
	}
	if len(pass) < e.config.Password.MinLength {
		e.emitAudit(ctx, auditEventPasswordSignUp, false, "", "", ErrValidation, func() map[string]string {
			return map[string]string{"reason": "short_password"}
		})
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrValidation, e.config.Password.MinLength)
	}

	phone, err := NormalizePhone(countryCode, localNumber)
	if err != nil {
		e.emitAudit(ctx, auditEventPasswordSignUp, false, "", "", err, nil)
		return nil, err
	}

	email := SyntheticEmail(phone, e.config.Synthetic.EmailDomain)
	result, err := e.storeSignUp(ctx, email, pass, ProfileMetadata{
		FullName: strings.TrimSpace(name),
		Phone:    phone,
	})
	if err != nil {
		// AlreadyRegistered passes through untouched so the flow can
		// auto-switch to sign-in.
		e.metricInc(MetricPasswordSignUpFailure)
		e.emitAudit(ctx, auditEventPasswordSignUp, false, phone, "", err, nil)
		return nil, err
	}

	sess := result.Session
	if sess == nil {
		// Backend wants out-of-band confirmation; one delayed sign-in settles
		// the common case where propagation just lagged.
		if err := e.delayedSignIn(ctx, email, pass); err != nil {
			e.metricInc(MetricPasswordSignUpFailure)
			e.emitAudit(ctx, auditEventPasswordSignUp, false, phone, "", err, nil)
			return nil, fmt.Errorf("%w: %v", ErrSessionEstablishmentFailed, err)
		}
		sess, err = e.storeGetSession(ctx)
		if err != nil || sess == nil {
			e.metricInc(MetricPasswordSignUpFailure)
			return nil, fmt.Errorf("%w: no session after sign-up", ErrSessionEstablishmentFailed)
		}
	}

	e.metricInc(MetricPasswordSignUpSuccess)
	e.emitAudit(ctx, auditEventPasswordSignUp, true, phone, result.UserID, nil, nil)
	return sess, nil
}
