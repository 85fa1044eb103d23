package phoneauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vikram17dp/soul-flow-studio-main-sub000/password"
)

// Engine coordinates the phone-verification provider, the challenge widget,
// and the backend identity store. Build one through [Builder.Build] and treat
// it as immutable; all methods are safe for concurrent use.
type Engine struct {
	config        Config
	verifier      PhoneVerifier
	identity      IdentityStore
	widgets       *widgetManager
	handles       *verificationHandleStore
	resendLimiter *resendCooldownLimiter
	bridgeGuard   *bridgeGuard
	deriver       *password.Deriver
	audit         *auditDispatcher
	metrics       *Metrics
}

// Close releases background resources. It drains the audit queue and, if a
// widget is still mounted, tears it down.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.widgets != nil {
		_ = e.widgets.Reset()
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were dropped under backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

// WidgetMounted reports whether a challenge widget is currently held. Exposed
// so callers can assert release after teardown.
func (e *Engine) WidgetMounted() bool {
	if e == nil || e.widgets == nil {
		return false
	}
	return e.widgets.Mounted()
}

// ResendRemaining reports the active resend cooldown for a phone number, zero
// when a resend would be accepted. Intended for countdown UI.
func (e *Engine) ResendRemaining(ctx context.Context, countryCode, localNumber string) (time.Duration, error) {
	if e == nil || e.resendLimiter == nil {
		return 0, ErrEngineNotReady
	}
	phone, err := NormalizePhone(countryCode, localNumber)
	if err != nil {
		return 0, err
	}
	remaining, err := e.resendLimiter.Remaining(ctx, phone)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrVerificationUnavailable, err)
	}
	return remaining, nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// providerCtx bounds an outbound collaborator call with the configured
// deadline.
func (e *Engine) providerCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.config.Provider.CallTimeout)
}

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	phone string,
	userID string,
	failure error,
	metadata func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: eventType,
		Phone:     maskPhone(phone),
		UserID:    userID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
	}
	if failure != nil {
		event.Error = failure.Error()
	}
	if metadata != nil {
		event.Metadata = metadata()
	}

	e.audit.Emit(ctx, event)
}

// mapProviderErr converts a raw verifier failure into this package's error
// surface. Unmapped failures keep the provider's message under
// ErrProviderUnknown.
func mapProviderErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrProviderTimeout, err)
	}

	var verr *VerifierError
	if errors.As(err, &verr) {
		switch verr.Code {
		case VerifierInvalidPhone:
			return fmt.Errorf("%w: %s", ErrInvalidPhoneNumber, verr.Message)
		case VerifierRateLimited:
			return fmt.Errorf("%w: %s", ErrRateLimited, verr.Message)
		case VerifierUnauthorizedOrigin:
			return fmt.Errorf("%w: %s", ErrUnauthorizedOrigin, verr.Message)
		case VerifierChallengeFailed:
			return fmt.Errorf("%w: %s", ErrChallengeFailed, verr.Message)
		case VerifierIncorrectCode:
			return ErrIncorrectCode
		}
	}

	return fmt.Errorf("%w: %v", ErrProviderUnknown, err)
}

func mapHandleStoreErr(err error) error {
	switch {
	case errors.Is(err, errHandleNotFound):
		return ErrVerificationNotFound
	case errors.Is(err, errHandleExpired):
		return ErrVerificationExpired
	case errors.Is(err, errHandleBackend), errors.Is(err, errCooldownBackend):
		return fmt.Errorf("%w: %v", ErrVerificationUnavailable, err)
	default:
		return err
	}
}
