package phoneauth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// VerificationHandle references one sent code. Exactly one handle is
// confirmable per phone number at a time; a newer send supersedes it.
type VerificationHandle struct {
	ID    string
	Phone string
}

// SendCode normalizes the number, acquires a challenge token when required,
// asks the provider to dispatch a code, and returns the handle to confirm it
// with. On any failure the challenge widget is reset, so the next attempt
// starts from a clean mount.
func (e *Engine) SendCode(ctx context.Context, countryCode, localNumber string) (*VerificationHandle, error) {
	if e == nil || e.verifier == nil || e.handles == nil || e.widgets == nil {
		return nil, ErrEngineNotReady
	}

	phone, err := NormalizePhone(countryCode, localNumber)
	if err != nil {
		e.emitAudit(ctx, auditEventSendCode, false, "", "", err, nil)
		return nil, err
	}

	widget, err := e.widgets.Acquire(ctx)
	if err != nil {
		e.metricInc(MetricWidgetInitFailure)
		e.metricInc(MetricSendFailure)
		e.emitAudit(ctx, auditEventSendCode, false, phone, "", err, nil)
		return nil, err
	}

	return e.dispatchCode(ctx, phone, widget, auditEventSendCode)
}

// ResendCode invalidates the current handle and widget, then performs a fresh
// send. Gated by the client-side cooldown; the reservation is released if the
// new send fails, so a provider error does not cost the user a full window.
func (e *Engine) ResendCode(ctx context.Context, handle *VerificationHandle) (*VerificationHandle, error) {
	if e == nil || e.verifier == nil || e.handles == nil || e.widgets == nil {
		return nil, ErrEngineNotReady
	}
	if handle == nil {
		return nil, ErrVerificationNotFound
	}

	phone := handle.Phone
	if err := e.resendLimiter.Reserve(ctx, phone); err != nil {
		if errors.Is(err, ErrResendCooldown) {
			e.metricInc(MetricResendCooldownHit)
			e.emitAudit(ctx, auditEventResendCode, false, phone, "", err, nil)
			return nil, err
		}
		return nil, mapHandleStoreErr(err)
	}

	if err := e.handles.InvalidatePhone(ctx, phone); err != nil {
		_ = e.resendLimiter.Release(ctx, phone)
		return nil, mapHandleStoreErr(err)
	}

	// The previous attempt's widget state is spent either way.
	_ = e.widgets.Reset()

	widget, err := e.widgets.Acquire(ctx)
	if err != nil {
		_ = e.resendLimiter.Release(ctx, phone)
		e.metricInc(MetricWidgetInitFailure)
		e.metricInc(MetricSendFailure)
		e.emitAudit(ctx, auditEventResendCode, false, phone, "", err, nil)
		return nil, err
	}

	fresh, err := e.dispatchCode(ctx, phone, widget, auditEventResendCode)
	if err != nil {
		_ = e.resendLimiter.Release(ctx, phone)
		return nil, err
	}
	return fresh, nil
}

// dispatchCode performs the provider send for an already-normalized number.
// widget may be nil only when the configuration does not require a challenge.
func (e *Engine) dispatchCode(
	ctx context.Context,
	phone string,
	widget *ChallengeWidget,
	event string,
) (*VerificationHandle, error) {
	token := ""
	if widget != nil {
		var err error
		token, err = widget.Token(ctx)
		if err != nil {
			_ = e.widgets.Reset()
			e.metricInc(MetricSendFailure)
			e.emitAudit(ctx, event, false, phone, "", err, func() map[string]string {
				return map[string]string{"stage": "challenge"}
			})
			return nil, err
		}
	} else if e.config.Challenge.Required {
		return nil, ErrWidgetRequired
	}

	pctx, cancel := e.providerCtx(ctx)
	defer cancel()

	providerRef, err := e.verifier.SendCode(pctx, phone, token)
	if err != nil {
		mapped := mapProviderErr(err)
		// A spent or rejected token cannot be replayed; tear the widget down
		// before any retry.
		_ = e.widgets.Reset()
		e.metricInc(MetricSendFailure)
		e.emitAudit(ctx, event, false, phone, "", mapped, func() map[string]string {
			return map[string]string{"stage": "provider"}
		})
		return nil, mapped
	}

	handleID := uuid.NewString()
	record := &verificationRecord{
		Phone:       phone,
		ProviderRef: providerRef,
		ExpiresAt:   time.Now().Add(e.config.OTP.HandleTTL).Unix(),
	}
	if err := e.handles.Save(ctx, handleID, record, e.config.OTP.HandleTTL); err != nil {
		mapped := mapHandleStoreErr(err)
		_ = e.widgets.Reset()
		e.metricInc(MetricSendFailure)
		e.emitAudit(ctx, event, false, phone, "", mapped, func() map[string]string {
			return map[string]string{"stage": "store"}
		})
		return nil, mapped
	}

	if err := e.resendLimiter.Arm(ctx, phone); err != nil {
		// The code is already on its way; a failed cooldown arm only loosens
		// the UX throttle. Record it and move on.
		e.emitAudit(ctx, event, true, phone, "", err, func() map[string]string {
			return map[string]string{"stage": "cooldown_arm"}
		})
	}

	e.metricInc(MetricSendSuccess)
	e.emitAudit(ctx, event, true, phone, "", nil, nil)

	return &VerificationHandle{ID: handleID, Phone: phone}, nil
}
