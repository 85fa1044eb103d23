package phoneauth

import (
	"context"
	"errors"
	"time"

	"github.com/vikram17dp/soul-flow-studio-main-sub000/internal"
)

// ConfirmCode checks a user-entered code against the handle's provider-side
// state and returns the verified phone identity. The handle survives a
// rejected code (the user may re-enter) up to the attempt cap; once a
// confirmation succeeds the handle is consumed and cannot be reused.
func (e *Engine) ConfirmCode(ctx context.Context, handle *VerificationHandle, code string) (*VerifiedPhoneIdentity, error) {
	if e == nil || e.verifier == nil || e.handles == nil || e.widgets == nil {
		return nil, ErrEngineNotReady
	}
	if handle == nil {
		return nil, ErrVerificationNotFound
	}

	// Format check stays client-side; the provider never sees a malformed
	// code and no attempt is charged for one.
	if len(code) != e.config.OTP.Digits || !internal.IsDigits(code) {
		e.emitAudit(ctx, auditEventConfirmCode, false, handle.Phone, "", ErrInvalidCodeFormat, nil)
		return nil, ErrInvalidCodeFormat
	}

	record, err := e.handles.Get(ctx, handle.ID)
	if err != nil {
		mapped := mapHandleStoreErr(err)
		e.metricInc(MetricConfirmFailure)
		e.emitAudit(ctx, auditEventConfirmCode, false, handle.Phone, "", mapped, nil)
		return nil, mapped
	}

	current, err := e.handles.Current(ctx, record.Phone)
	if err != nil {
		return nil, mapHandleStoreErr(err)
	}
	if current != "" && current != handle.ID {
		e.metricInc(MetricConfirmFailure)
		e.emitAudit(ctx, auditEventConfirmCode, false, record.Phone, "", ErrVerificationSuperseded, nil)
		return nil, ErrVerificationSuperseded
	}

	pctx, cancel := e.providerCtx(ctx)
	defer cancel()

	identity, err := e.verifier.ConfirmCode(pctx, record.ProviderRef, code)
	if err != nil {
		mapped := mapProviderErr(err)

		if errors.Is(mapped, ErrIncorrectCode) {
			exceeded, ferr := e.handles.RecordFailure(ctx, handle.ID, e.config.OTP.MaxConfirmAttempts)
			if ferr != nil {
				return nil, mapHandleStoreErr(ferr)
			}
			if exceeded {
				_ = e.widgets.Reset()
				e.metricInc(MetricConfirmAttemptsExceeded)
				e.emitAudit(ctx, auditEventConfirmCode, false, record.Phone, "", ErrVerificationAttemptsExceeded, nil)
				return nil, ErrVerificationAttemptsExceeded
			}

			e.metricInc(MetricConfirmFailure)
			e.emitAudit(ctx, auditEventConfirmCode, false, record.Phone, "", mapped, nil)
			return nil, mapped
		}

		_ = e.widgets.Reset()
		e.metricInc(MetricConfirmFailure)
		e.emitAudit(ctx, auditEventConfirmCode, false, record.Phone, "", mapped, nil)
		return nil, mapped
	}

	// Single use: a confirmed handle must never verify a second identity.
	if err := e.handles.Consume(ctx, handle.ID, record.Phone); err != nil {
		mapped := mapHandleStoreErr(err)
		e.emitAudit(ctx, auditEventConfirmCode, false, record.Phone, "", mapped, nil)
		return nil, mapped
	}

	// The widget token is spent with this attempt regardless of outcome.
	_ = e.widgets.Reset()

	if identity.Phone == "" {
		identity.Phone = record.Phone
	}
	if identity.VerifiedAt.IsZero() {
		identity.VerifiedAt = time.Now()
	}

	e.metricInc(MetricConfirmSuccess)
	e.emitAudit(ctx, auditEventConfirmCode, true, record.Phone, identity.ProviderUID, nil, nil)

	return &identity, nil
}
