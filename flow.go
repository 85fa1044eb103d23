package phoneauth

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Flow is the per-attempt state machine the presentation layer drives: mode,
// login method, form data, and the in-flight gate. A Flow owns its form data
// exclusively; accessors hand out copies. At most one high-level operation
// (send, confirm, bridge, password submit) runs per Flow at a time; overlap
// is rejected with a busy Status, never queued.
//
// Every mutating method returns a [Status] instead of a raw error, so the UI
// renders from a discriminated result. The single exception is
// [Flow.ConfirmCode] outside OTP mode, which is a programming error and
// panics.
type Flow struct {
	engine *Engine

	mu       sync.Mutex
	mode     AuthMode
	method   LoginMethod
	form     FormData
	inFlight bool
	closed   bool
	handle   *VerificationHandle
	session  *Session
}

// NewFlow starts a flow in sign-in mode with the password method.
func (e *Engine) NewFlow() *Flow {
	return &Flow{engine: e, mode: ModeSignIn, method: MethodPassword}
}

// Mode returns the current state machine mode.
func (f *Flow) Mode() AuthMode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mode
}

// Method returns the selected login method.
func (f *Flow) Method() LoginMethod {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.method
}

// Loading reports whether a high-level operation is in flight.
func (f *Flow) Loading() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inFlight
}

// Form returns a copy of the current form data.
func (f *Flow) Form() FormData {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.form
}

// Session returns the established session, nil before the terminal
// transition.
func (f *Flow) Session() *Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session
}

// Authenticated reports whether the flow reached its terminal state.
func (f *Flow) Authenticated() bool {
	return f.Session() != nil
}

// SetName updates the display name field.
func (f *Flow) SetName(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.form.Name = name
}

// SetPhone updates the country code and local number fields.
func (f *Flow) SetPhone(countryCode, phoneNumber string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.form.CountryCode = countryCode
	f.form.PhoneNumber = phoneNumber
}

// SetPassword updates the password field.
func (f *Flow) SetPassword(pass string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.form.Password = pass
}

// SetMethod selects password or OTP login. Only meaningful in sign-in mode.
func (f *Flow) SetMethod(m LoginMethod) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.method = m
}

// ToggleMode flips between sign-in and sign-up. The toggle itself is never
// blocked, including mid-flight; it is the network actions that the in-flight
// gate serializes. Form data is left untouched, so a typed phone number
// survives the switch. In OTP mode the toggle is a no-op: leaving OTP goes
// through Back.
func (f *Flow) ToggleMode() AuthMode {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.mode {
	case ModeSignIn:
		f.mode = ModeSignUp
	case ModeSignUp:
		f.mode = ModeSignIn
	}
	return f.mode
}

func (f *Flow) begin() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrFlowClosed
	}
	if f.inFlight {
		return ErrFlowBusy
	}
	f.inFlight = true
	return nil
}

func (f *Flow) end() {
	f.mu.Lock()
	f.inFlight = false
	f.mu.Unlock()
}

// SendCode runs the OTP send for the number currently in the form and, on
// success, transitions to OTP mode.
func (f *Flow) SendCode(ctx context.Context) Status {
	if err := f.begin(); err != nil {
		return failStatus(err)
	}
	defer f.end()

	f.mu.Lock()
	if f.mode == ModeOTP {
		f.mu.Unlock()
		return failStatus(fmt.Errorf("%w: code already pending, use Resend", ErrFlowBusy))
	}
	countryCode, local := f.form.CountryCode, f.form.PhoneNumber
	f.mu.Unlock()

	handle, err := f.engine.SendCode(ctx, countryCode, local)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		// The flow died while the call was in flight; discard the result and
		// release what the dead attempt holds.
		if handle != nil {
			_ = f.engine.handles.InvalidatePhone(context.Background(), handle.Phone)
			_ = f.engine.widgets.Reset()
		}
		return failStatus(ErrFlowClosed)
	}
	if err != nil {
		return failStatus(err)
	}

	f.handle = handle
	f.mode = ModeOTP
	return okStatus()
}

// ConfirmCode checks the entered code and, on success, runs the identity
// bridge to its terminal session. Calling it outside OTP mode is a
// programming error and panics.
func (f *Flow) ConfirmCode(ctx context.Context, code string) Status {
	if err := f.begin(); err != nil {
		return failStatus(err)
	}
	defer f.end()

	f.mu.Lock()
	if f.mode != ModeOTP {
		f.mu.Unlock()
		panic("phoneauth: ConfirmCode called outside otp mode")
	}
	handle := f.handle
	name := f.form.Name
	f.mu.Unlock()

	identity, err := f.engine.ConfirmCode(ctx, handle, code)
	if err != nil {
		return f.confirmFailed(err)
	}

	session, err := f.engine.EstablishSession(ctx, identity, name)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return failStatus(ErrFlowClosed)
	}
	if err != nil {
		// Bridge failures are fatal for this attempt: the handle is spent
		// and internal state may be inconsistent, so the flow restarts.
		f.handle = nil
		f.mode = ModeSignIn
		return failStatus(err)
	}

	f.session = session
	f.handle = nil
	f.form = FormData{}
	f.mode = ModeSignIn
	return okStatus()
}

func (f *Flow) confirmFailed(err error) Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return failStatus(ErrFlowClosed)
	}

	switch Classify(err) {
	case KindIncorrectCode:
		// The handle survives; the user may correct the entry.
	case KindInvalidCodeFormat:
		// Client-side rejection, nothing was charged.
	default:
		// Anything else invalidated the attempt; restart from a fresh send.
		f.handle = nil
		f.mode = ModeSignIn
	}
	return failStatus(err)
}

// Resend requests a fresh code for the pending attempt, honoring the
// cooldown. A cooldown rejection leaves the pending handle intact; any later
// failure means the old handle is already gone and the flow restarts.
func (f *Flow) Resend(ctx context.Context) Status {
	if err := f.begin(); err != nil {
		return failStatus(err)
	}
	defer f.end()

	f.mu.Lock()
	if f.mode != ModeOTP || f.handle == nil {
		f.mu.Unlock()
		return failStatus(ErrVerificationNotFound)
	}
	handle := f.handle
	f.mu.Unlock()

	fresh, err := f.engine.ResendCode(ctx, handle)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		if fresh != nil {
			_ = f.engine.handles.InvalidatePhone(context.Background(), fresh.Phone)
			_ = f.engine.widgets.Reset()
		}
		return failStatus(ErrFlowClosed)
	}
	if err != nil {
		if !errors.Is(err, ErrResendCooldown) {
			f.handle = nil
			f.mode = ModeSignIn
		}
		return failStatus(err)
	}

	f.handle = fresh
	return okStatus()
}

// Back abandons a pending OTP attempt: the handle is invalidated, the widget
// released, and the flow returns to sign-in. A no-op outside OTP mode.
func (f *Flow) Back(ctx context.Context) Status {
	if err := f.begin(); err != nil {
		return failStatus(err)
	}
	defer f.end()

	f.mu.Lock()
	if f.mode != ModeOTP {
		f.mu.Unlock()
		return okStatus()
	}
	handle := f.handle
	f.handle = nil
	f.mode = ModeSignIn
	f.mu.Unlock()

	phone := ""
	if handle != nil {
		phone = handle.Phone
		_ = f.engine.handles.InvalidatePhone(ctx, handle.Phone)
	}
	_ = f.engine.widgets.Reset()
	f.engine.emitAudit(ctx, auditEventWidgetReset, true, phone, "", nil, nil)
	return okStatus()
}

// SubmitPassword runs the password path for the current mode. In sign-up
// mode an AlreadyRegistered rejection auto-switches the flow to sign-in so
// the user can just re-submit.
func (f *Flow) SubmitPassword(ctx context.Context) Status {
	if err := f.begin(); err != nil {
		return failStatus(err)
	}
	defer f.end()

	f.mu.Lock()
	if f.mode == ModeOTP {
		f.mu.Unlock()
		return failStatus(fmt.Errorf("%w: password submit with code pending", ErrFlowBusy))
	}
	mode := f.mode
	form := f.form
	f.mu.Unlock()

	var (
		session *Session
		err     error
	)
	if mode == ModeSignUp {
		session, err = f.engine.PasswordSignUp(ctx, form.Name, form.CountryCode, form.PhoneNumber, form.Password)
	} else {
		session, err = f.engine.PasswordSignIn(ctx, form.CountryCode, form.PhoneNumber, form.Password)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return failStatus(ErrFlowClosed)
	}
	if err != nil {
		if mode == ModeSignUp && errors.Is(err, ErrAlreadyRegistered) {
			f.mode = ModeSignIn
		}
		return failStatus(err)
	}

	f.session = session
	f.form = FormData{}
	return okStatus()
}

// Close tears the flow down: the widget is released synchronously so no
// pending render callback can fire into a dead flow, and any pending handle
// is invalidated. Results of calls still in flight are discarded when they
// land. Idempotent.
func (f *Flow) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	handle := f.handle
	f.handle = nil
	f.mu.Unlock()

	_ = f.engine.widgets.Reset()
	if handle != nil {
		_ = f.engine.handles.InvalidatePhone(context.Background(), handle.Phone)
	}
	f.engine.emitAudit(context.Background(), auditEventFlowClose, true, "", "", nil, nil)
}
