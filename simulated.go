package phoneauth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vikram17dp/soul-flow-studio-main-sub000/internal"
)

// SimulatedVerifier is an in-process PhoneVerifier for dev and test setups.
// No SMS leaves the process: codes are either pre-registered per number or
// generated on send and retrievable through LastCode. It ships seeded with
// the demo number "+911234567890" bound to code "123456".
type SimulatedVerifier struct {
	// Delay is applied to every call, context-aware. Lets tests exercise
	// deadline handling.
	Delay time.Duration

	mu       sync.Mutex
	fixed    map[string]string
	refs     map[string]simReference
	lastCode map[string]string

	nextSendErr    error
	nextConfirmErr error
}

type simReference struct {
	phone string
	code  string
}

// NewSimulatedVerifier returns a verifier seeded with the demo number.
func NewSimulatedVerifier() *SimulatedVerifier {
	return &SimulatedVerifier{
		fixed:    map[string]string{"+911234567890": "123456"},
		refs:     make(map[string]simReference),
		lastCode: make(map[string]string),
	}
}

// Register pins a fixed code for a phone number.
func (v *SimulatedVerifier) Register(phone, code string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.fixed[phone] = code
}

// LastCode returns the code most recently issued for a phone number.
func (v *SimulatedVerifier) LastCode(phone string) string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastCode[phone]
}

// FailNextSend makes the next SendCode call return err, then clears itself.
func (v *SimulatedVerifier) FailNextSend(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.nextSendErr = err
}

// FailNextConfirm makes the next ConfirmCode call return err, then clears
// itself.
func (v *SimulatedVerifier) FailNextConfirm(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.nextConfirmErr = err
}

func (v *SimulatedVerifier) sleep(ctx context.Context) error {
	if v.Delay <= 0 {
		return nil
	}
	timer := time.NewTimer(v.Delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendCode issues a code for the number and returns an opaque provider
// reference for the confirm step.
func (v *SimulatedVerifier) SendCode(ctx context.Context, phone, challengeToken string) (string, error) {
	_ = challengeToken
	if err := v.sleep(ctx); err != nil {
		return "", err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.nextSendErr; err != nil {
		v.nextSendErr = nil
		return "", err
	}

	code, ok := v.fixed[phone]
	if !ok {
		generated, err := internal.NewOTP(6)
		if err != nil {
			return "", err
		}
		code = generated
	}

	ref, err := internal.NewOpaqueID()
	if err != nil {
		return "", err
	}
	v.refs[ref] = simReference{phone: phone, code: code}
	v.lastCode[phone] = code
	return ref, nil
}

// ConfirmCode checks the code against the pending reference. A wrong code
// leaves the reference confirmable, matching real providers that charge
// attempts without consuming the verification.
func (v *SimulatedVerifier) ConfirmCode(ctx context.Context, providerRef, code string) (VerifiedPhoneIdentity, error) {
	if err := v.sleep(ctx); err != nil {
		return VerifiedPhoneIdentity{}, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.nextConfirmErr; err != nil {
		v.nextConfirmErr = nil
		return VerifiedPhoneIdentity{}, err
	}

	ref, ok := v.refs[providerRef]
	if !ok {
		return VerifiedPhoneIdentity{}, errors.New("simulated verifier: unknown provider reference")
	}
	if code != ref.code {
		return VerifiedPhoneIdentity{}, &VerifierError{
			Code:    VerifierIncorrectCode,
			Message: "code mismatch",
		}
	}

	delete(v.refs, providerRef)
	return VerifiedPhoneIdentity{
		Phone:       ref.phone,
		ProviderUID: uuid.NewString(),
		VerifiedAt:  time.Now(),
	}, nil
}

// SimulatedChallengeHost is an in-process ChallengeHost that auto-solves (or
// auto-expires) every widget from a goroutine, mimicking a host whose
// callbacks arrive asynchronously after Render returns.
type SimulatedChallengeHost struct {
	// FailRender, when set, makes every Render call fail with this error.
	FailRender error
	// ExpireInstead delivers OnExpired instead of OnSolved.
	ExpireInstead bool
	// SolveDelay postpones the callback.
	SolveDelay time.Duration

	mu      sync.Mutex
	renders int
	resets  int
}

// NewSimulatedChallengeHost returns a host that solves widgets immediately.
func NewSimulatedChallengeHost() *SimulatedChallengeHost {
	return &SimulatedChallengeHost{}
}

// Render mounts a simulated widget and schedules its callback.
func (h *SimulatedChallengeHost) Render(ctx context.Context, hostElementID string, cb ChallengeCallbacks) (string, error) {
	_ = hostElementID

	h.mu.Lock()
	fail := h.FailRender
	expire := h.ExpireInstead
	delay := h.SolveDelay
	h.renders++
	h.mu.Unlock()

	if fail != nil {
		return "", fail
	}

	widgetID := uuid.NewString()
	go func() {
		if delay > 0 {
			timer := time.NewTimer(delay)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return
			}
		}
		if expire {
			cb.OnExpired()
			return
		}
		cb.OnSolved("sim-token-" + widgetID)
	}()

	return widgetID, nil
}

// Reset disposes host-side widget state.
func (h *SimulatedChallengeHost) Reset(widgetID string) error {
	_ = widgetID
	h.mu.Lock()
	h.resets++
	h.mu.Unlock()
	return nil
}

// Renders reports how many widgets were mounted.
func (h *SimulatedChallengeHost) Renders() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.renders
}

// Resets reports how many widgets were disposed.
func (h *SimulatedChallengeHost) Resets() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.resets
}
