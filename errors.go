package phoneauth

import "errors"

var (
	// ErrInvalidPhoneNumber is returned when a phone number cannot be
	// normalized or the provider rejects its format.
	ErrInvalidPhoneNumber = errors.New("invalid phone number")
	// ErrInvalidCodeFormat is returned when a submitted code is not exactly
	// the configured number of digits. Checked client-side, before any
	// provider call.
	ErrInvalidCodeFormat = errors.New("invalid code format")
	// ErrValidation is returned for local form validation failures on the
	// password path (empty name, short password).
	ErrValidation = errors.New("validation failed")

	// ErrWidgetRequired is returned when a code send is attempted without a
	// challenge token while the configuration requires one.
	ErrWidgetRequired = errors.New("challenge widget required")
	// ErrWidgetInit is returned when the challenge widget cannot be created
	// or rendered.
	ErrWidgetInit = errors.New("challenge widget initialization failed")
	// ErrChallengeExpired is returned when the widget token expired before it
	// was spent.
	ErrChallengeExpired = errors.New("challenge expired")
	// ErrChallengeFailed is returned when the provider rejects the challenge
	// token or the widget reports a runtime error.
	ErrChallengeFailed = errors.New("challenge check failed")

	// ErrRateLimited is returned when the verification provider throttles a
	// send request.
	ErrRateLimited = errors.New("provider rate limited")
	// ErrUnauthorizedOrigin is returned when the provider refuses the calling
	// origin.
	ErrUnauthorizedOrigin = errors.New("unauthorized origin")
	// ErrProviderUnknown wraps provider failures with no dedicated mapping;
	// the provider message is preserved in the wrap.
	ErrProviderUnknown = errors.New("provider error")
	// ErrProviderTimeout is returned when a provider or store call exceeds
	// the configured call deadline.
	ErrProviderTimeout = errors.New("provider call timed out")

	// ErrIncorrectCode is returned when the provider rejects a submitted
	// code. The handle stays valid, so the user may retry the entry.
	ErrIncorrectCode = errors.New("incorrect code")
	// ErrVerificationNotFound is returned when a verification handle is
	// unknown, already consumed, or was invalidated.
	ErrVerificationNotFound = errors.New("verification not found")
	// ErrVerificationExpired is returned when a verification handle outlived
	// its TTL.
	ErrVerificationExpired = errors.New("verification expired")
	// ErrVerificationSuperseded is returned when a confirm targets a handle
	// that a later send has replaced.
	ErrVerificationSuperseded = errors.New("verification superseded by a newer code")
	// ErrVerificationAttemptsExceeded is returned when a handle accumulates
	// too many rejected codes and is invalidated.
	ErrVerificationAttemptsExceeded = errors.New("verification attempts exceeded")
	// ErrVerificationUnavailable is returned when the handle or cooldown
	// backend cannot be reached.
	ErrVerificationUnavailable = errors.New("verification backend unavailable")
	// ErrResendCooldown is returned when a resend is requested before the
	// client-side cooldown has elapsed.
	ErrResendCooldown = errors.New("resend cooldown active")

	// ErrAlreadyRegistered is returned when sign-up targets a phone number
	// that already has a credential. Recoverable by switching to sign-in.
	ErrAlreadyRegistered = errors.New("already registered")
	// ErrInvalidCredentials is returned by the password path when the backend
	// rejects the credential pair.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrSessionEstablishmentFailed is returned when the bridge exhausts its
	// sign-in/sign-up ladder without obtaining a live backend session. Fatal
	// for the current attempt; the flow must restart from a fresh send.
	ErrSessionEstablishmentFailed = errors.New("session establishment failed")
	// ErrBridgeInFlight is returned when a second bridge run is attempted for
	// a phone number whose reconciliation is still in progress.
	ErrBridgeInFlight = errors.New("bridge already in flight for phone number")

	// ErrFlowBusy is returned by Flow methods while another submit is in
	// flight on the same flow.
	ErrFlowBusy = errors.New("flow busy")
	// ErrFlowClosed is returned by Flow methods after the flow was torn down.
	ErrFlowClosed = errors.New("flow closed")
	// ErrEngineNotReady is returned when an Engine is used before Build wired
	// its dependencies.
	ErrEngineNotReady = errors.New("engine not initialized")
)
