package phoneauth

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// AuthMode is the active screen of the flow state machine.
type AuthMode uint8

const (
	// ModeSignIn is the default mode: returning user, password or OTP.
	ModeSignIn AuthMode = iota
	// ModeSignUp collects a display name alongside the phone number.
	ModeSignUp
	// ModeOTP is entered only after a code send succeeds.
	ModeOTP
)

func (m AuthMode) String() string {
	switch m {
	case ModeSignIn:
		return "signin"
	case ModeSignUp:
		return "signup"
	case ModeOTP:
		return "otp"
	default:
		return "unknown"
	}
}

// LoginMethod selects password or OTP authentication while in sign-in mode.
type LoginMethod uint8

const (
	// MethodPassword authenticates directly against the identity store.
	MethodPassword LoginMethod = iota
	// MethodOTP authenticates through the phone-verification provider.
	MethodOTP
)

func (m LoginMethod) String() string {
	if m == MethodOTP {
		return "otp"
	}
	return "password"
}

// FormData is the mutable form state owned by a [Flow]. Children of the flow
// only ever see copies.
type FormData struct {
	Name        string
	CountryCode string
	PhoneNumber string
	Password    string
}

// Session is a backend-issued credential proving an authenticated identity.
// Renewal is the backend's responsibility; this package only verifies that a
// session exists after the bridge runs.
type Session struct {
	UserID      string
	AccessToken string
	ExpiresAt   int64
}

// Profile is the backend record keyed by user id. Created at most once per
// phone number.
type Profile struct {
	UserID         string
	FullName       string
	Phone          string
	Email          string
	MembershipType string
}

// ProfileMetadata is the profile payload attached to a registration.
type ProfileMetadata struct {
	FullName       string
	Phone          string
	MembershipType string
}

// SignUpResult is returned by [IdentityStore.SignUp]. Session is nil when the
// backend requires out-of-band confirmation before issuing one.
type SignUpResult struct {
	UserID  string
	Session *Session
}

// VerifiedPhoneIdentity is the terminal value of a successful code
// confirmation: proof of possession of a phone number.
type VerifiedPhoneIdentity struct {
	Phone       string
	ProviderUID string
	VerifiedAt  time.Time
}

// ChallengeCallbacks carries the three lifecycle callbacks the widget host
// fires for a rendered widget.
type ChallengeCallbacks struct {
	OnSolved  func(token string)
	OnExpired func()
	OnError   func(err error)
}

// ChallengeHost is the anti-automation widget collaborator: a mountable UI
// primitive. Render may complete its callbacks asynchronously; Reset must
// dispose all provider-side state for the widget id.
type ChallengeHost interface {
	Render(ctx context.Context, hostElementID string, cb ChallengeCallbacks) (widgetID string, err error)
	Reset(widgetID string) error
}

// PhoneVerifier is the phone-verification provider collaborator. SendCode
// dispatches a one-time code; challengeToken is empty when the configuration
// does not require a widget. ConfirmCode checks a user-entered code against
// the provider-side state referenced by providerRef.
//
// Implementations report rejections as [*VerifierError]; any other error is
// surfaced as [ErrProviderUnknown].
type PhoneVerifier interface {
	SendCode(ctx context.Context, phone, challengeToken string) (providerRef string, err error)
	ConfirmCode(ctx context.Context, providerRef, code string) (VerifiedPhoneIdentity, error)
}

// IdentityStore is the backend identity store collaborator: the system of
// record for sessions and profiles. GetSession and GetProfileByPhone return
// (nil, nil) when nothing exists.
//
// SignIn reports credential rejections as [ErrInvalidCredentials]; SignUp
// reports duplicates as [ErrAlreadyRegistered] (wrapped forms are fine).
type IdentityStore interface {
	SignIn(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, email, password string, meta ProfileMetadata) (*SignUpResult, error)
	GetSession(ctx context.Context) (*Session, error)
	SignOut(ctx context.Context) error
	GetProfileByPhone(ctx context.Context, phone string) (*Profile, error)
}

// VerifierErrorCode discriminates the provider rejection classes this package
// maps to its own error surface.
type VerifierErrorCode uint8

const (
	// VerifierInvalidPhone rejects the phone number format.
	VerifierInvalidPhone VerifierErrorCode = iota + 1
	// VerifierRateLimited throttles the send.
	VerifierRateLimited
	// VerifierUnauthorizedOrigin refuses the calling origin.
	VerifierUnauthorizedOrigin
	// VerifierChallengeFailed rejects the challenge token.
	VerifierChallengeFailed
	// VerifierIncorrectCode rejects the submitted code.
	VerifierIncorrectCode
)

// VerifierError is the typed rejection a [PhoneVerifier] implementation
// returns. Message carries the provider's own wording for the Unknown case.
type VerifierError struct {
	Code    VerifierErrorCode
	Message string
}

func (e *VerifierError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("verifier: %s", e.Message)
	}
	return fmt.Sprintf("verifier: code %d", e.Code)
}

// ErrorKind is the discriminated error classification exposed to the
// presentation layer through [Status].
type ErrorKind uint8

const (
	// KindNone marks a successful Status.
	KindNone ErrorKind = iota
	// KindInvalidPhoneNumber maps ErrInvalidPhoneNumber.
	KindInvalidPhoneNumber
	// KindInvalidCodeFormat maps ErrInvalidCodeFormat.
	KindInvalidCodeFormat
	// KindValidation maps ErrValidation.
	KindValidation
	// KindWidgetRequired maps ErrWidgetRequired.
	KindWidgetRequired
	// KindWidgetInit maps ErrWidgetInit.
	KindWidgetInit
	// KindChallengeFailed maps ErrChallengeFailed and ErrChallengeExpired.
	KindChallengeFailed
	// KindRateLimited maps ErrRateLimited.
	KindRateLimited
	// KindUnauthorizedOrigin maps ErrUnauthorizedOrigin.
	KindUnauthorizedOrigin
	// KindIncorrectCode maps ErrIncorrectCode.
	KindIncorrectCode
	// KindVerificationInvalid maps handle not-found/expired/superseded and
	// attempts-exceeded failures; the user needs a fresh send.
	KindVerificationInvalid
	// KindResendCooldown maps ErrResendCooldown.
	KindResendCooldown
	// KindAlreadyRegistered maps ErrAlreadyRegistered.
	KindAlreadyRegistered
	// KindInvalidCredentials maps ErrInvalidCredentials.
	KindInvalidCredentials
	// KindSessionEstablishmentFailed maps ErrSessionEstablishmentFailed.
	KindSessionEstablishmentFailed
	// KindTimeout maps ErrProviderTimeout.
	KindTimeout
	// KindBusy maps ErrFlowBusy, ErrFlowClosed, and ErrBridgeInFlight.
	KindBusy
	// KindUnavailable maps backend/engine availability failures and anything
	// unmapped, including ErrProviderUnknown.
	KindUnavailable
)

// Status is the discriminated result every mutating [Flow] call returns. The
// presentation layer branches on Kind; Err retains the wrapped cause for
// logging.
type Status struct {
	OK   bool
	Kind ErrorKind
	Err  error
}

func okStatus() Status {
	return Status{OK: true}
}

func failStatus(err error) Status {
	return Status{Kind: Classify(err), Err: err}
}

// Classify maps an error produced by this package to its [ErrorKind].
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInvalidPhoneNumber):
		return KindInvalidPhoneNumber
	case errors.Is(err, ErrInvalidCodeFormat):
		return KindInvalidCodeFormat
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrWidgetRequired):
		return KindWidgetRequired
	case errors.Is(err, ErrWidgetInit):
		return KindWidgetInit
	case errors.Is(err, ErrChallengeFailed), errors.Is(err, ErrChallengeExpired):
		return KindChallengeFailed
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrUnauthorizedOrigin):
		return KindUnauthorizedOrigin
	case errors.Is(err, ErrIncorrectCode):
		return KindIncorrectCode
	case errors.Is(err, ErrVerificationNotFound),
		errors.Is(err, ErrVerificationExpired),
		errors.Is(err, ErrVerificationSuperseded),
		errors.Is(err, ErrVerificationAttemptsExceeded):
		return KindVerificationInvalid
	case errors.Is(err, ErrResendCooldown):
		return KindResendCooldown
	case errors.Is(err, ErrAlreadyRegistered):
		return KindAlreadyRegistered
	case errors.Is(err, ErrInvalidCredentials):
		return KindInvalidCredentials
	case errors.Is(err, ErrSessionEstablishmentFailed):
		return KindSessionEstablishmentFailed
	case errors.Is(err, ErrProviderTimeout):
		return KindTimeout
	case errors.Is(err, ErrFlowBusy), errors.Is(err, ErrFlowClosed), errors.Is(err, ErrBridgeInFlight):
		return KindBusy
	default:
		return KindUnavailable
	}
}
