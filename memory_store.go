package phoneauth

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vikram17dp/soul-flow-studio-main-sub000/jwt"
	"github.com/vikram17dp/soul-flow-studio-main-sub000/password"
)

// MemoryIdentityStore is an in-process IdentityStore for dev setups and
// end-to-end tests. Passwords are argon2id-hashed and sessions carry real
// signed tokens, so code exercising the bridge against it behaves the same
// as against a remote backend. Not for production: state lives in one
// process and is lost on restart.
type MemoryIdentityStore struct {
	// DeferSession makes SignUp return no session, modeling backends that
	// require out-of-band confirmation before issuing one.
	DeferSession bool
	// ActivationDelay makes SignIn reject credentials until the account is
	// this old, modeling backend propagation lag after registration.
	ActivationDelay time.Duration

	hasher *password.Argon2
	tokens *jwt.Manager

	mu          sync.Mutex
	users       map[string]*memoryUser
	byPhone     map[string]string
	session     *Session
	signInCalls int
	signUpCalls int
}

type memoryUser struct {
	id           string
	email        string
	passwordHash string
	profile      Profile
	createdAt    time.Time
}

// NewMemoryIdentityStore builds a store with default argon2 parameters and a
// random per-instance token secret.
func NewMemoryIdentityStore() (*MemoryIdentityStore, error) {
	hasher, err := password.NewArgon2(password.DefaultConfig())
	if err != nil {
		return nil, err
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	tokens, err := jwt.NewManager(secret, "phoneauth-memory", time.Hour)
	if err != nil {
		return nil, err
	}

	return &MemoryIdentityStore{
		hasher:  hasher,
		tokens:  tokens,
		users:   make(map[string]*memoryUser),
		byPhone: make(map[string]string),
	}, nil
}

// SignInCalls reports how many SignIn calls the store has served.
func (s *MemoryIdentityStore) SignInCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signInCalls
}

// SignUpCalls reports how many SignUp calls the store has served.
func (s *MemoryIdentityStore) SignUpCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signUpCalls
}

func (s *MemoryIdentityStore) mint(userID string) (*Session, error) {
	token, expiresAt, err := s.tokens.Mint(userID)
	if err != nil {
		return nil, err
	}
	return &Session{UserID: userID, AccessToken: token, ExpiresAt: expiresAt}, nil
}

// SignIn authenticates an email/password pair and establishes the current
// session.
func (s *MemoryIdentityStore) SignIn(ctx context.Context, email, pass string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.signInCalls++
	user, ok := s.users[email]
	s.mu.Unlock()

	if !ok {
		return nil, ErrInvalidCredentials
	}
	if s.ActivationDelay > 0 && time.Since(user.createdAt) < s.ActivationDelay {
		return nil, fmt.Errorf("%w: account not yet active", ErrInvalidCredentials)
	}

	match, err := s.hasher.Verify(pass, user.passwordHash)
	if err != nil {
		return nil, err
	}
	if !match {
		return nil, ErrInvalidCredentials
	}

	session, err := s.mint(user.id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.session = session
	s.mu.Unlock()
	return session, nil
}

// SignUp registers a new account and its profile. The phone number in meta is
// the uniqueness key alongside email.
func (s *MemoryIdentityStore) SignUp(ctx context.Context, email, pass string, meta ProfileMetadata) (*SignUpResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(pass)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.signUpCalls++
	if _, exists := s.users[email]; exists {
		s.mu.Unlock()
		return nil, ErrAlreadyRegistered
	}
	if meta.Phone != "" {
		if _, exists := s.byPhone[meta.Phone]; exists {
			s.mu.Unlock()
			return nil, ErrAlreadyRegistered
		}
	}

	user := &memoryUser{
		id:           uuid.NewString(),
		email:        email,
		passwordHash: hash,
		createdAt:    time.Now(),
		profile: Profile{
			FullName:       meta.FullName,
			Phone:          meta.Phone,
			Email:          email,
			MembershipType: meta.MembershipType,
		},
	}
	user.profile.UserID = user.id
	s.users[email] = user
	if meta.Phone != "" {
		s.byPhone[meta.Phone] = user.id
	}
	deferred := s.DeferSession
	s.mu.Unlock()

	if deferred {
		return &SignUpResult{UserID: user.id}, nil
	}

	session, err := s.mint(user.id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.session = session
	s.mu.Unlock()
	return &SignUpResult{UserID: user.id, Session: session}, nil
}

// GetSession returns the current session, nil when none is live. Expired
// sessions are cleared rather than returned.
func (s *MemoryIdentityStore) GetSession(ctx context.Context) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil, nil
	}
	if _, err := s.tokens.Parse(s.session.AccessToken); err != nil {
		s.session = nil
		return nil, nil
	}
	copied := *s.session
	return &copied, nil
}

// SignOut clears the current session. A no-op when none exists.
func (s *MemoryIdentityStore) SignOut(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.session = nil
	s.mu.Unlock()
	return nil
}

// GetProfileByPhone looks up the profile registered for a phone number,
// (nil, nil) when absent.
func (s *MemoryIdentityStore) GetProfileByPhone(ctx context.Context, phone string) (*Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	userID, ok := s.byPhone[phone]
	if !ok {
		return nil, nil
	}
	for _, user := range s.users {
		if user.id == userID {
			copied := user.profile
			return &copied, nil
		}
	}
	return nil, nil
}
