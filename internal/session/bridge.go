// Package session answers one question for the rest of the client: is a
// user signed in. Two credential sources can establish that, a token from
// the order backend or an identity-provider session, and Bridge resolves
// them into a single state.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/safar/mute-store/internal/apiclient"
	"github.com/safar/mute-store/internal/apperr"
	"github.com/safar/mute-store/internal/checkout"
	"github.com/safar/mute-store/internal/logger"
)

type Source string

const (
	SourceNone             Source = ""
	SourceLocal            Source = "local"
	SourceIdentityProvider Source = "identity_provider"
)

type State int

const (
	StateLoading State = iota
	StateSignedOut
	StateSignedIn
)

func (s State) String() string {
	switch s {
	case StateSignedOut:
		return "signed_out"
	case StateSignedIn:
		return "signed_in"
	default:
		return "loading"
	}
}

const MinPasswordLength = 8

var sessionKeys = []string{KeyToken, KeyEmail, KeySource, KeySignedInAt}

var (
	// ErrAmbiguousSession means a stored credential and a live provider
	// session disagree and neither is known to be newer.
	ErrAmbiguousSession = errors.New("stored credential and provider session disagree")

	ErrProviderUnavailable = apperr.New(apperr.CodeDependency, "Social sign-in is not available.")
	ErrNoProviderSession   = apperr.New(apperr.CodeUnauthorized, "Failed to get identity provider session.")
)

// Credential is one source's claim that a user is signed in.
type Credential struct {
	Source     Source
	Token      string
	Email      string
	SignedInAt time.Time
}

func (c *Credential) valid() bool {
	return c != nil && strings.TrimSpace(c.Token) != ""
}

// Resolve picks the credential that decides the session. The most recent
// successful sign-in wins; when both are present and no order can be
// established the result is ErrAmbiguousSession.
func Resolve(local, provider *Credential) (*Credential, error) {
	switch {
	case !local.valid() && !provider.valid():
		return nil, nil
	case !provider.valid():
		return local, nil
	case !local.valid():
		return provider, nil
	}

	if local.Source == SourceIdentityProvider && local.Token == provider.Token {
		return provider, nil
	}
	if local.SignedInAt.IsZero() || provider.SignedInAt.IsZero() || local.SignedInAt.Equal(provider.SignedInAt) {
		return nil, ErrAmbiguousSession
	}
	if provider.SignedInAt.After(local.SignedInAt) {
		return provider, nil
	}
	return local, nil
}

// Authenticator is the order backend's credential endpoint.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (string, error)
	Register(ctx context.Context, req apiclient.RegisterRequest) (string, error)
}

type ProviderSession struct {
	SessionID  string
	UserID     string
	Email      string
	Name       string
	SignedInAt time.Time
}

// IdentityProvider is the external social sign-in SDK.
type IdentityProvider interface {
	SignIn(ctx context.Context) (*ProviderSession, error)
	// Current returns the live session, or nil when there is none.
	Current(ctx context.Context) (*ProviderSession, error)
	SignOut(ctx context.Context) error
}

// ProviderSync records a provider account with the backend after sign-in.
type ProviderSync func(ctx context.Context, s ProviderSession) error

type Bridge struct {
	store    TokenStore
	auth     Authenticator
	provider IdentityProvider
	sync     ProviderSync
	log      *logger.Logger
	now      func() time.Time

	mu       sync.RWMutex
	state    State
	current  *Credential
	ready    chan struct{}
	initOnce sync.Once
}

type Option func(*Bridge)

func WithIdentityProvider(p IdentityProvider) Option {
	return func(b *Bridge) { b.provider = p }
}

func WithProviderSync(fn ProviderSync) Option {
	return func(b *Bridge) { b.sync = fn }
}

func WithLogger(log *logger.Logger) Option {
	return func(b *Bridge) {
		if log != nil {
			b.log = log
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *Bridge) {
		if now != nil {
			b.now = now
		}
	}
}

func NewBridge(store TokenStore, auth Authenticator, opts ...Option) *Bridge {
	b := &Bridge{
		store: store,
		auth:  auth,
		log:   logger.Nop(),
		now:   time.Now,
		state: StateLoading,
		ready: make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Init derives the starting state from persisted storage and any live
// provider session. Until it returns, State reports StateLoading. Only the
// first call does any work.
func (b *Bridge) Init(ctx context.Context) error {
	var initErr error
	b.initOnce.Do(func() {
		defer close(b.ready)
		initErr = b.restore(ctx)
	})
	return initErr
}

// Ready is closed once Init has finished.
func (b *Bridge) Ready() <-chan struct{} {
	return b.ready
}

func (b *Bridge) restore(ctx context.Context) error {
	local, err := b.loadStored(ctx)
	if err != nil {
		b.setState(nil)
		b.log.Error(ctx, "read stored session", err)
		return err
	}

	var live *Credential
	if b.provider != nil {
		s, err := b.provider.Current(ctx)
		if err != nil {
			b.log.Warn(b.log.WithField(ctx, "error", err.Error()), "identity provider session lookup failed")
		} else if s != nil {
			live = &Credential{Source: SourceIdentityProvider, Token: s.SessionID, Email: s.Email, SignedInAt: s.SignedInAt}
		} else if local != nil && local.Source == SourceIdentityProvider {
			// The provider ended the session this token came from.
			local = nil
		}
	}

	resolved, err := Resolve(local, live)
	if err != nil {
		// Neither source can be trusted over the other; require a fresh sign-in.
		b.setState(nil)
		b.log.Warn(ctx, "ambiguous session at startup, signing out")
		return err
	}
	b.setState(resolved)
	return nil
}

func (b *Bridge) loadStored(ctx context.Context) (*Credential, error) {
	token, err := b.store.Get(ctx, KeyToken)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, nil
	}
	email, err := b.store.Get(ctx, KeyEmail)
	if err != nil {
		return nil, err
	}
	source, err := b.store.Get(ctx, KeySource)
	if err != nil {
		return nil, err
	}
	cred := &Credential{Source: Source(source), Token: token, Email: email}
	if cred.Source == SourceNone {
		cred.Source = SourceLocal
	}
	if raw, err := b.store.Get(ctx, KeySignedInAt); err == nil && raw != "" {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			cred.SignedInAt = ts
		}
	}
	return cred, nil
}

// SignIn authenticates against the order backend. A rejected sign-in leaves
// the state as it was and the error carries the server's reason. If the
// session cannot be stored, storage is cleared and the bridge is signed out.
func (b *Bridge) SignIn(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return apperr.New(apperr.CodeValidation, "Email and password are required.")
	}

	token, err := b.auth.Login(ctx, email, password)
	if err != nil {
		b.log.Warn(b.log.WithEmail(ctx, email), "sign-in rejected")
		return apperr.Wrap(apperr.CodeUnauthorized, err, apiclient.UserMessage(err))
	}
	return b.establish(ctx, Credential{Source: SourceLocal, Token: token, Email: email, SignedInAt: b.now()})
}

type Registration struct {
	Name            string
	Email           string
	Password        string
	ConfirmPassword string
	Phone           string
	Address         string
}

func (r Registration) validate() error {
	switch {
	case strings.TrimSpace(r.Name) == "":
		return apperr.New(apperr.CodeValidation, "Full name is required.")
	case !checkout.IsValidEmail(r.Email):
		return apperr.New(apperr.CodeValidation, "Please enter a valid email.")
	case len(r.Password) < MinPasswordLength:
		return apperr.New(apperr.CodeValidation, "The password must be at least 8 characters long.")
	case r.Password != r.ConfirmPassword:
		return apperr.New(apperr.CodeValidation, "Passwords do not match.")
	}
	return nil
}

// Register creates the account and signs the new user in.
func (b *Bridge) Register(ctx context.Context, r Registration) error {
	if err := r.validate(); err != nil {
		return err
	}
	email := strings.TrimSpace(r.Email)
	token, err := b.auth.Register(ctx, apiclient.RegisterRequest{
		Name:     strings.TrimSpace(r.Name),
		Email:    email,
		Password: r.Password,
		Phone:    strings.TrimSpace(r.Phone),
		Address:  strings.TrimSpace(r.Address),
	})
	if err != nil {
		return apperr.Wrap(apperr.CodeValidation, err, apiclient.UserMessage(err))
	}
	return b.establish(ctx, Credential{Source: SourceLocal, Token: token, Email: email, SignedInAt: b.now()})
}

// SignInWithProvider runs the identity provider's sign-in and adopts its
// session. It replaces any local credential.
func (b *Bridge) SignInWithProvider(ctx context.Context) error {
	if b.provider == nil {
		return ErrProviderUnavailable
	}
	s, err := b.provider.SignIn(ctx)
	if err != nil {
		return apperr.Wrap(apperr.CodeUnauthorized, err, "Error signing in with the identity provider.")
	}
	if s == nil || strings.TrimSpace(s.SessionID) == "" {
		return ErrNoProviderSession
	}

	signedInAt := s.SignedInAt
	if signedInAt.IsZero() {
		signedInAt = b.now()
	}
	if err := b.establish(ctx, Credential{Source: SourceIdentityProvider, Token: s.SessionID, Email: s.Email, SignedInAt: signedInAt}); err != nil {
		return err
	}

	if b.sync != nil {
		if err := b.sync(ctx, *s); err != nil {
			b.log.Error(b.log.WithEmail(ctx, s.Email), "sync provider user with backend", err)
		}
	}
	return nil
}

// SignOut clears every credential source. It never fails: storage and
// provider errors are logged and the bridge still ends up signed out.
func (b *Bridge) SignOut(ctx context.Context) error {
	if err := b.store.Delete(ctx, sessionKeys...); err != nil {
		b.log.Error(ctx, "clear stored session", err)
	}
	if b.provider != nil {
		if err := b.provider.SignOut(ctx); err != nil {
			b.log.Error(ctx, "identity provider sign-out", err)
		}
	}
	b.setState(nil)
	return nil
}

func (b *Bridge) establish(ctx context.Context, cred Credential) error {
	// The token goes last: a stored token means the other keys are complete.
	values := []struct{ key, value string }{
		{KeyEmail, cred.Email},
		{KeySource, string(cred.Source)},
		{KeySignedInAt, cred.SignedInAt.UTC().Format(time.RFC3339Nano)},
		{KeyToken, cred.Token},
	}
	for _, kv := range values {
		if err := b.store.Set(ctx, kv.key, kv.value); err != nil {
			b.log.Error(ctx, "persist session", err)
			if delErr := b.store.Delete(ctx, sessionKeys...); delErr != nil {
				b.log.Error(ctx, "roll back partial session", delErr)
			}
			b.setState(nil)
			return apperr.Wrap(apperr.CodeInternal, err, "Could not save the session on this device.")
		}
	}
	b.setState(&cred)
	b.log.Info(b.log.WithFields(ctx, map[string]any{"email": cred.Email, "source": string(cred.Source)}), "signed in")
	return nil
}

func (b *Bridge) setState(cred *Credential) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cred.valid() {
		c := *cred
		b.current = &c
		b.state = StateSignedIn
		return
	}
	b.current = nil
	b.state = StateSignedOut
}

func (b *Bridge) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

func (b *Bridge) Authenticated() bool {
	return b.State() == StateSignedIn
}

func (b *Bridge) Token() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.current == nil {
		return ""
	}
	return b.current.Token
}

func (b *Bridge) Source() Source {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.current == nil {
		return SourceNone
	}
	return b.current.Source
}

// CurrentEmail is the signed-in user's email, or "".
func (b *Bridge) CurrentEmail() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.current == nil {
		return ""
	}
	return b.current.Email
}
