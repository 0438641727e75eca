package session

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/tablepilot/crmsync/internal/api"
	"github.com/tablepilot/crmsync/internal/models"
	"github.com/tablepilot/crmsync/internal/tokenstore"
)

// Status is the session's lifecycle state.
type Status int

const (
	// Loading is the initial state, before bootstrap has settled.
	Loading Status = iota
	// Anonymous means no verified session exists.
	Anonymous
	// Authenticated means a principal has been verified by the server.
	Authenticated
)

func (s Status) String() string {
	switch s {
	case Loading:
		return "loading"
	case Anonymous:
		return "anonymous"
	case Authenticated:
		return "authenticated"
	}
	return "unknown"
}

// State is a snapshot of the session. Principal is non-nil exactly when
// Status is Authenticated.
type State struct {
	Status    Status
	Principal *models.Principal
}

// AuthAPI is the slice of the API client the manager drives.
type AuthAPI interface {
	Login(ctx context.Context, username, password string) (*api.LoginResult, error)
	Logout(ctx context.Context, refresh string) error
	Me(ctx context.Context) (*models.Principal, error)
}

// TokenStore is the credential persistence the manager owns.
type TokenStore interface {
	Save(access, refresh string) error
	Read() (*tokenstore.Pair, error)
	Clear() error
}

type subscriber struct {
	id int
	fn func(State)
}

// Manager owns the session state machine. It is the only mutator of the
// session; every transition is broadcast to subscribers synchronously, in
// subscription order, on completion.
type Manager struct {
	api    AuthAPI
	tokens TokenStore

	mu        sync.Mutex
	status    Status
	principal *models.Principal
	subs      []subscriber
	nextSubID int
}

// New creates a session manager in the Loading state.
func New(authAPI AuthAPI, tokens TokenStore) *Manager {
	return &Manager{
		api:    authAPI,
		tokens: tokens,
		status: Loading,
	}
}

// Bootstrap verifies any stored credentials against the identity endpoint,
// once per process start. An unverifiable token is treated as no session:
// the store is cleared and the state settles Anonymous. The underlying error
// is returned after the transition so callers can report it; the state has
// already settled either way.
func (m *Manager) Bootstrap(ctx context.Context) error {
	if _, err := m.tokens.Read(); err != nil {
		if !errors.Is(err, tokenstore.ErrNoCredentials) {
			log.Warn().Err(err).Msg("failed to read stored credentials")
		}
		m.setState(Anonymous, nil)
		return nil
	}

	principal, err := m.api.Me(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("session bootstrap failed, clearing credentials")
		if clearErr := m.tokens.Clear(); clearErr != nil {
			log.Error().Err(clearErr).Msg("failed to clear credentials")
		}
		m.setState(Anonymous, nil)
		return err
	}

	log.Debug().Str("username", principal.Username).Msg("session restored")
	m.setState(Authenticated, principal)
	return nil
}

// Login exchanges credentials for a token pair and principal. On success the
// pair is persisted and the session becomes Authenticated. On any failure
// the store is cleared, the session settles Anonymous, and the error is
// returned so the caller can display it.
func (m *Manager) Login(ctx context.Context, username, password string) (*models.Principal, error) {
	result, err := m.api.Login(ctx, username, password)
	if err != nil {
		if clearErr := m.tokens.Clear(); clearErr != nil {
			log.Error().Err(clearErr).Msg("failed to clear credentials")
		}
		m.setState(Anonymous, nil)
		return nil, err
	}

	if err := m.tokens.Save(result.Access, result.Refresh); err != nil {
		m.setState(Anonymous, nil)
		return nil, err
	}

	log.Info().Str("username", result.Principal.Username).Msg("logged in")
	m.setState(Authenticated, result.Principal)
	return result.Principal, nil
}

// Logout ends the session. The server is notified with the refresh token on
// a best-effort basis; a failure there is logged but never blocks the local
// logout. The store is cleared and the session settles Anonymous regardless.
func (m *Manager) Logout(ctx context.Context) error {
	pair, err := m.tokens.Read()
	if err == nil {
		if err := m.api.Logout(ctx, pair.Refresh); err != nil {
			log.Warn().Err(err).Msg("server logout failed, ending session locally")
		}
	}

	if err := m.tokens.Clear(); err != nil {
		return err
	}

	log.Info().Msg("logged out")
	m.setState(Anonymous, nil)
	return nil
}

// HandleUnauthorized is the fail-closed path for a 401 on any authenticated
// request. Register it as the API client's unauthorized hook.
func (m *Manager) HandleUnauthorized() {
	log.Warn().Msg("server rejected credentials, ending session")
	if err := m.tokens.Clear(); err != nil {
		log.Error().Err(err).Msg("failed to clear credentials")
	}
	m.setState(Anonymous, nil)
}

// State returns a snapshot of the session.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State{Status: m.status, Principal: m.principal}
}

// CurrentPrincipal returns the authenticated principal, or nil.
func (m *Manager) CurrentPrincipal() *models.Principal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.principal
}

// Subscribe registers fn for every subsequent transition. The returned
// function removes the subscription.
func (m *Manager) Subscribe(fn func(State)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSubID
	m.nextSubID++
	m.subs = append(m.subs, subscriber{id: id, fn: fn})

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, sub := range m.subs {
			if sub.id == id {
				m.subs = append(m.subs[:i], m.subs[i+1:]...)
				return
			}
		}
	}
}

// setState applies a transition and notifies subscribers. A transition to
// the current state is a no-op, so a settled state is broadcast once.
func (m *Manager) setState(status Status, principal *models.Principal) {
	m.mu.Lock()
	if m.status == status && m.principal == principal {
		m.mu.Unlock()
		return
	}
	m.status = status
	m.principal = principal
	state := State{Status: status, Principal: principal}
	subs := make([]subscriber, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	for _, sub := range subs {
		sub.fn(state)
	}
}
