// Package auth holds the session context: the bearer token of the logged-in
// user. A Session starts on login (or on restoring a stored token) and ends
// on logout, explicit or forced by an expired token.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"ragchat/internal/credstore"
	"ragchat/internal/domain"
	"ragchat/internal/events"
)

// TokenStore persists tokens between runs. *credstore.Store implements it.
type TokenStore interface {
	Save(ctx context.Context, cred credstore.Credential) error
	Load(ctx context.Context, server string) (*credstore.Credential, error)
	Delete(ctx context.Context, server string) error
	Touch(ctx context.Context, server string) error
}

// LogoutReason tells logout hooks why the session ended.
type LogoutReason string

const (
	LogoutExplicit LogoutReason = "explicit"
	LogoutExpired  LogoutReason = "expired"
)

// SessionConfig configures a Session.
type SessionConfig struct {
	Server string // base URL the token belongs to
	Store  TokenStore
	Events *events.Bus
	Logger *slog.Logger
}

// Session is the explicit session context shared by the core components.
type Session struct {
	mu       sync.RWMutex
	server   string
	username string
	token    string
	store    TokenStore
	hooks    []func(LogoutReason)
	events   *events.Bus
	logger   *slog.Logger
}

var (
	_ domain.TokenSource    = (*Session)(nil)
	_ domain.SessionExpirer = (*Session)(nil)
)

// NewSession creates an unauthenticated session.
func NewSession(cfg SessionConfig) *Session {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Session{
		server: cfg.Server,
		store:  cfg.Store,
		events: cfg.Events,
		logger: cfg.Logger,
	}
}

// Token returns the bearer token, or "" when logged out.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Username returns the logged-in user, if known.
func (s *Session) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

// Authenticated reports whether a token is held.
func (s *Session) Authenticated() bool { return s.Token() != "" }

// OnLogout registers fn to run whenever the session ends.
func (s *Session) OnLogout(fn func(LogoutReason)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// Begin starts the session with a freshly issued token and persists it.
func (s *Session) Begin(ctx context.Context, username, token string) error {
	if token == "" {
		return fmt.Errorf("begin session: empty token")
	}
	s.mu.Lock()
	s.username = username
	s.token = token
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.Save(ctx, credstore.Credential{Server: s.server, Username: username, Token: token}); err != nil {
			return fmt.Errorf("begin session: %w", err)
		}
	}
	s.events.Emit(events.Event{Type: events.AuthLoggedIn, Source: "auth", Payload: map[string]any{"username": username}})
	s.logger.Info("session started", "server", s.server, "username", username)
	return nil
}

// Adopt starts the session with a token obtained elsewhere, such as the
// configuration file. The token is not persisted.
func (s *Session) Adopt(username, token string) {
	s.mu.Lock()
	s.username = username
	s.token = token
	s.mu.Unlock()
	s.logger.Debug("session adopted configured token", "server", s.server)
}

// Restore loads a previously stored token. It returns false when there
// is none.
func (s *Session) Restore(ctx context.Context) (bool, error) {
	if s.store == nil {
		return false, nil
	}
	cred, err := s.store.Load(ctx, s.server)
	if err != nil {
		return false, fmt.Errorf("restore session: %w", err)
	}
	if cred == nil {
		return false, nil
	}

	s.mu.Lock()
	s.username = cred.Username
	s.token = cred.Token
	s.mu.Unlock()

	if err := s.store.Touch(ctx, s.server); err != nil {
		s.logger.Warn("cannot update credential usage time", "err", err)
	}
	s.logger.Debug("session restored", "server", s.server, "username", cred.Username)
	return true, nil
}

// Logout ends the session at the user's request.
func (s *Session) Logout(ctx context.Context) error {
	return s.end(ctx, LogoutExplicit)
}

// Expire ends the session after the service rejected the token. Errors
// from the token store are logged; the in-memory token is cleared
// regardless.
func (s *Session) Expire(ctx context.Context) {
	if err := s.end(ctx, LogoutExpired); err != nil {
		s.logger.Warn("clearing expired session", "err", err)
	}
}

func (s *Session) end(ctx context.Context, reason LogoutReason) error {
	s.mu.Lock()
	wasActive := s.token != ""
	s.token = ""
	s.username = ""
	hooks := append(([]func(LogoutReason))(nil), s.hooks...)
	s.mu.Unlock()

	// A cancelled send must not leave the token on disk.
	var storeErr error
	if s.store != nil {
		storeErr = s.store.Delete(context.WithoutCancel(ctx), s.server)
	}

	// Concurrent failures may all report expiry; only the first one runs
	// the hooks.
	if !wasActive && reason == LogoutExpired {
		return storeErr
	}
	for _, fn := range hooks {
		fn(reason)
	}

	typ := events.AuthLoggedOut
	if reason == LogoutExpired {
		typ = events.AuthExpired
	}
	s.events.Emit(events.Event{Type: typ, Source: "auth", Payload: map[string]any{"server": s.server}})
	s.logger.Info("session ended", "server", s.server, "reason", string(reason))

	if storeErr != nil {
		return fmt.Errorf("logout: %w", storeErr)
	}
	return nil
}
