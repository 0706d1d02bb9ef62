package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/utafrali/EcommerceGo/webclient/internal/auth"
	"github.com/utafrali/EcommerceGo/webclient/internal/transport"
	apperrors "github.com/utafrali/EcommerceGo/webclient/pkg/errors"
	"github.com/utafrali/EcommerceGo/webclient/pkg/httpclient"
	"github.com/utafrali/EcommerceGo/webclient/pkg/logger"
)

// Auth endpoints, relative to the API base URL.
const (
	LoginPath  = "/auth/login"
	LogoutPath = "/auth/logout"
)

// State is the authentication state of the shell.
type State int

const (
	StateLoggedOut State = iota
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	default:
		return "logged_out"
	}
}

// TokenStore is the part of auth.TokenStore the shell needs.
type TokenStore interface {
	Get(ctx context.Context) string
	Remember(ctx context.Context, token string, durable bool) error
	Clear(ctx context.Context) error
}

// Dispatcher sends requests to the API.
type Dispatcher interface {
	Do(ctx context.Context, req *transport.Request) (*http.Response, error)
}

// Shell owns the login state and consumes the unauthorized signal.
type Shell struct {
	api    Dispatcher
	store  TokenStore
	logger *slog.Logger

	mu      sync.Mutex
	state   State
	message string
}

// NewShell creates a shell. It starts authenticated when the store already
// holds a token.
func NewShell(api Dispatcher, store TokenStore, logger *slog.Logger) *Shell {
	s := &Shell{api: api, store: store, logger: logger}
	if store.Get(context.Background()) != "" {
		s.state = StateAuthenticated
	}
	return s
}

// State returns the current authentication state.
func (s *Shell) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Message returns the user-visible message set by the last state change.
func (s *Shell) Message() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.message
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login exchanges credentials for an access token. With remember the token
// goes to the durable scope, otherwise to the ephemeral one.
func (s *Shell) Login(ctx context.Context, email, password string, remember bool) error {
	body, err := json.Marshal(loginRequest{Email: email, Password: password})
	if err != nil {
		return fmt.Errorf("marshal login request: %w", err)
	}

	resp, err := s.api.Do(ctx, &transport.Request{
		Method:   http.MethodPost,
		Path:     LoginPath,
		Body:     body,
		SkipAuth: true,
	})
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if !httpclient.IsSuccess(resp.StatusCode) {
		return httpclient.ParseResponseError(resp)
	}
	defer httpclient.DrainAndClose(resp)

	token, err := auth.DecodeAccessToken(resp.Body)
	if err != nil || token == "" {
		return apperrors.Wrap(apperrors.ErrInternal, "login response has no access token")
	}

	if err := s.store.Remember(ctx, token, remember); err != nil {
		return fmt.Errorf("store token: %w", err)
	}

	s.mu.Lock()
	s.state = StateAuthenticated
	s.message = ""
	s.mu.Unlock()

	logger.WithContext(ctx, s.logger).InfoContext(ctx, "logged in",
		slog.String("subject", auth.Subject(token)),
		slog.Bool("remember", remember),
	)
	return nil
}

// Logout revokes the session on the server on a best-effort basis and clears
// every stored credential.
func (s *Shell) Logout(ctx context.Context) error {
	log := logger.WithContext(ctx, s.logger)

	header := http.Header{}
	if token := s.store.Get(ctx); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.api.Do(ctx, &transport.Request{
		Method:   http.MethodPost,
		Path:     LogoutPath,
		Header:   header,
		SkipAuth: true,
	})
	switch {
	case err != nil:
		log.WarnContext(ctx, "logout request failed", slog.String("error", err.Error()))
	case !httpclient.IsSuccess(resp.StatusCode):
		log.WarnContext(ctx, "logout rejected", slog.Int("status", resp.StatusCode))
		httpclient.DrainAndClose(resp)
	default:
		httpclient.DrainAndClose(resp)
	}

	s.mu.Lock()
	s.state = StateLoggedOut
	s.message = ""
	s.mu.Unlock()

	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear tokens: %w", err)
	}
	log.InfoContext(ctx, "logged out")
	return nil
}

// HandleUnauthorized forces the logged-out state after a credential could
// not be recovered. Only the first call after a login has any effect.
func (s *Shell) HandleUnauthorized(ctx context.Context) {
	s.mu.Lock()
	if s.state != StateAuthenticated {
		s.mu.Unlock()
		return
	}
	s.state = StateLoggedOut
	s.message = transport.SessionExpiredMessage
	s.mu.Unlock()

	log := logger.WithContext(ctx, s.logger)
	if err := s.store.Clear(ctx); err != nil {
		log.ErrorContext(ctx, "clear tokens after session loss", slog.String("error", err.Error()))
	}
	log.WarnContext(ctx, "session expired")
}
