package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	apperrors "github.com/utafrali/EcommerceGo/webclient/pkg/errors"
)

// Scopes lists the persistence locations of a TokenStore. Legacy is optional
// and is only ever read or deleted.
type Scopes struct {
	Durable   Scope
	Ephemeral Scope
	Legacy    Scope
}

// TokenStore reads and writes the bearer credential across an ordered list of
// scopes: durable, then ephemeral, then legacy.
//
// A token is written back to the writable scope that already holds one, so a
// refreshed session never moves between scopes. When no writable scope holds a
// token the ephemeral scope is used.
type TokenStore struct {
	durable   Scope
	ephemeral Scope
	order     []Scope
	logger    *slog.Logger

	mu sync.Mutex
}

// ErrNoScope is returned when a write targets a scope the store was not
// given.
var ErrNoScope = errors.New("token scope not configured")

// NewTokenStore creates a store over the given scopes. Nil scopes are left
// out; writes that would target one fail with ErrNoScope.
func NewTokenStore(scopes Scopes, logger *slog.Logger) *TokenStore {
	var order []Scope
	for _, sc := range []Scope{scopes.Durable, scopes.Ephemeral} {
		if sc != nil {
			order = append(order, sc)
		}
	}
	if scopes.Legacy != nil {
		order = append(order, ReadOnly(scopes.Legacy))
	}
	return &TokenStore{
		durable:   scopes.Durable,
		ephemeral: scopes.Ephemeral,
		order:     order,
		logger:    logger,
	}
}

// Get returns the first credential present in precedence order, or "" when
// no scope holds one. Unreadable scopes are logged and skipped.
func (s *TokenStore) Get(ctx context.Context) string {
	token, _ := s.Lookup(ctx)
	return token
}

// Lookup is Get that also reports which scope the token came from.
func (s *TokenStore) Lookup(ctx context.Context) (token, scope string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, token := s.find(ctx, s.order)
	if sc == nil {
		return "", ""
	}
	return token, sc.Name()
}

// Set persists a refreshed credential into its origin scope.
func (s *TokenStore) Set(ctx context.Context, token string) error {
	if token == "" {
		return apperrors.InvalidInput("token must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	target, err := s.origin(ctx)
	if err != nil {
		return fmt.Errorf("set token: %w", err)
	}
	if err := target.Save(ctx, token); err != nil {
		return fmt.Errorf("set token: %w", err)
	}
	return nil
}

// Remember stores a freshly issued credential, choosing the scope explicitly.
// The other writable scope and the legacy scope are cleared so the token
// exists in exactly one place.
func (s *TokenStore) Remember(ctx context.Context, token string, durable bool) error {
	if token == "" {
		return apperrors.InvalidInput("token must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.ephemeral
	if durable {
		target = s.durable
	}
	if target == nil {
		return fmt.Errorf("remember token: %w", ErrNoScope)
	}
	if err := target.Save(ctx, token); err != nil {
		return fmt.Errorf("remember token: %w", err)
	}

	var errs []error
	for _, sc := range s.order {
		if sc == target {
			continue
		}
		if err := sc.Delete(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("remember token: %w", err)
	}
	return nil
}

// Clear deletes the credential from every scope, legacy included. All scopes
// are attempted even when one fails.
func (s *TokenStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, sc := range s.order {
		if err := sc.Delete(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("clear tokens: %w", err)
	}
	return nil
}

// origin returns the writable scope a refreshed token belongs to: the first
// one holding a token, else the ephemeral scope. An unreadable writable scope
// is an error, since the token might live there.
// Callers hold s.mu.
func (s *TokenStore) origin(ctx context.Context) (Scope, error) {
	for _, sc := range []Scope{s.durable, s.ephemeral} {
		if sc == nil {
			continue
		}
		token, err := sc.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("read %s scope: %w", sc.Name(), err)
		}
		if token != "" {
			return sc, nil
		}
	}
	if s.ephemeral == nil {
		return nil, ErrNoScope
	}
	return s.ephemeral, nil
}

// find returns the first scope in candidates holding a non-empty token.
// Callers hold s.mu.
func (s *TokenStore) find(ctx context.Context, candidates []Scope) (Scope, string) {
	for _, sc := range candidates {
		token, err := sc.Load(ctx)
		if err != nil {
			s.logger.WarnContext(ctx, "token scope unreadable",
				slog.String("scope", sc.Name()),
				slog.String("error", err.Error()),
			)
			continue
		}
		if token != "" {
			return sc, token
		}
	}
	return nil, ""
}
