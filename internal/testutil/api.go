// Package testutil provides an in-process fake of the storefront API for
// exercising the client against real HTTP.
package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/utafrali/EcommerceGo/webclient/pkg/errors"
	"github.com/utafrali/EcommerceGo/webclient/pkg/health"
	"github.com/utafrali/EcommerceGo/webclient/pkg/httputil"
	"github.com/utafrali/EcommerceGo/webclient/pkg/logger"
	"github.com/utafrali/EcommerceGo/webclient/pkg/middleware"
	"github.com/utafrali/EcommerceGo/webclient/pkg/pagination"
	"github.com/utafrali/EcommerceGo/webclient/pkg/validator"
)

// Default credentials accepted by the fake API.
const (
	DefaultUserID   = "user-1"
	DefaultEmail    = "admin@example.com"
	DefaultPassword = "secret123"

	RefreshCookie = "refresh_token"

	maxUploadSize int64 = 10 << 20
)

var allowedContentTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

var validOwnerTypes = map[string]bool{
	"product":  true,
	"user":     true,
	"category": true,
}

// MediaRecord is an uploaded file as stored by the fake API.
type MediaRecord struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"owner_id"`
	OwnerType    string    `json:"owner_type"`
	FileName     string    `json:"file_name"`
	OriginalName string    `json:"original_name"`
	ContentType  string    `json:"content_type"`
	Size         int64     `json:"size"`
	URL          string    `json:"url"`
	AltText      string    `json:"alt_text"`
	SortOrder    int       `json:"sort_order"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	Data []byte `json:"-"`
}

// API is a fake storefront backend serving login, refresh, logout and the
// media endpoints.
type API struct {
	*httptest.Server

	issuer       *TokenIssuer
	logger       *slog.Logger
	passwordHash []byte

	mu          sync.Mutex
	accessTTL   time.Duration
	revoked     map[string]bool
	media       map[string]*MediaRecord
	requests    map[string]int
	refreshGate chan struct{}

	refreshCalls atomic.Int32
	failRefresh  atomic.Bool
	rejectAll    atomic.Bool
	unready      atomic.Bool
}

// NewAPI starts a fake API that is closed when the test ends.
func NewAPI(t testing.TB) *API {
	t.Helper()

	a := &API{
		issuer:    NewTokenIssuer("fake-storefront-secret"),
		logger:    logger.NewNop(),
		accessTTL: 15 * time.Minute,
		revoked:   make(map[string]bool),
		media:     make(map[string]*MediaRecord),
		requests:  make(map[string]int),
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash default password: %v", err)
	}
	a.passwordHash = hash

	a.Server = httptest.NewServer(a.routes())
	t.Cleanup(a.Close)
	return a
}

func (a *API) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(a.logger))
	r.Use(middleware.RequestLogging(a.logger))
	r.Use(a.count)

	h := health.NewHandler()
	h.Register("media_store", a.checkMediaStore)
	r.Get("/health/live", h.LivenessHandler())
	r.Get("/health/ready", h.ReadinessHandler())

	r.Post("/auth/login", a.login)
	r.Post("/auth/refresh", a.refresh)
	r.Post("/auth/logout", a.logout)

	r.Group(func(r chi.Router) {
		r.Use(a.rejectOverride)
		r.Use(middleware.BearerAuth(a.validateAccess))
		r.Get("/me", a.me)
		r.Post("/media", a.uploadMedia)
		r.Get("/media", a.listMedia)
		r.Get("/media/{id}", a.getMedia)
		r.Delete("/media/{id}", a.deleteMedia)
	})

	return r
}

// --- knobs and inspection ---

// IssueAccess mints an access token for the default user.
func (a *API) IssueAccess(ttl time.Duration) string {
	token, err := a.issuer.Access(DefaultUserID, DefaultEmail, ttl)
	if err != nil {
		panic(err)
	}
	return token
}

// IssueRefresh mints a refresh token for the default user.
func (a *API) IssueRefresh(ttl time.Duration) string {
	token, err := a.issuer.Refresh(DefaultUserID, ttl)
	if err != nil {
		panic(err)
	}
	return token
}

// SetAccessTTL sets the lifetime of access tokens issued from now on.
func (a *API) SetAccessTTL(ttl time.Duration) {
	a.mu.Lock()
	a.accessTTL = ttl
	a.mu.Unlock()
}

// Revoke makes a previously issued token invalid.
func (a *API) Revoke(token string) {
	a.mu.Lock()
	a.revoked[token] = true
	a.mu.Unlock()
}

// FailRefresh makes the refresh endpoint answer 401.
func (a *API) FailRefresh(fail bool) { a.failRefresh.Store(fail) }

// RejectAll makes every authenticated endpoint answer 401.
func (a *API) RejectAll(reject bool) { a.rejectAll.Store(reject) }

// SetUnready makes the readiness probe report the media store down.
func (a *API) SetUnready(unready bool) { a.unready.Store(unready) }

// HoldRefresh blocks refresh calls until the returned function is called.
func (a *API) HoldRefresh() (release func()) {
	gate := make(chan struct{})
	a.mu.Lock()
	a.refreshGate = gate
	a.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			a.refreshGate = nil
			a.mu.Unlock()
			close(gate)
		})
	}
}

// RefreshCalls returns the number of requests to the refresh endpoint.
func (a *API) RefreshCalls() int { return int(a.refreshCalls.Load()) }

// Requests returns how many requests hit path.
func (a *API) Requests(path string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.requests[path]
}

// Media returns a stored upload by ID.
func (a *API) Media(id string) (*MediaRecord, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	m, ok := a.media[id]
	return m, ok
}

func (a *API) checkMediaStore(context.Context) error {
	if a.unready.Load() {
		return errors.New("media store unavailable")
	}
	return nil
}

func (a *API) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		a.requests[r.URL.Path]++
		a.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (a *API) rejectOverride(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.rejectAll.Load() {
			httputil.WriteError(w, r, apperrors.Unauthorized("token rejected"), a.logger)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) validateAccess(token string) (string, error) {
	a.mu.Lock()
	revoked := a.revoked[token]
	a.mu.Unlock()
	if revoked {
		return "", apperrors.ErrUnauthorized
	}

	claims, err := a.issuer.Verify(token, kindAccess)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// --- auth handlers ---

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type tokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type userView struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput("invalid request body: "+err.Error()), a.logger)
		return
	}
	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}
	if req.Email != DefaultEmail ||
		bcrypt.CompareHashAndPassword(a.passwordHash, []byte(req.Password)) != nil {
		httputil.WriteError(w, r, apperrors.Unauthorized("invalid email or password"), a.logger)
		return
	}

	a.mu.Lock()
	ttl := a.accessTTL
	a.mu.Unlock()

	access, err := a.issuer.Access(DefaultUserID, DefaultEmail, ttl)
	if err != nil {
		httputil.WriteError(w, r, err, a.logger)
		return
	}
	refresh, err := a.issuer.Refresh(DefaultUserID, 24*time.Hour)
	if err != nil {
		httputil.WriteError(w, r, err, a.logger)
		return
	}

	http.SetCookie(w, &http.Cookie{Name: RefreshCookie, Value: refresh, Path: "/", HttpOnly: true})
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: map[string]any{
			"user":   userView{ID: DefaultUserID, Email: DefaultEmail},
			"tokens": tokenPair{AccessToken: access, RefreshToken: refresh},
		},
	})
}

func (a *API) refresh(w http.ResponseWriter, r *http.Request) {
	a.refreshCalls.Add(1)

	a.mu.Lock()
	gate := a.refreshGate
	ttl := a.accessTTL
	a.mu.Unlock()
	if gate != nil {
		<-gate
	}

	if a.failRefresh.Load() {
		httputil.WriteError(w, r, apperrors.Unauthorized("refresh token expired"), a.logger)
		return
	}

	cookie, err := r.Cookie(RefreshCookie)
	if err != nil {
		httputil.WriteError(w, r, apperrors.Unauthorized("refresh token missing"), a.logger)
		return
	}

	a.mu.Lock()
	revoked := a.revoked[cookie.Value]
	a.mu.Unlock()
	claims, err := a.issuer.Verify(cookie.Value, kindRefresh)
	if revoked || err != nil {
		httputil.WriteError(w, r, apperrors.Unauthorized("refresh token invalid"), a.logger)
		return
	}

	access, err := a.issuer.Access(claims.Subject, DefaultEmail, ttl)
	if err != nil {
		httputil.WriteError(w, r, err, a.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tokenPair{AccessToken: access})
}

func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(RefreshCookie); err == nil {
		a.Revoke(cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{Name: RefreshCookie, Value: "", Path: "/", MaxAge: -1})
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]string{"message": "logged out"}})
}

func (a *API) me(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: userView{ID: logger.SubjectFromContext(r.Context()), Email: DefaultEmail},
	})
}

// --- media handlers ---

func (a *API) uploadMedia(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize+(1<<20))

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput("failed to parse multipart form: "+err.Error()), a.logger)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput("file is required: "+err.Error()), a.logger)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput("read file: "+err.Error()), a.logger)
		return
	}

	contentType := header.Header.Get("Content-Type")
	ownerType := r.FormValue("owner_type")
	switch {
	case !allowedContentTypes[contentType]:
		httputil.WriteError(w, r, apperrors.InvalidInput("content type "+contentType+" is not allowed"), a.logger)
		return
	case !validOwnerTypes[ownerType]:
		httputil.WriteError(w, r, apperrors.InvalidInput("owner type "+ownerType+" is not allowed"), a.logger)
		return
	}

	now := time.Now().UTC()
	id := uuid.New().String()
	rec := &MediaRecord{
		ID:           id,
		OwnerID:      r.FormValue("owner_id"),
		OwnerType:    ownerType,
		FileName:     ownerType + "/" + r.FormValue("owner_id") + "/" + id,
		OriginalName: header.Filename,
		ContentType:  contentType,
		Size:         int64(len(data)),
		URL:          a.URL + "/files/" + id,
		AltText:      r.FormValue("alt_text"),
		CreatedAt:    now,
		UpdatedAt:    now,
		Data:         data,
	}

	a.mu.Lock()
	a.media[id] = rec
	a.mu.Unlock()

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: rec})
}

func (a *API) getMedia(w http.ResponseWriter, r *http.Request) {
	rec, ok := a.Media(chi.URLParam(r, "id"))
	if !ok {
		httputil.WriteError(w, r, apperrors.NotFound("media not found"), a.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: rec})
}

func (a *API) listMedia(w http.ResponseWriter, r *http.Request) {
	params := pagination.FromRequest(r)
	ownerType := r.URL.Query().Get("owner_type")
	ownerID := r.URL.Query().Get("owner_id")

	a.mu.Lock()
	var matched []MediaRecord
	for _, m := range a.media {
		if (ownerType == "" || m.OwnerType == ownerType) && (ownerID == "" || m.OwnerID == ownerID) {
			matched = append(matched, *m)
		}
	}
	a.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	start := min(params.Offset(), len(matched))
	end := min(start+params.PerPage, len(matched))
	httputil.WriteJSON(w, http.StatusOK, pagination.NewResult(matched[start:end], len(matched), params))
}

func (a *API) deleteMedia(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	a.mu.Lock()
	_, ok := a.media[id]
	delete(a.media, id)
	a.mu.Unlock()

	if !ok {
		httputil.WriteError(w, r, apperrors.NotFound("media not found"), a.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
