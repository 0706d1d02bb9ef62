package auth

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"github.com/utafrali/EcommerceGo/webclient/pkg/httpclient"
	"github.com/utafrali/EcommerceGo/webclient/pkg/logger"
	"github.com/utafrali/EcommerceGo/webclient/pkg/tracing"
)

const (
	// DefaultRefreshPath is the cookie-authenticated refresh endpoint.
	DefaultRefreshPath = "/auth/refresh"

	// DefaultRefreshTimeout bounds one refresh network call.
	DefaultRefreshTimeout = 15 * time.Second

	refreshKey = "refresh"
)

// RefresherConfig configures the refresh call.
type RefresherConfig struct {
	BaseURL string
	Path    string
	Timeout time.Duration
}

// Refresher exchanges the refresh cookie for a new access token. At most one
// refresh call is in flight at a time; concurrent callers share its result.
type Refresher struct {
	client  httpclient.Doer
	store   *TokenStore
	url     string
	timeout time.Duration
	logger  *slog.Logger

	group singleflight.Group
}

// NewRefresher creates a refresher. The client must share the cookie jar
// used by the login call.
func NewRefresher(client httpclient.Doer, store *TokenStore, cfg RefresherConfig, logger *slog.Logger) *Refresher {
	path := cfg.Path
	if path == "" {
		path = DefaultRefreshPath
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultRefreshTimeout
	}
	return &Refresher{
		client:  client,
		store:   store,
		url:     strings.TrimRight(cfg.BaseURL, "/") + path,
		timeout: timeout,
		logger:  logger,
	}
}

// Refresh returns a new access token, or "" when the refresh failed or ctx
// was cancelled first. It never returns an error. On success the token has
// been written to the store before Refresh returns.
//
// The shared call runs detached from any single caller's context, so one
// caller giving up does not fail the others.
func (r *Refresher) Refresh(ctx context.Context) string {
	ch := r.group.DoChan(refreshKey, func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		return r.refresh(rctx), nil
	})

	select {
	case res := <-ch:
		token, _ := res.Val.(string)
		return token
	case <-ctx.Done():
		return ""
	}
}

func (r *Refresher) refresh(ctx context.Context) string {
	ctx, span := tracing.Tracer("auth").Start(ctx, "auth.refresh")
	defer span.End()

	log := logger.WithContext(ctx, r.logger)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, nil)
	if err != nil {
		log.ErrorContext(ctx, "build refresh request", slog.String("error", err.Error()))
		refreshTotal.WithLabelValues(outcomeFailure).Inc()
		return ""
	}
	req.Header.Set("Accept", "application/json")
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		req.Header.Set(httpclient.CorrelationIDHeader, id)
	}
	tracing.InjectHeaders(ctx, req.Header)

	resp, err := r.client.Do(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "refresh failed")
		log.WarnContext(ctx, "token refresh failed", slog.String("error", err.Error()))
		refreshTotal.WithLabelValues(outcomeFailure).Inc()
		return ""
	}
	defer httpclient.DrainAndClose(resp)

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if !httpclient.IsSuccess(resp.StatusCode) {
		span.SetStatus(codes.Error, "refresh rejected")
		log.WarnContext(ctx, "token refresh rejected", slog.Int("status", resp.StatusCode))
		refreshTotal.WithLabelValues(outcomeFailure).Inc()
		return ""
	}

	token, err := DecodeAccessToken(resp.Body)
	if err != nil || token == "" {
		span.SetStatus(codes.Error, "refresh response unusable")
		log.WarnContext(ctx, "token refresh response has no access token")
		refreshTotal.WithLabelValues(outcomeFailure).Inc()
		return ""
	}

	if err := r.store.Set(ctx, token); err != nil {
		log.ErrorContext(ctx, "persist refreshed token", slog.String("error", err.Error()))
	}

	refreshTotal.WithLabelValues(outcomeSuccess).Inc()
	log.DebugContext(ctx, "token refreshed")
	return token
}

// tokenResponse accepts both {"access_token"} and the storefront envelope
// {"data":{"tokens":{"access_token"}}}.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	Data        struct {
		AccessToken string `json:"access_token"`
		Tokens      struct {
			AccessToken string `json:"access_token"`
		} `json:"tokens"`
	} `json:"data"`
}

// DecodeAccessToken reads an access token from a login or refresh response body.
func DecodeAccessToken(r io.Reader) (string, error) {
	var body tokenResponse
	if err := json.NewDecoder(io.LimitReader(r, 1<<20)).Decode(&body); err != nil {
		return "", err
	}
	switch {
	case body.AccessToken != "":
		return body.AccessToken, nil
	case body.Data.Tokens.AccessToken != "":
		return body.Data.Tokens.AccessToken, nil
	default:
		return body.Data.AccessToken, nil
	}
}
