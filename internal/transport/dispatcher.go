package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/utafrali/EcommerceGo/webclient/internal/auth"
	apperrors "github.com/utafrali/EcommerceGo/webclient/pkg/errors"
	"github.com/utafrali/EcommerceGo/webclient/pkg/httpclient"
	"github.com/utafrali/EcommerceGo/webclient/pkg/logger"
	"github.com/utafrali/EcommerceGo/webclient/pkg/tracing"
)

// SessionExpiredMessage is shown when a stale credential could not be recovered.
const SessionExpiredMessage = "Your session has expired. Please log in again."

// TokenStore yields the current bearer credential, or "".
type TokenStore interface {
	Get(ctx context.Context) string
}

// ExpiryChecker reports whether a token is close enough to expiry to refresh.
type ExpiryChecker interface {
	IsExpiringSoon(token string) bool
}

// Refresher obtains a new credential, or "" when none is available.
type Refresher interface {
	Refresh(ctx context.Context) string
}

// Notifier receives the unauthorized signal.
type Notifier interface {
	Notify(ctx context.Context)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context)

func (f NotifierFunc) Notify(ctx context.Context) { f(ctx) }

// Config holds dispatcher settings.
type Config struct {
	BaseURL string
	// RateLimit caps outgoing attempts per second. Zero disables limiting.
	RateLimit float64
	Burst     int
}

// Deps are the collaborators of a Dispatcher.
type Deps struct {
	Store     TokenStore
	Inspector ExpiryChecker
	Refresher Refresher
	Notifier  Notifier
	Client    httpclient.Doer
}

// Dispatcher sends authenticated requests. Both execution modes share one
// policy: use a fresh-enough token, and on a 401 refresh and retry exactly
// once before firing the unauthorized signal.
type Dispatcher struct {
	baseURL   string
	store     TokenStore
	inspector ExpiryChecker
	refresher Refresher
	notifier  Notifier
	fetch     Sender
	upload    Sender
	limiter   *rate.Limiter
	logger    *slog.Logger
	tracer    trace.Tracer
}

// New creates a dispatcher whose fetch and upload senders share deps.Client.
func New(cfg Config, deps Deps, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		store:     deps.Store,
		inspector: deps.Inspector,
		refresher: deps.Refresher,
		notifier:  deps.Notifier,
		fetch:     NewFetchSender(deps.Client),
		upload:    NewUploadSender(deps.Client),
		logger:    logger,
		tracer:    tracing.Tracer("transport"),
	}
	if d.notifier == nil {
		d.notifier = NotifierFunc(func(context.Context) {})
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		d.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return d
}

// WithSenders returns a copy of d using the given senders.
func (d *Dispatcher) WithSenders(fetch, upload Sender) *Dispatcher {
	cp := *d
	cp.fetch = fetch
	cp.upload = upload
	return &cp
}

// Do sends req in simple mode. Any status, including a final 401, is
// returned as a response; only transport failures are errors, and those
// satisfy errors.Is(err, apperrors.ErrNetwork).
func (d *Dispatcher) Do(ctx context.Context, req *Request) (*http.Response, error) {
	return d.dispatch(ctx, ModeFetch, d.fetch, req, nil)
}

// Upload sends req in upload mode. onProgress receives non-decreasing
// percentages; 100 is delivered only after a 2xx response.
func (d *Dispatcher) Upload(ctx context.Context, req *Request, onProgress func(int)) (*http.Response, error) {
	tracker := newProgressTracker(onProgress)
	resp, err := d.dispatch(ctx, ModeUpload, d.upload, req, tracker)
	if err == nil && httpclient.IsSuccess(resp.StatusCode) {
		tracker.complete()
	}
	return resp, err
}

// DoJSON sends req in simple mode and decodes a 2xx body into out.
func (d *Dispatcher) DoJSON(ctx context.Context, req *Request, out any) error {
	resp, err := d.Do(ctx, req)
	if err != nil {
		return err
	}
	return decodeResponse(resp, req, out)
}

// UploadJSON is Upload followed by decoding a 2xx body into out.
func (d *Dispatcher) UploadJSON(ctx context.Context, req *Request, onProgress func(int), out any) error {
	resp, err := d.Upload(ctx, req, onProgress)
	if err != nil {
		return err
	}
	return decodeResponse(resp, req, out)
}

func decodeResponse(resp *http.Response, req *Request, out any) error {
	if resp.StatusCode == http.StatusUnauthorized && !req.SkipAuth {
		httpclient.DrainAndClose(resp)
		return apperrors.SessionExpired(SessionExpiredMessage)
	}
	if !httpclient.IsSuccess(resp.StatusCode) {
		return httpclient.ParseResponseError(resp)
	}
	defer httpclient.DrainAndClose(resp)

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (d *Dispatcher) dispatch(ctx context.Context, mode string, sender Sender, req *Request, tracker *progressTracker) (*http.Response, error) {
	if logger.CorrelationIDFromContext(ctx) == "" {
		ctx = logger.WithCorrelationID(ctx, uuid.New().String())
	}

	ctx, span := d.tracer.Start(ctx, "transport."+mode, trace.WithAttributes(
		attribute.String("http.method", req.method()),
		attribute.String("http.path", req.Path),
	))
	defer span.End()

	body, err := req.payload()
	if err != nil {
		span.SetStatus(codes.Error, "encode body")
		return nil, fmt.Errorf("encode request body: %w", err)
	}

	if req.SkipAuth {
		resp, err := d.attempt(ctx, mode, sender, req, body, "", tracker)
		finishSpan(span, resp, err)
		return resp, err
	}

	token := d.usableToken(ctx)
	if sub := auth.Subject(token); sub != "" {
		ctx = logger.WithSubject(ctx, sub)
	}
	log := logger.WithContext(ctx, d.logger)

	resp, err := d.attempt(ctx, mode, sender, req, body, token, tracker)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		finishSpan(span, resp, err)
		return resp, err
	}

	// The 401 connection goes back to the pool before waiting on the
	// refresh, which needs a connection of its own.
	if err := bufferBody(resp); err != nil {
		finishSpan(span, nil, err)
		return nil, apperrors.Network(err)
	}

	retryToken := d.retryToken(ctx, token)
	if err := ctx.Err(); err != nil {
		// Abandoned by the caller: a transport failure, not a lost session.
		resp.Body.Close()
		finishSpan(span, nil, err)
		return nil, apperrors.Network(err)
	}
	if retryToken == "" {
		log.WarnContext(ctx, "request unauthorized and refresh unavailable",
			slog.String("mode", mode),
			slog.String("path", req.Path),
		)
		d.signal(ctx)
		finishSpan(span, resp, nil)
		return resp, nil
	}

	resp.Body.Close()
	authRetriesTotal.WithLabelValues(mode).Inc()
	span.AddEvent("retry after 401")
	log.DebugContext(ctx, "retrying request with refreshed token",
		slog.String("mode", mode),
		slog.String("path", req.Path),
	)

	resp, err = d.attempt(ctx, mode, sender, req, body, retryToken, tracker)
	if err != nil {
		finishSpan(span, resp, err)
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		log.WarnContext(ctx, "request unauthorized after refresh",
			slog.String("mode", mode),
			slog.String("path", req.Path),
		)
		d.signal(ctx)
	}
	finishSpan(span, resp, nil)
	return resp, nil
}

// usableToken returns the current token, proactively refreshed when it is
// about to expire. A failed refresh falls back to the stale token and lets
// the 401 path decide.
func (d *Dispatcher) usableToken(ctx context.Context) string {
	token := d.store.Get(ctx)
	if token == "" || !d.inspector.IsExpiringSoon(token) {
		return token
	}
	if fresh := d.refresher.Refresh(ctx); fresh != "" {
		return fresh
	}
	return token
}

// retryToken picks the credential for the single retry. A token stored by a
// refresh that completed while this request was in flight is used directly;
// otherwise a refresh is requested.
func (d *Dispatcher) retryToken(ctx context.Context, used string) string {
	if current := d.store.Get(ctx); current != "" && current != used {
		return current
	}
	return d.refresher.Refresh(ctx)
}

func (d *Dispatcher) signal(ctx context.Context) {
	sessionLostTotal.Inc()
	d.notifier.Notify(ctx)
}

func (d *Dispatcher) attempt(ctx context.Context, mode string, sender Sender, req *Request, body payload, token string, tracker *progressTracker) (*http.Response, error) {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			requestsTotal.WithLabelValues(mode, "error").Inc()
			return nil, apperrors.Network(err)
		}
	}

	httpReq, err := d.newHTTPRequest(ctx, req, body, token)
	if err != nil {
		return nil, err
	}

	var progress ProgressFunc
	if tracker != nil {
		progress = tracker.transfer
	}

	resp, err := sender.Send(ctx, httpReq, progress)
	if err != nil {
		requestsTotal.WithLabelValues(mode, "error").Inc()
		if !apperrors.IsNetwork(err) {
			err = apperrors.Network(err)
		}
		logger.WithContext(ctx, d.logger).DebugContext(ctx, "request failed",
			slog.String("mode", mode),
			slog.String("path", req.Path),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	requestsTotal.WithLabelValues(mode, strconv.Itoa(resp.StatusCode)).Inc()
	logger.WithContext(ctx, d.logger).DebugContext(ctx, "request completed",
		slog.String("mode", mode),
		slog.String("method", httpReq.Method),
		slog.String("path", req.Path),
		slog.Int("status", resp.StatusCode),
	)
	return resp, nil
}

func (d *Dispatcher) newHTTPRequest(ctx context.Context, req *Request, body payload, token string) (*http.Request, error) {
	var rdr io.Reader
	if body.body != nil {
		rdr = bytes.NewReader(body.body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method(), d.resolve(req), rdr)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", body.contentType)
	for k, vs := range req.Header {
		// A multipart body owns its boundary.
		if body.multipart && http.CanonicalHeaderKey(k) == "Content-Type" {
			continue
		}
		httpReq.Header[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	httpReq.Header.Set(httpclient.CorrelationIDHeader, logger.CorrelationIDFromContext(ctx))
	tracing.InjectHeaders(ctx, httpReq.Header)

	return httpReq, nil
}

func (d *Dispatcher) resolve(req *Request) string {
	target := req.Path
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = d.baseURL + "/" + strings.TrimLeft(target, "/")
	}
	if len(req.Query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + req.Query.Encode()
	}
	return target
}

// maxBufferedBody bounds how much of a 401 body is kept for the caller.
const maxBufferedBody = 1 << 20

// bufferBody replaces resp.Body with an in-memory copy and releases the
// connection.
func bufferBody(resp *http.Response) error {
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBufferedBody))
	if err != nil {
		return fmt.Errorf("read 401 body: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(b))
	return nil
}

func finishSpan(span trace.Span, resp *http.Response, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport failure")
		return
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode >= http.StatusBadRequest {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
	}
}
