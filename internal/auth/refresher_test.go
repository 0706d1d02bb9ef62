package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/EcommerceGo/webclient/pkg/httpclient"
	"github.com/utafrali/EcommerceGo/webclient/pkg/logger"
)

type refreshServer struct {
	*httptest.Server
	calls   atomic.Int32
	release chan struct{}
	status  int
	body    string
	cookies atomic.Value
}

func newRefreshServer(t *testing.T, status int, body string) *refreshServer {
	t.Helper()
	rs := &refreshServer{status: status, body: body}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != DefaultRefreshPath || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		rs.calls.Add(1)
		if c, err := r.Cookie("refresh_token"); err == nil {
			rs.cookies.Store(c.Value)
		}
		if rs.release != nil {
			<-rs.release
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(rs.status)
		_, _ = w.Write([]byte(rs.body))
	}))
	t.Cleanup(rs.Close)
	return rs
}

func newTestRefresher(t *testing.T, baseURL string) (*Refresher, *TokenStore, testScopes, *httpclient.Client) {
	t.Helper()
	store, sc := newTestStore(t)
	client := httpclient.New(httpclient.Config{Timeout: 5 * time.Second, MaxConnsPerHost: 10})
	r := NewRefresher(client, store, RefresherConfig{BaseURL: baseURL + "/"}, logger.NewNop())
	return r, store, sc, client
}

func TestRefresher_Success(t *testing.T) {
	rs := newRefreshServer(t, http.StatusOK, `{"access_token":"new-token"}`)
	r, store, sc, _ := newTestRefresher(t, rs.URL)

	before := testutil.ToFloat64(refreshTotal.WithLabelValues(outcomeSuccess))

	got := r.Refresh(context.Background())
	assert.Equal(t, "new-token", got)
	assert.Equal(t, "new-token", store.Get(context.Background()))
	assert.Equal(t, "new-token", load(t, sc.ephemeral))
	assert.Equal(t, int32(1), rs.calls.Load())
	assert.Equal(t, before+1, testutil.ToFloat64(refreshTotal.WithLabelValues(outcomeSuccess)))
}

func TestRefresher_EnvelopeResponse(t *testing.T) {
	rs := newRefreshServer(t, http.StatusOK, `{"data":{"tokens":{"access_token":"enveloped"}}}`)
	r, _, _, _ := newTestRefresher(t, rs.URL)

	assert.Equal(t, "enveloped", r.Refresh(context.Background()))
}

func TestRefresher_PersistsIntoOriginScope(t *testing.T) {
	rs := newRefreshServer(t, http.StatusOK, `{"access_token":"rotated"}`)
	r, _, sc, _ := newTestRefresher(t, rs.URL)
	require.NoError(t, sc.durable.Save(context.Background(), "remembered"))

	require.Equal(t, "rotated", r.Refresh(context.Background()))
	assert.Equal(t, "rotated", load(t, sc.durable))
	assert.Empty(t, load(t, sc.ephemeral))
}

func TestRefresher_FailuresReturnEmpty(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":"refresh token expired"}`},
		{"server error", http.StatusInternalServerError, `{}`},
		{"no token in body", http.StatusOK, `{"ok":true}`},
		{"garbage body", http.StatusOK, `not json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := newRefreshServer(t, tt.status, tt.body)
			r, store, _, _ := newTestRefresher(t, rs.URL)

			before := testutil.ToFloat64(refreshTotal.WithLabelValues(outcomeFailure))
			assert.Empty(t, r.Refresh(context.Background()))
			assert.Empty(t, store.Get(context.Background()))
			assert.Equal(t, before+1, testutil.ToFloat64(refreshTotal.WithLabelValues(outcomeFailure)))
		})
	}
}

func TestRefresher_NetworkFailureReturnsEmpty(t *testing.T) {
	rs := newRefreshServer(t, http.StatusOK, `{"access_token":"unused"}`)
	addr := rs.URL
	rs.Close()

	r, _, _, _ := newTestRefresher(t, addr)
	assert.Empty(t, r.Refresh(context.Background()))
}

func TestRefresher_SingleFlight(t *testing.T) {
	rs := newRefreshServer(t, http.StatusOK, `{"access_token":"shared"}`)
	rs.release = make(chan struct{})
	r, _, _, _ := newTestRefresher(t, rs.URL)

	const callers = 20
	results := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.Refresh(context.Background())
		}(i)
	}

	require.Eventually(t, func() bool { return rs.calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	// Give the remaining goroutines time to join the pending call.
	time.Sleep(50 * time.Millisecond)
	close(rs.release)
	wg.Wait()

	assert.Equal(t, int32(1), rs.calls.Load())
	for i, got := range results {
		assert.Equal(t, "shared", got, "caller %d", i)
	}
}

func TestRefresher_SingleFlightSharesFailure(t *testing.T) {
	rs := newRefreshServer(t, http.StatusUnauthorized, `{}`)
	rs.release = make(chan struct{})
	r, _, _, _ := newTestRefresher(t, rs.URL)

	const callers = 5
	var wg sync.WaitGroup
	var empty atomic.Int32
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.Refresh(context.Background()) == "" {
				empty.Add(1)
			}
		}()
	}

	require.Eventually(t, func() bool { return rs.calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(rs.release)
	wg.Wait()

	assert.Equal(t, int32(1), rs.calls.Load())
	assert.Equal(t, int32(callers), empty.Load())
}

func TestRefresher_SequentialRefreshesIssueNewCalls(t *testing.T) {
	rs := newRefreshServer(t, http.StatusOK, `{"access_token":"again"}`)
	r, _, _, _ := newTestRefresher(t, rs.URL)

	r.Refresh(context.Background())
	r.Refresh(context.Background())
	assert.Equal(t, int32(2), rs.calls.Load())
}

func TestRefresher_CancelledCallerDoesNotFailOthers(t *testing.T) {
	rs := newRefreshServer(t, http.StatusOK, `{"access_token":"survivor"}`)
	rs.release = make(chan struct{})
	r, _, _, _ := newTestRefresher(t, rs.URL)

	cancelled, cancel := context.WithCancel(context.Background())
	first := make(chan string, 1)
	go func() { first <- r.Refresh(cancelled) }()
	require.Eventually(t, func() bool { return rs.calls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	second := make(chan string, 1)
	go func() { second <- r.Refresh(context.Background()) }()

	cancel()
	assert.Empty(t, <-first)

	close(rs.release)
	assert.Equal(t, "survivor", <-second)
	assert.Equal(t, int32(1), rs.calls.Load())
}

func TestRefresher_SendsCookies(t *testing.T) {
	rs := newRefreshServer(t, http.StatusOK, `{"access_token":"cookie-ok"}`)
	r, _, _, client := newTestRefresher(t, rs.URL)

	u, err := url.Parse(rs.URL)
	require.NoError(t, err)
	client.Jar().SetCookies(u, []*http.Cookie{{Name: "refresh_token", Value: "rt-1", Path: "/"}})

	require.Equal(t, "cookie-ok", r.Refresh(context.Background()))
	assert.Equal(t, "rt-1", rs.cookies.Load())
}
