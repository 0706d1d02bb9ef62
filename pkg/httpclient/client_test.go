package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/EcommerceGo/webclient/pkg/errors"
)

func newGet(t *testing.T, rawURL string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, rawURL, http.NoBody)
	require.NoError(t, err)
	return req
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 100, cfg.MaxConnsPerHost)
	assert.Nil(t, cfg.Jar)
}

func TestNew_CreatesJarWhenMissing(t *testing.T) {
	client := New(DefaultConfig())
	assert.NotNil(t, client.Jar())
}

func TestNew_SharesProvidedJar(t *testing.T) {
	jar := NewCookieJar()
	a := New(Config{Timeout: time.Second, MaxConnsPerHost: 1, Jar: jar})
	b := New(Config{Timeout: time.Minute, MaxConnsPerHost: 1, Jar: jar})
	assert.Same(t, a.Jar(), b.Jar())
}

func TestDo_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := New(Config{Timeout: 5 * time.Second, MaxConnsPerHost: 10})

	resp, err := client.Do(context.Background(), newGet(t, server.URL))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "ok")
}

func TestDo_DoesNotRetry5xx(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := New(Config{Timeout: 5 * time.Second, MaxConnsPerHost: 10})

	resp, err := client.Do(context.Background(), newGet(t, server.URL))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestDo_SendsCookiesFromJar(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/login" {
			http.SetCookie(w, &http.Cookie{Name: "refresh_token", Value: "r-1", Path: "/"})
			return
		}
		c, err := r.Cookie("refresh_token")
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "r-1", c.Value)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := New(Config{Timeout: 5 * time.Second, MaxConnsPerHost: 10})

	resp, err := client.Do(context.Background(), newGet(t, server.URL+"/login"))
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = client.Do(context.Background(), newGet(t, server.URL+"/refresh"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	u, _ := url.Parse(server.URL)
	assert.Len(t, client.Jar().Cookies(u), 1)
}

func TestDo_NetworkErrorIsTagged(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := server.URL
	server.Close()

	client := New(Config{Timeout: 2 * time.Second, MaxConnsPerHost: 10})

	resp, err := client.Do(context.Background(), newGet(t, addr))
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.True(t, apperrors.IsNetwork(err))
}

func TestDo_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(Config{Timeout: 5 * time.Second, MaxConnsPerHost: 10})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Do(ctx, newGet(t, server.URL))
	require.Error(t, err)
	assert.True(t, apperrors.IsNetwork(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
