package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/EcommerceGo/webclient/internal/imageopt"
	"github.com/utafrali/EcommerceGo/webclient/internal/media"
	"github.com/utafrali/EcommerceGo/webclient/internal/session"
	"github.com/utafrali/EcommerceGo/webclient/internal/testutil"
	"github.com/utafrali/EcommerceGo/webclient/pkg/health"
)

// --- mocks ---

type mockSession struct {
	mock.Mock
}

func (m *mockSession) Login(ctx context.Context, email, password string, remember bool) error {
	args := m.Called(ctx, email, password, remember)
	return args.Error(0)
}

func (m *mockSession) Logout(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockSession) State() session.State {
	args := m.Called()
	return args.Get(0).(session.State)
}

func (m *mockSession) Message() string {
	args := m.Called()
	return args.String(0)
}

type mockUploader struct {
	mock.Mock
}

func (m *mockUploader) Upload(ctx context.Context, in media.UploadInput, onProgress func(int)) (*media.MediaFile, error) {
	args := m.Called(ctx, in, onProgress)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*media.MediaFile), args.Error(1)
}

type optimizerFunc func(ctx context.Context, f *imageopt.File) *imageopt.File

func (fn optimizerFunc) Optimize(ctx context.Context, f *imageopt.File) *imageopt.File {
	return fn(ctx, f)
}

type staticTokens struct {
	token, scope string
}

func (s staticTokens) Lookup(context.Context) (string, string) { return s.token, s.scope }

type staticHealth health.Response

func (s staticHealth) Check(context.Context) health.Response { return health.Response(s) }

func newCLI(deps Deps, stdin string) (*CLI, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return New(deps, strings.NewReader(stdin), out), out
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

// --- dispatch ---

func TestRun_Usage(t *testing.T) {
	c, out := newCLI(Deps{}, "")

	err := c.Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrUsage)
	assert.Contains(t, out.String(), "usage: webclient")

	err = c.Run(context.Background(), []string{"frobnicate"})
	assert.ErrorIs(t, err, ErrUsage)
	assert.Contains(t, err.Error(), "frobnicate")

	assert.NoError(t, c.Run(context.Background(), []string{"help"}))
}

// --- login / logout ---

func TestLogin_PasswordFromStdin(t *testing.T) {
	sess := new(mockSession)
	sess.On("Login", mock.Anything, "admin@example.com", "s3cret", true).Return(nil).Once()
	c, out := newCLI(Deps{Session: sess}, "s3cret\n")

	err := c.Run(context.Background(), []string{"login", "-remember", "-password-stdin", "admin@example.com"})
	require.NoError(t, err)

	sess.AssertExpectations(t)
	assert.Contains(t, out.String(), "Logged in as admin@example.com")
}

func TestLogin_PromptsForPassword(t *testing.T) {
	sess := new(mockSession)
	sess.On("Login", mock.Anything, "admin@example.com", "typed", false).Return(nil).Once()
	c, out := newCLI(Deps{Session: sess}, "")
	c.readPassword = func(int) ([]byte, error) { return []byte("typed"), nil }

	require.NoError(t, c.Run(context.Background(), []string{"login", "admin@example.com"}))

	sess.AssertExpectations(t)
	assert.Contains(t, out.String(), "Password: ")
}

func TestLogin_Errors(t *testing.T) {
	t.Run("missing email", func(t *testing.T) {
		c, _ := newCLI(Deps{Session: new(mockSession)}, "")
		assert.ErrorIs(t, c.Run(context.Background(), []string{"login"}), ErrUsage)
	})

	t.Run("unknown flag", func(t *testing.T) {
		c, _ := newCLI(Deps{Session: new(mockSession)}, "")
		assert.ErrorIs(t, c.Run(context.Background(), []string{"login", "-nope", "a@b.c"}), ErrUsage)
	})

	t.Run("prompt fails", func(t *testing.T) {
		c, _ := newCLI(Deps{Session: new(mockSession)}, "")
		c.readPassword = func(int) ([]byte, error) { return nil, errors.New("not a terminal") }
		err := c.Run(context.Background(), []string{"login", "a@b.c"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "read password")
	})

	t.Run("rejected", func(t *testing.T) {
		sess := new(mockSession)
		sess.On("Login", mock.Anything, "a@b.c", "bad", false).Return(errors.New("invalid email or password")).Once()
		c, out := newCLI(Deps{Session: sess}, "bad")
		err := c.Run(context.Background(), []string{"login", "-password-stdin", "a@b.c"})
		assert.EqualError(t, err, "invalid email or password")
		assert.NotContains(t, out.String(), "Logged in")
	})
}

func TestLogout(t *testing.T) {
	sess := new(mockSession)
	sess.On("Logout", mock.Anything).Return(nil).Once()
	c, out := newCLI(Deps{Session: sess}, "")

	require.NoError(t, c.Run(context.Background(), []string{"logout"}))
	sess.AssertExpectations(t)
	assert.Contains(t, out.String(), "Logged out")
}

// --- status ---

func TestStatus_LoggedOut(t *testing.T) {
	sess := new(mockSession)
	sess.On("State").Return(session.StateLoggedOut)
	sess.On("Message").Return("Your session has expired. Please log in again.")
	c, out := newCLI(Deps{Session: sess, Tokens: staticTokens{}}, "")

	require.NoError(t, c.Run(context.Background(), []string{"status"}))
	assert.Contains(t, out.String(), "state:   logged_out")
	assert.Contains(t, out.String(), "message: Your session has expired.")
	assert.NotContains(t, out.String(), "scope:")
}

func TestStatus_Authenticated(t *testing.T) {
	token, err := testutil.NewTokenIssuer("k").Access("user-7", "u@example.com", time.Hour)
	require.NoError(t, err)

	sess := new(mockSession)
	sess.On("State").Return(session.StateAuthenticated)
	sess.On("Message").Return("")
	c, out := newCLI(Deps{Session: sess, Tokens: staticTokens{token: token, scope: "durable"}}, "")

	require.NoError(t, c.Run(context.Background(), []string{"status"}))
	assert.Contains(t, out.String(), "state:   authenticated")
	assert.Contains(t, out.String(), "scope:   durable")
	assert.Contains(t, out.String(), "subject: user-7")
	assert.Contains(t, out.String(), "expires: ")
}

// --- upload ---

func TestUpload(t *testing.T) {
	path := writeFile(t, "front.PNG", []byte("png bytes"))

	up := new(mockUploader)
	up.On("Upload", mock.Anything, media.UploadInput{
		OwnerID:     "prod-1",
		OwnerType:   media.OwnerTypeProduct,
		FileName:    "front.PNG",
		ContentType: "image/png",
		AltText:     "front",
		Data:        []byte("png bytes"),
	}, mock.Anything).
		Run(func(args mock.Arguments) {
			progress := args.Get(2).(func(int))
			progress(40)
			progress(100)
		}).
		Return(&media.MediaFile{ID: "m-1", Size: 9, URL: "http://cdn/m-1"}, nil).Once()

	c, out := newCLI(Deps{Uploader: up}, "")
	err := c.Run(context.Background(), []string{"upload", "-owner-id", "prod-1", "-alt", "front", path})
	require.NoError(t, err)

	up.AssertExpectations(t)
	assert.Contains(t, out.String(), "Uploading...  40%")
	assert.Contains(t, out.String(), "Uploading... 100%")
	assert.Contains(t, out.String(), "Uploaded m-1 (9 bytes) http://cdn/m-1")
}

func TestUpload_Errors(t *testing.T) {
	t.Run("missing file argument", func(t *testing.T) {
		c, _ := newCLI(Deps{Uploader: new(mockUploader)}, "")
		assert.ErrorIs(t, c.Run(context.Background(), []string{"upload", "-owner-id", "x"}), ErrUsage)
	})

	t.Run("unreadable file", func(t *testing.T) {
		c, _ := newCLI(Deps{Uploader: new(mockUploader)}, "")
		err := c.Run(context.Background(), []string{"upload", filepath.Join(t.TempDir(), "nope.png")})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "read")
	})

	t.Run("upload fails", func(t *testing.T) {
		up := new(mockUploader)
		up.On("Upload", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("session expired")).Once()
		c, _ := newCLI(Deps{Uploader: up}, "")
		err := c.Run(context.Background(), []string{"upload", "-owner-id", "x", writeFile(t, "a.jpg", []byte("j"))})
		assert.EqualError(t, err, "session expired")
	})
}

// --- optimize ---

func TestOptimize(t *testing.T) {
	in := writeFile(t, "big.jpg", []byte("original image bytes"))
	out := filepath.Join(t.TempDir(), "small.webp")

	opt := optimizerFunc(func(_ context.Context, f *imageopt.File) *imageopt.File {
		assert.Equal(t, "image/jpeg", f.ContentType)
		return &imageopt.File{Name: "big.webp", ContentType: "image/webp", Data: []byte("tiny")}
	})
	c, stdout := newCLI(Deps{Optimizer: opt}, "")

	require.NoError(t, c.Run(context.Background(), []string{"optimize", in, out}))

	written, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, []byte("tiny"), written)
	assert.Contains(t, stdout.String(), "20 -> 4 bytes (image/webp)")
}

func TestOptimize_KeepsOriginal(t *testing.T) {
	in := writeFile(t, "icon.gif", []byte("gif"))
	out := filepath.Join(t.TempDir(), "icon-out.gif")

	opt := optimizerFunc(func(_ context.Context, f *imageopt.File) *imageopt.File { return f })
	c, stdout := newCLI(Deps{Optimizer: opt}, "")

	require.NoError(t, c.Run(context.Background(), []string{"optimize", in, out}))
	written, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, []byte("gif"), written)
	assert.Contains(t, stdout.String(), "kept original (3 bytes)")
}

func TestOptimize_Usage(t *testing.T) {
	c, _ := newCLI(Deps{}, "")
	assert.ErrorIs(t, c.Run(context.Background(), []string{"optimize", "only-one"}), ErrUsage)
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name    string
		resp    health.Response
		wantErr bool
		lines   []string
	}{
		{
			name: "all up",
			resp: health.Response{Status: health.StatusUp, Checks: map[string]health.CheckResult{
				"redis": {Status: health.StatusUp, Critical: true, Duration: 2 * time.Millisecond},
				"api":   {Status: health.StatusUp, Critical: true, Duration: 12 * time.Millisecond},
			}},
			lines: []string{
				"api          up   12ms",
				"redis        up   2ms",
				"overall: up",
			},
		},
		{
			name: "optional down",
			resp: health.Response{Status: health.StatusDegraded, Checks: map[string]health.CheckResult{
				"api":   {Status: health.StatusUp, Critical: true},
				"kafka": {Status: health.StatusDown, Error: "dial 127.0.0.1:1: refused"},
			}},
			lines: []string{
				"api          up   0s",
				"kafka        down 0s (optional): dial 127.0.0.1:1: refused",
				"overall: degraded",
			},
		},
		{
			name: "critical down",
			resp: health.Response{Status: health.StatusDown, Checks: map[string]health.CheckResult{
				"api": {Status: health.StatusDown, Critical: true, Error: "probe: status 503"},
			}},
			wantErr: true,
			lines: []string{
				"api          down 0s: probe: status 503",
				"overall: down",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, out := newCLI(Deps{Health: staticHealth(tt.resp)}, "")

			err := c.Run(context.Background(), []string{"check"})
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnhealthy)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, strings.Join(tt.lines, "\n")+"\n", out.String())
		})
	}
}
