package transport

import (
	"context"
	"io"
	"math"
	"net/http"

	"github.com/utafrali/EcommerceGo/webclient/pkg/httpclient"
)

// Execution modes.
const (
	ModeFetch  = "fetch"
	ModeUpload = "upload"
)

// ProgressFunc receives upload progress as a percentage of bytes sent.
type ProgressFunc func(percent int)

// Sender performs one HTTP exchange. Progress may be nil, and senders that
// cannot observe the body ignore it.
type Sender interface {
	Send(ctx context.Context, req *http.Request, progress ProgressFunc) (*http.Response, error)
}

// FetchSender sends requests without progress reporting.
type FetchSender struct {
	client httpclient.Doer
}

// NewFetchSender creates a sender for simple mode.
func NewFetchSender(client httpclient.Doer) *FetchSender {
	return &FetchSender{client: client}
}

func (s *FetchSender) Send(ctx context.Context, req *http.Request, _ ProgressFunc) (*http.Response, error) {
	return s.client.Do(ctx, req)
}

// UploadSender reports progress while the request body is read by the
// transport. Progress is only reported when the content length is known.
type UploadSender struct {
	client httpclient.Doer
}

// NewUploadSender creates a sender for upload mode.
func NewUploadSender(client httpclient.Doer) *UploadSender {
	return &UploadSender{client: client}
}

func (s *UploadSender) Send(ctx context.Context, req *http.Request, progress ProgressFunc) (*http.Response, error) {
	if req.Body != nil && req.Body != http.NoBody {
		req.Body = &progressReader{
			ReadCloser: req.Body,
			total:      req.ContentLength,
			fn:         progress,
		}
	}
	return s.client.Do(ctx, req)
}

type progressReader struct {
	io.ReadCloser
	total int64
	sent  int64
	fn    ProgressFunc
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	if n > 0 {
		r.sent += int64(n)
		uploadBytesTotal.Add(float64(n))
		if r.fn != nil && r.total > 0 {
			r.fn(percent(r.sent, r.total))
		}
	}
	return n, err
}

func percent(done, total int64) int {
	return clamp(int(math.Round(100*float64(done)/float64(total))), 0, 100)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
