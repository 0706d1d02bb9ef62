package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/utafrali/EcommerceGo/webclient/pkg/errors"
)

// errorBody covers both backend error shapes: the flat {"message","error"}
// body and the storefront envelope {"error":{"code","message"}}.
type errorBody struct {
	Message string          `json:"message"`
	Error   json.RawMessage `json:"error"`
}

// ErrorMessage extracts user-facing text from an error body. The first
// non-empty of message, error (string) and error.message wins; otherwise a
// generic status-coded message is synthesized.
func ErrorMessage(status int, body []byte) string {
	var b errorBody
	if json.Unmarshal(body, &b) == nil {
		if msg := strings.TrimSpace(b.Message); msg != "" {
			return msg
		}
		if len(b.Error) > 0 {
			var s string
			if json.Unmarshal(b.Error, &s) == nil && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
			var nested struct {
				Message string `json:"message"`
			}
			if json.Unmarshal(b.Error, &nested) == nil && strings.TrimSpace(nested.Message) != "" {
				return strings.TrimSpace(nested.Message)
			}
		}
	}
	return fmt.Sprintf("Request failed (%d)", status)
}

// ParseResponseError reads the body of a non-2xx HTTP response and translates
// it into an AppError carrying the status and the normalized message.
//
// The caller should only invoke this when resp.StatusCode indicates an error
// (i.e., not 2xx). The response body is fully consumed and closed.
func ParseResponseError(resp *http.Response) error {
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1 MB limit
	if err != nil {
		return apperrors.FromStatus(resp.StatusCode, fmt.Sprintf("Request failed (%d)", resp.StatusCode))
	}

	return apperrors.FromStatus(resp.StatusCode, ErrorMessage(resp.StatusCode, bodyBytes))
}

// IsSuccess reports whether status is 2xx.
func IsSuccess(status int) bool {
	return status >= 200 && status < 300
}

// DrainAndClose discards the rest of the body so the connection can be reused.
func DrainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	_ = resp.Body.Close()
}
