package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spigell/aspiro/internal/utils"
)

const errorBodyLimit = 200

var (
	// ErrAuth is returned before any network call when no bearer token is available.
	ErrAuth = errors.New("no valid session token")

	// ErrEmptyContent is returned when a stream finished without a single content token.
	ErrEmptyContent = errors.New("stream completed without content")
)

// HTTPError reports a non-2xx response.
type HTTPError struct {
	StatusCode int
	// Message is the backend's error message when the body carried one.
	Message string
	// Body is a shortened copy of the response body.
	Body string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
	}
	if e.Body != "" {
		return fmt.Sprintf("http %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// NetworkError reports a failure to reach the backend or to read its response.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func newHTTPError(resp *http.Response) *HTTPError {
	herr := &HTTPError{StatusCode: resp.StatusCode}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil || len(data) == 0 {
		return herr
	}

	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &payload) == nil {
		herr.Message = strings.TrimSpace(payload.Error)
		if herr.Message == "" {
			herr.Message = strings.TrimSpace(payload.Message)
		}
	}

	herr.Body = utils.TruncateForLog(string(data), errorBodyLimit)
	return herr
}
