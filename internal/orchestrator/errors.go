package orchestrator

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spigell/aspiro/internal/transport"
)

var (
	// ErrInvalidInput marks preparation failures caused by the caller's input.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNoInput is returned by Retry before any Run.
	ErrNoInput = errors.New("nothing to retry")
)

// Kind classifies the error that ended a session.
type Kind int

const (
	KindNone Kind = iota
	KindAuth
	KindNetwork
	KindHTTP
	KindEmptyContent
	KindValidation
	KindPreparation
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindAuth:
		return "auth"
	case KindNetwork:
		return "network"
	case KindHTTP:
		return "http"
	case KindEmptyContent:
		return "empty_content"
	case KindValidation:
		return "validation"
	case KindPreparation:
		return "preparation"
	default:
		return "unknown"
	}
}

// Retryable reports whether repeating the same input may succeed.
func (k Kind) Retryable() bool {
	switch k {
	case KindNetwork, KindHTTP, KindEmptyContent, KindPreparation:
		return true
	default:
		return false
	}
}

// Classify maps err onto a Kind.
func Classify(err error) Kind {
	var (
		httpErr *transport.HTTPError
		netErr  *transport.NetworkError
	)

	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, transport.ErrAuth):
		return KindAuth
	case errors.Is(err, transport.ErrEmptyContent):
		return KindEmptyContent
	case errors.As(err, &httpErr):
		return KindHTTP
	case errors.As(err, &netErr):
		return KindNetwork
	case errors.Is(err, ErrInvalidInput):
		return KindValidation
	default:
		return KindPreparation
	}
}

// userFacing is implemented by errors that carry their own banner text.
type userFacing interface {
	UserMessage() string
}

// UserMessage renders err as a short banner text.
func UserMessage(err error) string {
	var uf userFacing
	if errors.As(err, &uf) {
		return uf.UserMessage()
	}

	switch Classify(err) {
	case KindNone:
		return ""
	case KindAuth:
		return "You are not signed in. Provide an access token and try again."
	case KindNetwork:
		return "Could not reach the coaching service. Check your connection and retry."
	case KindHTTP:
		var httpErr *transport.HTTPError
		errors.As(err, &httpErr)
		msg := httpErr.Message
		if msg == "" {
			msg = http.StatusText(httpErr.StatusCode)
		}
		return fmt.Sprintf("The coaching service failed (%d): %s", httpErr.StatusCode, msg)
	case KindEmptyContent:
		return "The coaching service returned an empty response. Please retry."
	case KindValidation:
		return err.Error()
	default:
		return fmt.Sprintf("Could not prepare the request: %v", err)
	}
}
