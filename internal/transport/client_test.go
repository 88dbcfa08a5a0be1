package transport_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/aspiro/internal/auth"
	"github.com/spigell/aspiro/internal/transport"
)

func chunkedHandler(chunks ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)
		for _, c := range chunks {
			fmt.Fprint(w, c)
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

func newClient(t *testing.T, h http.Handler, tokens auth.TokenProvider) *transport.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return transport.New(tokens, transport.WithBaseURL(srv.URL))
}

func TestStream_SplitFrames(t *testing.T) {
	t.Parallel()

	var gotAuth, gotMethod, gotPath string
	var gotBody map[string]string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotMethod = r.Method
		gotPath = r.URL.Path
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)
		chunkedHandler(
			`data: {"content":"Hello"}`+"\n\n"+`data: {"content":" Wor`,
			`ld"}`+"\n\ndata: [DONE]\n\n",
		)(w, r)
	})

	client := newClient(t, handler, auth.StaticToken("secret-token"))

	var deltas []string
	text, err := client.Stream(context.Background(), "/api/explore-path", map[string]string{"careerField": "Data"}, func(delta, _ string) {
		deltas = append(deltas, delta)
	})
	require.NoError(t, err)

	assert.Equal(t, "Hello World", text)
	assert.Equal(t, []string{"Hello", " World"}, deltas)
	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/api/explore-path", gotPath)
	assert.Equal(t, map[string]string{"careerField": "Data"}, gotBody)
}

func TestStream_NoTokenFailsBeforeRequest(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
	}), auth.StaticToken(""))

	_, err := client.Stream(context.Background(), "/api/chat", nil, nil)
	assert.ErrorIs(t, err, transport.ErrAuth)
	assert.Zero(t, hits.Load())

	_, err = transport.New(nil).Stream(context.Background(), "http://127.0.0.1:1/api/chat", nil, nil)
	assert.ErrorIs(t, err, transport.ErrAuth)
}

func TestStream_HTTPError(t *testing.T) {
	t.Parallel()

	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"error":"AI service is not configured or unavailable."}`)
	}), auth.StaticToken("t"))

	_, err := client.Stream(context.Background(), "/api/chat", nil, nil)

	var herr *transport.HTTPError
	require.True(t, errors.As(err, &herr))
	assert.Equal(t, http.StatusServiceUnavailable, herr.StatusCode)
	assert.Equal(t, "AI service is not configured or unavailable.", herr.Message)
}

func TestStream_EmptyContent(t *testing.T) {
	t.Parallel()

	client := newClient(t, chunkedHandler("data: {\"content\":\"\"}\n\n", "data: [DONE]\n\n"), auth.StaticToken("t"))

	_, err := client.Stream(context.Background(), "/api/chat", nil, nil)
	assert.ErrorIs(t, err, transport.ErrEmptyContent)
}

func TestStream_NetworkError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := transport.New(auth.StaticToken("t"), transport.WithBaseURL(url))
	_, err := client.Stream(context.Background(), "/api/chat", nil, nil)

	var nerr *transport.NetworkError
	assert.True(t, errors.As(err, &nerr))
}

func TestStream_AbortResolvesEmpty(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "data: {\"content\":\"partial\"}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	})
	client := newClient(t, handler, auth.StaticToken("t"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var deltas []string
	text, err := client.Stream(ctx, "/api/chat", nil, func(delta, _ string) {
		deltas = append(deltas, delta)
		cancel()
	})

	assert.NoError(t, err)
	assert.Equal(t, "", text)
	assert.Equal(t, []string{"partial"}, deltas)
}

func TestStream_AbsoluteEndpoint(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(chunkedHandler("data: {\"content\":\"ok\"}\n\n"))
	t.Cleanup(srv.Close)

	client := transport.New(auth.StaticToken("t"), transport.WithBaseURL("http://unused.invalid"))
	text, err := client.Stream(context.Background(), srv.URL+"/api/chat", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
}
