package orchestrator_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/aspiro/internal/analysis"
	"github.com/spigell/aspiro/internal/auth"
	"github.com/spigell/aspiro/internal/orchestrator"
	"github.com/spigell/aspiro/internal/transport"
)

type fakeFeature struct {
	structured bool
	prepare    func(ctx context.Context, in string) (any, error)

	mu     sync.Mutex
	inputs []string
}

func (f *fakeFeature) Name() string     { return "fake" }
func (f *fakeFeature) Endpoint() string { return "/api/fake" }
func (f *fakeFeature) Structured() bool { return f.structured }

func (f *fakeFeature) Prepare(ctx context.Context, in string) (any, error) {
	f.mu.Lock()
	f.inputs = append(f.inputs, in)
	f.mu.Unlock()

	if f.prepare != nil {
		return f.prepare(ctx, in)
	}
	return map[string]string{"input": in}, nil
}

func (f *fakeFeature) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.inputs...)
}

type streamFunc func(ctx context.Context, endpoint string, body any, onChunk transport.ChunkFunc) (string, error)

func (f streamFunc) Stream(ctx context.Context, endpoint string, body any, onChunk transport.ChunkFunc) (string, error) {
	return f(ctx, endpoint, body, onChunk)
}

// emit replays deltas through onChunk the way the transport does.
func emit(onChunk transport.ChunkFunc, deltas ...string) string {
	var acc strings.Builder
	for _, d := range deltas {
		acc.WriteString(d)
		onChunk(d, acc.String())
	}
	return acc.String()
}

type recorder struct {
	mu     sync.Mutex
	states []orchestrator.State
}

func record[In any](o *orchestrator.Orchestrator[In]) *recorder {
	r := &recorder{}
	o.Subscribe(func(s orchestrator.State) {
		r.mu.Lock()
		r.states = append(r.states, s)
		r.mu.Unlock()
	})
	return r
}

func (r *recorder) all() []orchestrator.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]orchestrator.State(nil), r.states...)
}

func (r *recorder) phases() []orchestrator.Phase {
	var phases []orchestrator.Phase
	for _, s := range r.all() {
		if len(phases) == 0 || phases[len(phases)-1] != s.Phase {
			phases = append(phases, s.Phase)
		}
	}
	return phases
}

func sseHandler(deltas ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, d := range deltas {
			payload, _ := json.Marshal(map[string]string{"content": d})
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}
}

func TestRun_StructuredStreamOverHTTP(t *testing.T) {
	analysisText := strings.Repeat("Strong candidate with a clear record. ", 4)
	deltas := []string{
		`{"analysis": "`,
		analysisText[:60],
		analysisText[60:],
		`", "suggestions": [{"role": "Data Scientist", "match": 88, "description": "Great fit"}`,
		`, {"role": "PM", "match": 70`,
		`, "description": "Good"}]}`,
	}

	srv := httptest.NewServer(sseHandler(deltas...))
	t.Cleanup(srv.Close)

	client := transport.New(auth.StaticToken("t"), transport.WithBaseURL(srv.URL))
	feature := &fakeFeature{structured: true}
	o := orchestrator.New[string](feature, client)
	rec := record(o)

	st, err := o.Run(context.Background(), "input")
	require.NoError(t, err)

	assert.Equal(t, orchestrator.PhaseIdle, st.Phase)
	assert.False(t, st.IsStreaming)
	assert.False(t, st.Incomplete)
	assert.Equal(t, analysis.ResolutionParsed, st.Resolution)
	require.NotNil(t, st.Result)
	assert.Equal(t, analysisText, st.Result.Analysis)
	require.Len(t, st.Result.Suggestions, 2)
	assert.Equal(t, strings.Join(deltas, ""), st.Text)

	assert.Equal(t, []orchestrator.Phase{
		orchestrator.PhasePreparing,
		orchestrator.PhaseStreaming,
		orchestrator.PhaseFinalizing,
		orchestrator.PhaseIdle,
	}, rec.phases())

	partials := 0
	for _, s := range rec.all() {
		if s.Phase != orchestrator.PhaseStreaming || s.Result == nil {
			continue
		}
		partials++
		assert.True(t, s.IsStreaming)
		assert.GreaterOrEqual(t, utf8.RuneCountInString(s.Text), orchestrator.DefaultMinPartialLength)
		assert.NotEmpty(t, s.Result.Analysis)
	}
	assert.Positive(t, partials)

	assert.Equal(t, st, o.State())
}

func TestRun_MinPartialLengthIsConfigurable(t *testing.T) {
	stream := streamFunc(func(_ context.Context, _ string, _ any, onChunk transport.ChunkFunc) (string, error) {
		return emit(onChunk, `{"analysis": "Hi`, `"}`), nil
	})

	gated := orchestrator.New[string](&fakeFeature{structured: true}, stream)
	gatedRec := record(gated)
	_, err := gated.Run(context.Background(), "x")
	require.NoError(t, err)

	for _, s := range gatedRec.all() {
		if s.Phase == orchestrator.PhaseStreaming {
			assert.Nil(t, s.Result, "short prefix must not publish a partial result")
		}
	}

	open := orchestrator.New[string](&fakeFeature{structured: true}, stream, orchestrator.WithMinPartialLength(1))
	openRec := record(open)
	_, err = open.Run(context.Background(), "x")
	require.NoError(t, err)

	var first *analysis.Result
	for _, s := range openRec.all() {
		if s.Phase == orchestrator.PhaseStreaming && s.Result != nil {
			first = s.Result
			break
		}
	}
	require.NotNil(t, first)
	assert.Equal(t, "Hi", first.Analysis)
}

func TestRun_UnstructuredPublishesText(t *testing.T) {
	stream := streamFunc(func(_ context.Context, _ string, _ any, onChunk transport.ChunkFunc) (string, error) {
		return emit(onChunk, "Hello", " World"), nil
	})

	o := orchestrator.New[string](&fakeFeature{}, stream)
	rec := record(o)

	st, err := o.Run(context.Background(), "hi")
	require.NoError(t, err)

	assert.Nil(t, st.Result)
	assert.Equal(t, "Hello World", st.Text)

	var texts []string
	for _, s := range rec.all() {
		if s.Phase == orchestrator.PhaseStreaming && s.Text != "" {
			texts = append(texts, s.Text)
		}
	}
	assert.Equal(t, []string{"Hello", "Hello World"}, texts)
}

func TestRun_RawTextIsFlaggedIncomplete(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	text := "Some free-form text without any JSON braces."
	stream := streamFunc(func(_ context.Context, _ string, _ any, onChunk transport.ChunkFunc) (string, error) {
		return emit(onChunk, text), nil
	})

	o := orchestrator.New[string](&fakeFeature{structured: true}, stream, orchestrator.WithLogger(zap.New(core)))

	st, err := o.Run(context.Background(), "x")
	require.NoError(t, err)

	require.NotNil(t, st.Result)
	assert.Equal(t, analysis.Result{Analysis: text}, *st.Result)
	assert.Equal(t, analysis.ResolutionRawText, st.Resolution)
	assert.True(t, st.Incomplete)
	assert.Equal(t, 1, logs.FilterMessage("response may be incomplete").Len())
}

func TestRun_PrepareFailureSkipsTransport(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want orchestrator.Kind
	}{
		{name: "validation", err: fmt.Errorf("%w: target role is required", orchestrator.ErrInvalidInput), want: orchestrator.KindValidation},
		{name: "upload", err: errors.New("upload failed"), want: orchestrator.KindPreparation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			stream := streamFunc(func(context.Context, string, any, transport.ChunkFunc) (string, error) {
				called = true
				return "", nil
			})
			feature := &fakeFeature{
				structured: true,
				prepare: func(context.Context, string) (any, error) {
					return nil, tt.err
				},
			}

			o := orchestrator.New[string](feature, stream)
			rec := record(o)

			st, err := o.Run(context.Background(), "x")
			require.ErrorIs(t, err, tt.err)
			assert.False(t, called)
			assert.Equal(t, tt.want, st.Kind)
			assert.Equal(t, orchestrator.PhaseIdle, st.Phase)
			assert.Nil(t, st.Result)
			assert.Equal(t, []orchestrator.Phase{orchestrator.PhasePreparing, orchestrator.PhaseIdle}, rec.phases())
		})
	}
}

func TestRun_TransportErrorsAndRetry(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want orchestrator.Kind
	}{
		{name: "auth", err: transport.ErrAuth, want: orchestrator.KindAuth},
		{name: "network", err: &transport.NetworkError{Op: "read", Err: errors.New("reset")}, want: orchestrator.KindNetwork},
		{name: "http", err: &transport.HTTPError{StatusCode: 503, Message: "busy"}, want: orchestrator.KindHTTP},
		{name: "empty", err: transport.ErrEmptyContent, want: orchestrator.KindEmptyContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			stream := streamFunc(func(_ context.Context, _ string, _ any, onChunk transport.ChunkFunc) (string, error) {
				calls++
				if calls == 1 {
					return "", tt.err
				}
				return emit(onChunk, `{"analysis": "ok"}`), nil
			})
			feature := &fakeFeature{structured: true}
			o := orchestrator.New[string](feature, stream)

			st, err := o.Run(context.Background(), "same input")
			require.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.want, st.Kind)
			assert.False(t, st.IsStreaming)
			assert.Equal(t, st, o.State())

			st, err = o.Retry(context.Background())
			require.NoError(t, err)
			assert.Nil(t, st.Err)
			require.NotNil(t, st.Result)
			assert.Equal(t, "ok", st.Result.Analysis)
			assert.Equal(t, []string{"same input", "same input"}, feature.seen())
		})
	}
}

func TestRetry_WithoutRun(t *testing.T) {
	o := orchestrator.New[string](&fakeFeature{}, streamFunc(nil))

	_, err := o.Retry(context.Background())
	require.ErrorIs(t, err, orchestrator.ErrNoInput)
}

// blockingStream emits one delta, signals started and waits for
// cancellation, resolving to an empty text like the transport does.
func blockingStream(started chan<- string) streamFunc {
	return func(ctx context.Context, _ string, body any, onChunk transport.ChunkFunc) (string, error) {
		emit(onChunk, "partial")
		started <- body.(map[string]string)["input"]
		<-ctx.Done()
		return "", nil
	}
}

func TestAbort_IsSilent(t *testing.T) {
	started := make(chan string, 1)
	o := orchestrator.New[string](&fakeFeature{}, blockingStream(started))
	rec := record(o)

	type outcome struct {
		st  orchestrator.State
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		st, err := o.Run(context.Background(), "x")
		done <- outcome{st, err}
	}()

	<-started
	o.Abort()
	res := <-done

	require.NoError(t, res.err)
	assert.True(t, res.st.Aborted)
	assert.Nil(t, res.st.Result)

	states := rec.all()
	for _, s := range states {
		assert.Nil(t, s.Err)
	}
	last := states[len(states)-1]
	assert.Equal(t, orchestrator.PhaseIdle, last.Phase)
	assert.True(t, last.Aborted)
	assert.Empty(t, last.Text)

	// No live session remains.
	o.Abort()
	assert.Len(t, rec.all(), len(states))
}

func TestRun_CancelledContextIsSilent(t *testing.T) {
	started := make(chan string, 1)
	o := orchestrator.New[string](&fakeFeature{}, blockingStream(started))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	st, err := o.Run(ctx, "x")
	require.NoError(t, err)
	assert.True(t, st.Aborted)
	assert.Equal(t, st, o.State())
}

func TestRun_SupersedesLiveSession(t *testing.T) {
	started := make(chan string, 1)
	first := blockingStream(started)
	stream := streamFunc(func(ctx context.Context, endpoint string, body any, onChunk transport.ChunkFunc) (string, error) {
		if body.(map[string]string)["input"] == "first" {
			return first(ctx, endpoint, body, onChunk)
		}
		return emit(onChunk, "second answer"), nil
	})

	o := orchestrator.New[string](&fakeFeature{}, stream)
	rec := record(o)

	firstDone := make(chan orchestrator.State, 1)
	go func() {
		st, _ := o.Run(context.Background(), "first")
		firstDone <- st
	}()
	<-started

	second, err := o.Run(context.Background(), "second")
	require.NoError(t, err)
	assert.Equal(t, "second answer", second.Text)

	firstState := <-firstDone
	assert.True(t, firstState.Aborted)
	assert.NotEqual(t, firstState.SessionID, second.SessionID)

	states := rec.all()
	secondStart := -1
	for i, s := range states {
		if s.SessionID == second.SessionID {
			secondStart = i
			break
		}
	}
	require.GreaterOrEqual(t, secondStart, 0)
	for _, s := range states[secondStart:] {
		assert.Equal(t, second.SessionID, s.SessionID, "superseded session published after replacement")
	}
	assert.Equal(t, second, o.State())
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	stream := streamFunc(func(_ context.Context, _ string, _ any, onChunk transport.ChunkFunc) (string, error) {
		return emit(onChunk, "a"), nil
	})
	o := orchestrator.New[string](&fakeFeature{}, stream)

	count := 0
	unsubscribe := o.Subscribe(func(orchestrator.State) { count++ })

	_, err := o.Run(context.Background(), "x")
	require.NoError(t, err)
	seen := count
	assert.Positive(t, seen)

	unsubscribe()
	_, err = o.Run(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, seen, count)
}

func TestObserversReceiveCopies(t *testing.T) {
	stream := streamFunc(func(_ context.Context, _ string, _ any, onChunk transport.ChunkFunc) (string, error) {
		return emit(onChunk, `{"analysis": "ok", "overallStrengths": ["a"]}`), nil
	})
	o := orchestrator.New[string](&fakeFeature{structured: true}, stream)
	o.Subscribe(func(s orchestrator.State) {
		if s.Result != nil && len(s.Result.OverallStrengths) > 0 {
			s.Result.OverallStrengths[0] = "mutated"
		}
	})

	_, err := o.Run(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, o.State().Result.OverallStrengths)
}
