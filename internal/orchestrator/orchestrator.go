// Package orchestrator sequences preparation, streaming and result
// resolution for one coaching feature and publishes its state to observers.
package orchestrator

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/aspiro/internal/analysis"
	"github.com/spigell/aspiro/internal/logger"
	"github.com/spigell/aspiro/internal/transport"
	"github.com/spigell/aspiro/internal/utils"
)

// DefaultMinPartialLength is the number of runes a structured response must
// reach before partial results are published.
const DefaultMinPartialLength = 100

// Streamer performs one streaming request. transport.Client implements it.
type Streamer interface {
	Stream(ctx context.Context, endpoint string, body any, onChunk transport.ChunkFunc) (string, error)
}

// Feature describes one coaching operation.
type Feature[In any] interface {
	Name() string
	Endpoint() string
	// Structured reports whether the response is a JSON result rather than
	// free text.
	Structured() bool
	// Prepare validates in and materializes its dependencies, returning the
	// request body.
	Prepare(ctx context.Context, in In) (any, error)
}

type config struct {
	minPartial int
	logger     *zap.Logger
}

// Option configures an Orchestrator.
type Option func(*config)

// WithMinPartialLength sets the rune count below which partial results are
// not published. Non-positive values publish from the first delta.
func WithMinPartialLength(n int) Option {
	return func(c *config) { c.minPartial = n }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) { c.logger = logger.OrNop(l) }
}

type session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.Logger
}

// Orchestrator runs at most one session of its feature at a time. Starting
// a new session supersedes the live one.
type Orchestrator[In any] struct {
	feature  Feature[In]
	streamer Streamer
	cfg      config

	// notifyMu orders publications; mu guards the fields below.
	notifyMu sync.Mutex
	mu       sync.Mutex

	session   *session
	state     State
	lastInput *In
	observers map[int]func(State)
	nextID    int
}

// New creates an Orchestrator for feature.
func New[In any](feature Feature[In], streamer Streamer, opts ...Option) *Orchestrator[In] {
	cfg := config{
		minPartial: DefaultMinPartialLength,
		logger:     zap.NewNop(),
	}
	for _, o := range opts {
		o(&cfg)
	}

	return &Orchestrator[In]{
		feature:   feature,
		streamer:  streamer,
		cfg:       cfg,
		observers: make(map[int]func(State)),
	}
}

// Subscribe registers fn for every published state. Observers run
// synchronously in publication order and must not call Run, Retry or Abort
// from the same goroutine.
func (o *Orchestrator[In]) Subscribe(fn func(State)) (unsubscribe func()) {
	o.mu.Lock()
	id := o.nextID
	o.nextID++
	o.observers[id] = fn
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.observers, id)
		o.mu.Unlock()
	}
}

// State returns the current snapshot.
func (o *Orchestrator[In]) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.clone()
}

// Run executes the feature with in and blocks until the session ends. The
// returned error is the one recorded in the final state. A session ended by
// Abort, supersession or ctx cancellation returns an Aborted state and no
// error.
func (o *Orchestrator[In]) Run(ctx context.Context, in In) (State, error) {
	sess := o.begin(ctx, in)
	defer sess.cancel()

	body, err := o.feature.Prepare(sess.ctx, in)
	if err != nil {
		if sess.ctx.Err() != nil {
			return o.abandon(sess), nil
		}
		return o.fail(sess, fmt.Errorf("prepare %s: %w", o.feature.Name(), err))
	}

	if _, ok := o.publish(sess, false, func(s *State) {
		s.Phase = PhaseStreaming
		s.IsStreaming = true
	}); !ok {
		return abortedState(sess), nil
	}

	sess.log.Debug("stream started", zap.String(logger.FieldEndpoint, o.feature.Endpoint()))

	text, err := o.streamer.Stream(sess.ctx, o.feature.Endpoint(), body, func(_, accumulated string) {
		o.onChunk(sess, accumulated)
	})
	if err != nil {
		return o.fail(sess, err)
	}
	if text == "" || sess.ctx.Err() != nil {
		return o.abandon(sess), nil
	}

	return o.finalize(sess, text), nil
}

// Retry runs the feature again with the input of the latest Run.
func (o *Orchestrator[In]) Retry(ctx context.Context) (State, error) {
	o.mu.Lock()
	last := o.lastInput
	o.mu.Unlock()

	if last == nil {
		return State{}, ErrNoInput
	}
	return o.Run(ctx, *last)
}

// Abort cancels the live session, if any, and publishes an idle state
// without result or error.
func (o *Orchestrator[In]) Abort() {
	o.notifyMu.Lock()
	defer o.notifyMu.Unlock()

	o.mu.Lock()
	sess := o.session
	if sess == nil {
		o.mu.Unlock()
		return
	}

	sess.cancel()
	o.session = nil
	o.state = abortedState(sess)
	snapshot, observers := o.state.clone(), o.observerList()
	o.mu.Unlock()

	sess.log.Debug("stream aborted")
	notify(observers, snapshot)
}

func (o *Orchestrator[In]) begin(ctx context.Context, in In) *session {
	sessCtx, cancel := context.WithCancel(ctx)
	id := uuid.NewString()
	sess := &session{
		id:     id,
		ctx:    sessCtx,
		cancel: cancel,
		log:    logger.WithStreamFields(o.cfg.logger, o.feature.Name(), id),
	}

	o.notifyMu.Lock()
	defer o.notifyMu.Unlock()

	o.mu.Lock()
	if prev := o.session; prev != nil {
		prev.cancel()
		prev.log.Debug("stream superseded", zap.String("by", id))
	}
	o.session = sess
	o.lastInput = &in
	o.state = State{Phase: PhasePreparing, SessionID: id}
	snapshot, observers := o.state.clone(), o.observerList()
	o.mu.Unlock()

	notify(observers, snapshot)
	return sess
}

func (o *Orchestrator[In]) onChunk(sess *session, accumulated string) {
	if !o.feature.Structured() {
		o.publish(sess, false, func(s *State) { s.Text = accumulated })
		return
	}

	if utf8.RuneCountInString(accumulated) < o.cfg.minPartial {
		return
	}

	partial := analysis.ExtractPartial(accumulated)
	if partial.Analysis == "" {
		return
	}

	o.publish(sess, false, func(s *State) {
		s.Text = accumulated
		s.Result = &partial
	})
}

func (o *Orchestrator[In]) finalize(sess *session, text string) State {
	if _, ok := o.publish(sess, false, func(s *State) {
		s.Phase = PhaseFinalizing
		s.IsStreaming = false
		s.Text = text
	}); !ok {
		return abortedState(sess)
	}

	final := State{Phase: PhaseIdle, SessionID: sess.id, Text: text}
	if o.feature.Structured() {
		report := analysis.Resolve(text)
		final.Result = &report.Result
		final.Resolution = report.Resolution
		final.Incomplete = report.Incomplete()

		if final.Incomplete {
			sess.log.Warn("response may be incomplete",
				zap.Stringer("resolution", report.Resolution),
				zap.Strings("issues", report.Issues),
				zap.String("text", utils.TruncateForLog(text, 200)),
			)
		}
	}

	st, ok := o.publish(sess, true, func(s *State) { *s = final })
	if !ok {
		return abortedState(sess)
	}

	sess.log.Info("stream finished", zap.Int("chars", utf8.RuneCountInString(text)))
	return st
}

func (o *Orchestrator[In]) fail(sess *session, err error) (State, error) {
	kind := Classify(err)
	st, ok := o.publish(sess, true, func(s *State) {
		*s = State{Phase: PhaseIdle, SessionID: sess.id, Err: err, Kind: kind}
	})
	if !ok {
		return abortedState(sess), nil
	}

	sess.log.Warn("stream failed", zap.Stringer("kind", kind), zap.Error(err))
	return st, err
}

// abandon ends a session whose context was cancelled without Abort.
func (o *Orchestrator[In]) abandon(sess *session) State {
	st, ok := o.publish(sess, true, func(s *State) { *s = abortedState(sess) })
	if !ok {
		return abortedState(sess)
	}
	sess.log.Debug("stream cancelled")
	return st
}

// publish applies fn to the state of sess and notifies observers. It
// reports false, without applying fn, once sess is no longer live. When
// done is set the session is detached afterwards.
func (o *Orchestrator[In]) publish(sess *session, done bool, fn func(*State)) (State, bool) {
	o.notifyMu.Lock()
	defer o.notifyMu.Unlock()

	o.mu.Lock()
	if o.session != sess {
		o.mu.Unlock()
		return State{}, false
	}

	fn(&o.state)
	if done {
		o.session = nil
	}
	snapshot, observers := o.state.clone(), o.observerList()
	o.mu.Unlock()

	notify(observers, snapshot)
	return snapshot, true
}

func (o *Orchestrator[In]) observerList() []func(State) {
	ids := make([]int, 0, len(o.observers))
	for id := range o.observers {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	list := make([]func(State), 0, len(ids))
	for _, id := range ids {
		list = append(list, o.observers[id])
	}
	return list
}

func notify(observers []func(State), st State) {
	for _, fn := range observers {
		fn(st)
	}
}

func abortedState(sess *session) State {
	return State{Phase: PhaseIdle, SessionID: sess.id, Aborted: true}
}
