package gemini

import (
	"context"
	"errors"
	"iter"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/aspiro/internal/ai"
)

type fakeAttempt struct {
	texts []string
	err   error
}

type streamCall struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

type fakeModels struct {
	mu       sync.Mutex
	attempts []fakeAttempt
	calls    []streamCall
}

func (f *fakeModels) GenerateContentStream(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error] {
	f.mu.Lock()
	f.calls = append(f.calls, streamCall{model: model, contents: contents, config: config})
	var attempt fakeAttempt
	if len(f.attempts) > 0 {
		attempt = f.attempts[0]
		f.attempts = f.attempts[1:]
	} else {
		attempt = fakeAttempt{err: errors.New("unexpected call")}
	}
	f.mu.Unlock()

	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		for _, text := range attempt.texts {
			resp := &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{{
					Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
				}},
			}
			if !yield(resp, nil) {
				return
			}
		}
		if attempt.err != nil {
			yield(nil, attempt.err)
		}
	}
}

func newTestGenerator(models *fakeModels, maxRetries int) *Generator {
	return &Generator{
		models:     models,
		model:      "gemini-pro",
		maxRetries: maxRetries,
		logger:     zap.NewNop(),
		wait:       func(context.Context, time.Duration) error { return nil },
	}
}

func collect(t *testing.T, seq iter.Seq2[string, error]) (string, error) {
	t.Helper()

	var b strings.Builder
	for text, err := range seq {
		if err != nil {
			return b.String(), err
		}
		b.WriteString(text)
	}
	return b.String(), nil
}

func TestGeneratorStreamsFragments(t *testing.T) {
	models := &fakeModels{attempts: []fakeAttempt{{texts: []string{"Hello", "", " World"}}}}
	g := newTestGenerator(models, 2)

	output, err := collect(t, g.Stream(context.Background(), ai.Request{
		System:  "system",
		History: []ai.Turn{{Role: ai.RoleUser, Text: "hi"}, {Role: ai.RoleModel, Text: "hey"}, {Role: ai.RoleUser, Text: "  "}},
		Prompt:  "message",
	}))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if output != "Hello World" {
		t.Fatalf("unexpected output: %q", output)
	}

	call := models.calls[0]
	if call.model != "gemini-pro" {
		t.Fatalf("unexpected model: %q", call.model)
	}
	if call.config == nil || call.config.SystemInstruction == nil {
		t.Fatalf("expected system instruction to be set")
	}
	if got := call.config.SystemInstruction.Parts[0].Text; got != "system" {
		t.Fatalf("unexpected system instruction: %q", got)
	}

	if len(call.contents) != 3 {
		t.Fatalf("expected 3 contents, got %d", len(call.contents))
	}
	if call.contents[1].Role != string(genai.RoleModel) || call.contents[2].Parts[0].Text != "message" {
		t.Fatalf("unexpected contents: %+v", call.contents)
	}
}

func TestGeneratorRetriesOnTemporaryError(t *testing.T) {
	tempErr := genai.APIError{Code: http.StatusInternalServerError, Status: "INTERNAL"}
	models := &fakeModels{attempts: []fakeAttempt{
		{err: tempErr},
		{texts: []string{"retry ok"}},
	}}
	g := newTestGenerator(models, 2)

	output, err := collect(t, g.Stream(context.Background(), ai.Request{Prompt: "message"}))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if output != "retry ok" {
		t.Fatalf("unexpected output: %q", output)
	}

	if len(models.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(models.calls))
	}
	if models.calls[0].config != nil {
		t.Fatalf("expected no config without system instruction")
	}
}

func TestGeneratorStopsAfterRetriesExhausted(t *testing.T) {
	tempErr := genai.APIError{Code: http.StatusInternalServerError, Status: "INTERNAL"}
	models := &fakeModels{attempts: []fakeAttempt{{err: tempErr}, {err: tempErr}}}
	g := newTestGenerator(models, 2)

	_, err := collect(t, g.Stream(context.Background(), ai.Request{Prompt: "msg"}))
	if err == nil {
		t.Fatal("expected error after retries exhausted")
	}

	if len(models.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(models.calls))
	}
}

func TestGeneratorDoesNotRetryOnLongQuotaDelay(t *testing.T) {
	quotaErr := genai.APIError{
		Code:    http.StatusTooManyRequests,
		Status:  "RESOURCE_EXHAUSTED",
		Message: "quota exhausted, retry after 60 seconds",
	}
	models := &fakeModels{attempts: []fakeAttempt{{err: quotaErr}}}
	g := newTestGenerator(models, 3)

	_, err := collect(t, g.Stream(context.Background(), ai.Request{Prompt: "msg"}))
	if err == nil {
		t.Fatal("expected error when quota delay too long")
	}

	if len(models.calls) != 1 {
		t.Fatalf("expected single call, got %d", len(models.calls))
	}
}

func TestGeneratorDoesNotRetryAfterPartialOutput(t *testing.T) {
	tempErr := genai.APIError{Code: http.StatusServiceUnavailable, Status: "UNAVAILABLE"}
	models := &fakeModels{attempts: []fakeAttempt{{texts: []string{"partial"}, err: tempErr}}}
	g := newTestGenerator(models, 3)

	output, err := collect(t, g.Stream(context.Background(), ai.Request{Prompt: "msg"}))
	if err == nil {
		t.Fatal("expected error after partial output")
	}
	if output != "partial" {
		t.Fatalf("unexpected output: %q", output)
	}
	if len(models.calls) != 1 {
		t.Fatalf("expected single call, got %d", len(models.calls))
	}
}

func TestGeneratorRejectsEmptyPrompt(t *testing.T) {
	models := &fakeModels{}
	g := newTestGenerator(models, 1)

	if _, err := collect(t, g.Stream(context.Background(), ai.Request{Prompt: "  "})); err == nil {
		t.Fatal("expected error for empty prompt")
	}
	if len(models.calls) != 0 {
		t.Fatalf("expected no calls, got %d", len(models.calls))
	}

	var nilGen *Generator
	if _, err := collect(t, nilGen.Stream(context.Background(), ai.Request{Prompt: "x"})); err == nil {
		t.Fatal("expected error for nil generator")
	}
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		attempt   int
		wantDelay time.Duration
		wantRetry bool
	}{
		{name: "server error", err: genai.APIError{Code: 500}, attempt: 2, wantDelay: 2 * time.Second, wantRetry: true},
		{name: "short quota", err: genai.APIError{Code: 429, Message: "Please retry in 1.5s"}, attempt: 1, wantDelay: 1500 * time.Millisecond, wantRetry: true},
		{name: "quota without hint", err: genai.APIError{Code: 429}, attempt: 1, wantDelay: time.Second, wantRetry: true},
		{name: "bad request", err: genai.APIError{Code: 400}, attempt: 1},
		{name: "plain error", err: errors.New("boom"), attempt: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			delay, retry := retryDelay(tt.err, tt.attempt)
			if delay != tt.wantDelay || retry != tt.wantRetry {
				t.Fatalf("retryDelay() = (%v, %v), want (%v, %v)", delay, retry, tt.wantDelay, tt.wantRetry)
			}
		})
	}
}

func TestWithMaxRetries(t *testing.T) {
	g := &Generator{maxRetries: defaultMaxRetries}

	WithMaxRetries(5)(g)
	if g.maxRetries != 5 {
		t.Fatalf("expected 5 retries, got %d", g.maxRetries)
	}

	WithMaxRetries(-1)(g)
	if g.maxRetries != 5 {
		t.Fatalf("negative value must be ignored, got %d", g.maxRetries)
	}
}

func TestBuildContentsRoles(t *testing.T) {
	contents := buildContents([]ai.Turn{
		{Role: ai.RoleUser, Text: "question"},
		{Role: ai.RoleModel, Text: "answer"},
		{Role: "unknown", Text: "treated as user"},
	}, "follow-up")

	want := []string{string(genai.RoleUser), string(genai.RoleModel), string(genai.RoleUser), string(genai.RoleUser)}
	if len(contents) != len(want) {
		t.Fatalf("expected %d contents, got %d", len(want), len(contents))
	}
	for i, role := range want {
		if contents[i].Role != role {
			t.Fatalf("content %d: expected role %q, got %q", i, role, contents[i].Role)
		}
	}
	if got := contents[3].Parts[0].Text; got != "follow-up" {
		t.Fatalf("unexpected prompt text: %q", got)
	}
}
