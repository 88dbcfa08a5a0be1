package gemini

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/aspiro/internal/ai"
	"github.com/spigell/aspiro/internal/logger"
	"github.com/spigell/aspiro/internal/utils"
)

const (
	defaultModel      = "gemini-2.5-flash"
	defaultMaxRetries = 3
	maxRetryDelay     = 10 * time.Second
	baseRetryDelay    = time.Second
)

var retryAfterPattern = regexp.MustCompile(`(?i)retry (?:after|in) (\d+(?:\.\d+)?)\s*s`)

type contentStreamer interface {
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
}

// Generator streams content from the Gemini API.
type Generator struct {
	models     contentStreamer
	model      string
	maxRetries int
	logger     *zap.Logger
	wait       func(ctx context.Context, d time.Duration) error
}

var _ ai.Generator = (*Generator)(nil)

// Option customises a Generator.
type Option func(*Generator)

// WithMaxRetries sets how many times a stream that failed before producing
// any text is restarted.
func WithMaxRetries(n int) Option {
	return func(g *Generator) {
		if n >= 0 {
			g.maxRetries = n
		}
	}
}

// NewGenerator creates a new Generator configured for the Gemini API backend.
func NewGenerator(ctx context.Context, apiKey, model string, l *zap.Logger, opts ...Option) (*Generator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	if model = strings.TrimSpace(model); model == "" {
		model = defaultModel
	}

	g := &Generator{
		models:     client.Models,
		model:      model,
		maxRetries: defaultMaxRetries,
		logger:     logger.OrNop(l),
		wait:       utils.WaitFor,
	}
	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.model
}

// Stream sends req to Gemini and yields the text of every streamed response.
// Temporary failures are retried as long as nothing has been yielded yet.
func (g *Generator) Stream(ctx context.Context, req ai.Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if g == nil || g.models == nil {
			yield("", errors.New("gemini generator is not initialized"))
			return
		}

		prompt := strings.TrimSpace(req.Prompt)
		if prompt == "" {
			yield("", errors.New("prompt must not be empty"))
			return
		}

		contents := buildContents(req.History, prompt)
		var cfg *genai.GenerateContentConfig
		if system := strings.TrimSpace(req.System); system != "" {
			cfg = &genai.GenerateContentConfig{
				SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
			}
		}

		for attempt := 1; ; attempt++ {
			emitted := false
			var streamErr error

			for resp, err := range g.models.GenerateContentStream(ctx, g.model, contents, cfg) {
				if err != nil {
					streamErr = err
					break
				}

				text := responseText(resp)
				if text == "" {
					continue
				}
				emitted = true
				if !yield(text, nil) {
					return
				}
			}

			if streamErr == nil {
				return
			}

			delay, retry := retryDelay(streamErr, attempt)
			if emitted || !retry || attempt >= g.maxRetries {
				yield("", fmt.Errorf("generate content: %w", streamErr))
				return
			}

			g.logger.Warn("gemini stream failed, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(streamErr),
			)

			if err := g.wait(ctx, delay); err != nil {
				yield("", err)
				return
			}
		}
	}
}

func buildContents(history []ai.Turn, prompt string) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, turn := range history {
		text := strings.TrimSpace(turn.Text)
		if text == "" {
			continue
		}

		var role genai.Role = genai.RoleUser
		if turn.Role == ai.RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(text, role))
	}

	return append(contents, genai.NewContentFromText(prompt, genai.RoleUser))
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			builder.WriteString(part.Text)
		}
		break
	}

	return builder.String()
}

// retryDelay reports whether err is temporary and how long to wait before
// the next attempt.
func retryDelay(err error, attempt int) (time.Duration, bool) {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return 0, false
	}

	switch {
	case apiErr.Code == http.StatusTooManyRequests:
		if m := retryAfterPattern.FindStringSubmatch(apiErr.Message); m != nil {
			seconds, parseErr := strconv.ParseFloat(m[1], 64)
			if parseErr == nil {
				delay := time.Duration(seconds * float64(time.Second))
				return delay, delay <= maxRetryDelay
			}
		}
		return baseRetryDelay * time.Duration(attempt), true
	case apiErr.Code >= http.StatusInternalServerError:
		return baseRetryDelay * time.Duration(attempt), true
	default:
		return 0, false
	}
}
