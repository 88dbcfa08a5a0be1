package transport

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/unicode"

	"github.com/spigell/aspiro/internal/utils"
)

const (
	dataPrefix     = "data: "
	doneSentinel   = "[DONE]"
	readBufferSize = 4096
	framePreview   = 80
)

// ChunkFunc receives each content delta together with the text accumulated so far.
type ChunkFunc func(delta, accumulated string)

type frame struct {
	Content *string `json:"content"`
}

// lineBuffer splits decoded text into complete lines, holding back the
// trailing fragment until its newline arrives.
type lineBuffer struct {
	pending string
}

func (b *lineBuffer) push(text string) []string {
	lines := strings.Split(b.pending+text, "\n")
	b.pending = lines[len(lines)-1]
	return lines[:len(lines)-1]
}

func (b *lineBuffer) flush() string {
	rest := b.pending
	b.pending = ""
	return rest
}

// frameReader turns an SSE body into content deltas.
type frameReader struct {
	logger  *zap.Logger
	onChunk ChunkFunc

	lines       lineBuffer
	accumulated strings.Builder
	tokens      int
}

func newFrameReader(logger *zap.Logger, onChunk ChunkFunc) *frameReader {
	return &frameReader{logger: logger, onChunk: onChunk}
}

// consume reads body until EOF. Cancellation is observed between reads.
func (r *frameReader) consume(ctx context.Context, body io.Reader) error {
	decoded := unicode.UTF8.NewDecoder().Reader(body)
	buf := make([]byte, readBufferSize)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := decoded.Read(buf)
		if n > 0 {
			for _, line := range r.lines.push(string(buf[:n])) {
				r.handleLine(line)
			}
		}

		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}

	if rest := r.lines.flush(); rest != "" {
		r.handleLine(rest)
	}

	return nil
}

func (r *frameReader) handleLine(line string) {
	line = strings.TrimSuffix(line, "\r")
	if !strings.HasPrefix(line, dataPrefix) {
		return
	}

	payload := strings.TrimPrefix(line, dataPrefix)
	if strings.TrimSpace(payload) == doneSentinel {
		return
	}

	var f frame
	if err := json.Unmarshal([]byte(payload), &f); err != nil {
		r.logger.Debug("dropping malformed frame",
			zap.String("payload_preview", utils.TruncateForLog(payload, framePreview)),
			zap.Error(err),
		)
		return
	}

	if f.Content == nil {
		return
	}

	r.tokens++
	r.accumulated.WriteString(*f.Content)

	if r.onChunk != nil {
		r.onChunk(*f.Content, r.accumulated.String())
	}
}

func (r *frameReader) text() string {
	return r.accumulated.String()
}
