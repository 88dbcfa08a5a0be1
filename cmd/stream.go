package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/manifoldco/promptui"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/aspiro/internal/analysis"
	"github.com/spigell/aspiro/internal/orchestrator"
)

const (
	PromptYes = "Yes"
	PromptNo  = "No"
)

// renderer prints orchestrator states as they arrive. Streamed text is
// printed once; later states only append what is new.
type renderer struct {
	mu         sync.Mutex
	out        io.Writer
	structured bool
	printed    string
}

func newRenderer(out io.Writer, structured bool) *renderer {
	return &renderer{out: out, structured: structured}
}

func (r *renderer) observe(st orchestrator.State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case st.Phase == orchestrator.PhasePreparing:
		r.printed = ""
	case st.Phase != orchestrator.PhaseStreaming:
	case !r.structured:
		r.extend(st.Text)
	case st.Result != nil:
		r.extend(st.Result.Analysis)
	}
}

// extend prints the part of text beyond what is already on screen. Text that
// does not continue the printed prefix is left for finish.
func (r *renderer) extend(text string) bool {
	if !strings.HasPrefix(text, r.printed) {
		return false
	}
	fmt.Fprint(r.out, text[len(r.printed):])
	r.printed = text
	return true
}

func (r *renderer) finish(st orchestrator.State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	text := st.Text
	if r.structured && st.Result != nil {
		text = st.Result.Analysis
	}

	if !r.extend(text) {
		fmt.Fprintf(r.out, "\n\n%s", text)
		r.printed = text
	}
	fmt.Fprintln(r.out)

	if r.structured && st.Result != nil {
		writeResult(r.out, st.Result)
	}

	if st.Incomplete {
		fmt.Fprintln(r.out, "\n(The response may be incomplete.)")
	}
}

func writeResult(out io.Writer, res *analysis.Result) {
	for i, s := range res.Suggestions {
		if i == 0 {
			fmt.Fprintln(out, "\nSuggested roles:")
		}
		fmt.Fprintf(out, "\n%d. %s (%d%% match)\n", i+1, s.Role, s.Match)
		if s.Description != "" {
			fmt.Fprintf(out, "   %s\n", s.Description)
		}
		if s.WhyItFits != "" {
			fmt.Fprintf(out, "   Why it fits: %s\n", s.WhyItFits)
		}
		if len(s.SkillsToHighlight) > 0 {
			fmt.Fprintf(out, "   Highlight: %s\n", strings.Join(s.SkillsToHighlight, ", "))
		}
		if len(s.SkillsToDevelop) > 0 {
			fmt.Fprintf(out, "   Develop: %s\n", strings.Join(s.SkillsToDevelop, ", "))
		}
	}

	writeList(out, "Strengths", res.OverallStrengths)
	writeList(out, "Improvements to consider", res.ImprovementsToConsider)
}

func writeList(out io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(out, "\n%s:\n", title)
	for _, item := range items {
		fmt.Fprintf(out, "  - %s\n", item)
	}
}

// runStream runs one feature until it finishes, offering a retry after
// retryable failures. Ctrl-C aborts the live stream and returns an aborted
// state without error.
func runStream[In any](
	ctx context.Context,
	o *orchestrator.Orchestrator[In],
	in In,
	out io.Writer,
	structured bool,
	logger *zap.Logger,
) (orchestrator.State, error) {
	r := newRenderer(out, structured)
	unsubscribe := o.Subscribe(r.observe)
	defer unsubscribe()

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-interrupts:
			o.Abort()
		case <-done:
		}
	}()

	st, err := o.Run(ctx, in)
	for {
		if st.Aborted {
			fmt.Fprintln(out)
			logger.Info("stream stopped")
			return st, nil
		}
		if err == nil {
			r.finish(st)
			return st, nil
		}

		fmt.Fprintln(os.Stderr, orchestrator.UserMessage(err))
		logger.Debug("stream failed", zap.Stringer("kind", st.Kind), zap.Error(err))

		if !st.Kind.Retryable() || viper.GetBool("stream.no-retry-prompt") || !confirm("Retry?") {
			return st, err
		}
		st, err = o.Retry(ctx)
	}
}

func confirm(label string) bool {
	prompt := promptui.Select{
		Label: label,
		Items: []string{PromptYes, PromptNo},
	}

	_, result, err := prompt.Run()
	if err != nil {
		return false
	}
	return result == PromptYes
}
