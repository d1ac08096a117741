// Package elicit asks the operator for answers the resolver could not find.
package elicit

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/xkilldash9x/applypilot/internal/form"
	"github.com/xkilldash9x/applypilot/internal/resolver"
)

// ErrUnattended is returned when no operator is available to answer.
var ErrUnattended = errors.New("no operator available for elicitation")

// Unattended never answers. Runs without a terminal use it so unknown questions fail fast.
type Unattended struct{}

func (Unattended) Elicit(context.Context, form.Descriptor) (string, error) {
	return "", ErrUnattended
}

// ForStdin returns a terminal prompter on stdin/stdout, or Unattended when unattended is set or
// stdin is not a terminal.
func ForStdin(unattended bool, logger *zap.Logger) resolver.Elicitor {
	if unattended {
		return Unattended{}
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		logger.Warn("Stdin is not a terminal, unknown questions will not be asked.")
		return Unattended{}
	}
	return NewTerminal(os.Stdin, os.Stdout, logger)
}

// line is one read from the input, tagged with the prompt that was showing when it completed.
type line struct {
	text   string
	err    error
	prompt uint64
}

// Terminal prompts on a text stream. Input is read by a single pump goroutine so a cancelled
// prompt never strands a reader and the browser session keeps running while the operator types.
type Terminal struct {
	reader *bufio.Reader
	out    io.Writer
	logger *zap.Logger

	question lipgloss.Style
	meta     lipgloss.Style
	option   lipgloss.Style
	hint     lipgloss.Style

	mu        sync.Mutex
	lines     chan line
	startOnce sync.Once
	prompt    atomic.Uint64
	// abandoned is set when a prompt ended on cancellation; guarded by mu.
	abandoned bool
}

// NewTerminal builds a prompter reading from in and writing to out.
func NewTerminal(in io.Reader, out io.Writer, logger *zap.Logger) *Terminal {
	r := lipgloss.NewRenderer(out)
	return &Terminal{
		reader:   bufio.NewReader(in),
		out:      out,
		logger:   logger.Named("elicit"),
		question: r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		meta:     r.NewStyle().Faint(true),
		option:   r.NewStyle().PaddingLeft(2),
		hint:     r.NewStyle().Foreground(lipgloss.Color("11")),
	}
}

func (t *Terminal) pump() {
	for {
		text, err := t.reader.ReadString('\n')
		if text != "" {
			t.lines <- line{text: text, prompt: t.prompt.Load()}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				t.lines <- line{err: err}
			}
			close(t.lines)
			return
		}
	}
}

// Elicit shows d and waits for a reply or for ctx to end.
func (t *Terminal) Elicit(ctx context.Context, d form.Descriptor) (string, error) {
	// One prompt at a time.
	t.mu.Lock()
	defer t.mu.Unlock()

	current := t.prompt.Add(1)
	t.startOnce.Do(func() {
		t.lines = make(chan line)
		go t.pump()
	})

	t.render(d)

	for {
		select {
		case <-ctx.Done():
			t.abandoned = true
			return "", ctx.Err()
		case l, ok := <-t.lines:
			if !ok {
				return "", fmt.Errorf("input closed: %w", io.EOF)
			}
			if l.err != nil {
				return "", fmt.Errorf("failed to read answer: %w", l.err)
			}
			// A reply typed for a prompt that was already cancelled must not answer this one.
			if t.abandoned && l.prompt < current {
				t.logger.Debug("Discarding reply to a cancelled prompt.", zap.String("reply", strings.TrimSpace(l.text)))
				continue
			}
			t.abandoned = false
			answer := Interpret(d, l.text)
			t.logger.Debug("Operator answered.", zap.String("question", d.Text), zap.String("answer", answer))
			return answer, nil
		}
	}
}

func (t *Terminal) render(d form.Descriptor) {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(t.question.Render(d.Text))
	b.WriteString("\n")
	b.WriteString(t.meta.Render(fmt.Sprintf("type: %s", d.Type)))
	b.WriteString("\n")
	for i, opt := range d.Options {
		b.WriteString(t.option.Render(fmt.Sprintf("%d) %s", i+1, opt)))
		b.WriteString("\n")
	}
	switch {
	case d.Type == form.MultiChoice && len(d.Options) > 0:
		b.WriteString(t.hint.Render("Enter numbers separated by commas (default 1): "))
	case len(d.Options) > 0:
		b.WriteString(t.hint.Render("Enter a number or text (default 1): "))
	default:
		b.WriteString(t.hint.Render("Answer: "))
	}
	fmt.Fprint(t.out, b.String())
}

// Interpret maps a raw reply onto option labels. Numbers pick options (1-based), comma-separated
// numbers pick several for MultiChoice, anything else is kept verbatim. An empty reply picks the
// first option when there are options.
func Interpret(d form.Descriptor, raw string) string {
	reply := strings.TrimSpace(raw)
	if len(d.Options) == 0 {
		return reply
	}
	if reply == "" {
		reply = "1"
	}

	if d.Type == form.MultiChoice && strings.Contains(reply, ",") {
		var labels []string
		for _, part := range strings.Split(reply, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			labels = append(labels, optionFor(d.Options, part))
		}
		return form.JoinChoices(labels)
	}
	return optionFor(d.Options, reply)
}

func optionFor(options []string, reply string) string {
	n, err := strconv.Atoi(reply)
	if err != nil || n < 1 || n > len(options) {
		return reply
	}
	return options[n-1]
}
