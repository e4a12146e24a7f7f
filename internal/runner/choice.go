package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"pytestmaker/internal/logging"

	"github.com/charmbracelet/lipgloss"
)

// Choice is the answer to the run prompt.
type Choice string

const (
	// ChoiceFile runs only the generated suite.
	ChoiceFile Choice = "y"
	// ChoiceNone runs nothing.
	ChoiceNone Choice = "n"
	// ChoiceAll runs every suite pytest discovers.
	ChoiceAll Choice = "all"
)

// ParseChoice accepts y, n and all in any case, ignoring surrounding space.
func ParseChoice(s string) (Choice, bool) {
	switch c := Choice(strings.ToLower(strings.TrimSpace(s))); c {
	case ChoiceFile, ChoiceNone, ChoiceAll:
		return c, true
	}
	return "", false
}

// ChoiceSource decides what to run after generation.
type ChoiceSource interface {
	Choose(ctx context.Context) (Choice, error)
}

// FixedChoice always answers the same.
type FixedChoice Choice

// Choose returns the preset choice.
func (f FixedChoice) Choose(context.Context) (Choice, error) {
	return Choice(f), nil
}

const (
	promptText  = "Do you want to run pytest? (y/n/all) "
	invalidText = "Invalid input. Please enter 'y', 'n', or 'all'."
)

// Prompter asks on Out and reads answers from In until one is valid.
// End of input means ChoiceNone.
type Prompter struct {
	in     *bufio.Reader
	out    io.Writer
	prompt lipgloss.Style
	warn   lipgloss.Style
}

// NewPrompter creates a prompter. Styling follows the capabilities of out.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	r := lipgloss.NewRenderer(out)
	return &Prompter{
		in:     bufio.NewReader(in),
		out:    out,
		prompt: r.NewStyle().Bold(true),
		warn:   r.NewStyle().Foreground(lipgloss.Color("9")),
	}
}

type line struct {
	text string
	err  error
}

// Choose prompts until a valid answer arrives. Cancelling ctx abandons the
// prompt.
func (p *Prompter) Choose(ctx context.Context) (Choice, error) {
	for {
		fmt.Fprint(p.out, p.prompt.Render(promptText))

		// One reader goroutine per line; the buffered channel lets it exit
		// even when nobody is waiting any more.
		ch := make(chan line, 1)
		go func() {
			text, err := p.in.ReadString('\n')
			ch <- line{text: text, err: err}
		}()

		var l line
		select {
		case <-ctx.Done():
			fmt.Fprintln(p.out)
			return "", ctx.Err()
		case l = <-ch:
		}

		if c, ok := ParseChoice(l.text); ok {
			logging.RunnerDebug("prompt answered %q", c)
			return c, nil
		}
		if l.err != nil {
			if errors.Is(l.err, io.EOF) {
				fmt.Fprintln(p.out)
				logging.RunnerDebug("prompt hit end of input, not running pytest")
				return ChoiceNone, nil
			}
			return "", fmt.Errorf("failed to read answer: %w", l.err)
		}
		fmt.Fprintln(p.out, p.warn.Render(invalidText))
	}
}
