package commands

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// prompter asks line-oriented questions on an injected reader/writer so
// interactive flows stay testable.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out}
}

// ask prints a label and returns the trimmed answer, or def when the
// user just hits Enter.
func (p *prompter) ask(label, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(p.out, "%s: ", label)
	}

	line, err := p.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("reading input: %w", err)
	}
	answer := strings.TrimSpace(line)
	if answer == "" {
		return def, nil
	}
	return answer, nil
}

// pause waits for Enter.
func (p *prompter) pause(label string) error {
	fmt.Fprintf(p.out, "%s", label)
	_, err := p.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return fmt.Errorf("reading input: %w", err)
	}
	return nil
}
