package rhsdk

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// Prompter supplies the codes for the interactive steps of a login.
// Implementations block until the user answers.
type Prompter interface {
	// ChallengeCode asks for the code delivered for ch.
	ChallengeCode(ctx context.Context, ch Challenge) (string, error)

	// MFACode asks for a TOTP code. attempt starts at 1.
	MFACode(ctx context.Context, attempt int) (string, error)

	// Notify shows a short message, such as a rejected code.
	Notify(msg string)
}

// TerminalPrompter prints prompts to Out and reads one line per code from In.
type TerminalPrompter struct {
	Out io.Writer

	mu sync.Mutex
	in *bufio.Reader
}

// NewTerminalPrompter prompts on stdout and reads from stdin.
func NewTerminalPrompter() *TerminalPrompter {
	return NewPrompter(os.Stdin, os.Stdout)
}

// NewPrompter prompts on out and reads from in.
func NewPrompter(in io.Reader, out io.Writer) *TerminalPrompter {
	return &TerminalPrompter{Out: out, in: bufio.NewReader(in)}
}

// ChallengeCode prints the channel and the remaining attempts/retries, then
// reads a line.
func (p *TerminalPrompter) ChallengeCode(_ context.Context, ch Challenge) (string, error) {
	fmt.Fprintf(p.Out, "Input challenge code from %s (%d/%d):\n",
		ch.Type.Label(), ch.RemainingAttempts, ch.RemainingRetries)
	return p.readLine()
}

// MFACode prints the mfa prompt and reads a line.
func (p *TerminalPrompter) MFACode(_ context.Context, _ int) (string, error) {
	fmt.Fprintln(p.Out, "Input mfa code:")
	return p.readLine()
}

// Notify prints msg on its own line.
func (p *TerminalPrompter) Notify(msg string) {
	fmt.Fprintln(p.Out, msg)
}

func (p *TerminalPrompter) readLine() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("failed to read code: %w", err)
	}
	return strings.TrimSpace(line), nil
}
