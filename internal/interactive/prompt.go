// Package interactive provides interactive prompts for user confirmation.
package interactive

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/adamancini/upkeep/internal/policy"
	"github.com/adamancini/upkeep/internal/release"
)

// ErrNotTerminal is returned when a prompt is needed but stdin is not a TTY.
var ErrNotTerminal = errors.New("approval required but stdin is not a terminal (rerun with --yes)")

// Response represents the user's response to a prompt.
type Response int

const (
	ResponseYes  Response = iota // Proceed
	ResponseNo                   // Decline
	ResponseQuit                 // Abort
)

// Prompter handles interactive confirmation prompts.
type Prompter struct {
	out         io.Writer
	scanner     *bufio.Scanner
	interactive func() bool
}

// NewPrompter creates a prompter reading stdin. Prompts go to stderr so
// they never mix with structured output.
func NewPrompter() *Prompter {
	p := NewPrompterWithIO(os.Stdin, os.Stderr)
	p.interactive = IsTerminal
	return p
}

// NewPrompterWithIO creates a prompter with custom input/output (for testing).
func NewPrompterWithIO(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{
		out:         out,
		scanner:     bufio.NewScanner(in),
		interactive: func() bool { return true },
	}
}

// IsTerminal checks if stdin is a terminal (TTY).
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// prompt displays a question and reads the response.
func (p *Prompter) prompt(format string, args ...interface{}) Response {
	_, _ = fmt.Fprintf(p.out, format, args...)
	_, _ = fmt.Fprint(p.out, " [y/n/q] ")

	if !p.scanner.Scan() {
		return ResponseQuit
	}

	input := strings.ToLower(strings.TrimSpace(p.scanner.Text()))
	switch input {
	case "y", "yes":
		return ResponseYes
	case "n", "no":
		return ResponseNo
	case "q", "quit":
		return ResponseQuit
	default:
		// Default to no for invalid input
		_, _ = fmt.Fprintln(p.out, "Invalid response, declining.")
		return ResponseNo
	}
}

// Confirm asks a yes/no question.
func (p *Prompter) Confirm(format string, args ...interface{}) bool {
	return p.prompt(format, args...) == ResponseYes
}

// Approve shows the release and the policy's reason and asks whether to
// install it. It has the signature of update.ApproverFunc.
func (p *Prompter) Approve(_ context.Context, rel *release.Descriptor, decision policy.Decision) (bool, error) {
	if !p.interactive() {
		return false, ErrNotTerminal
	}

	_, _ = fmt.Fprintln(p.out, "\nThis update requires approval:")
	_, _ = fmt.Fprintf(p.out, "  version: %s\n", rel.Version)
	_, _ = fmt.Fprintf(p.out, "  channel: %s\n", rel.Channel)
	if decision.Reason != "" {
		_, _ = fmt.Fprintf(p.out, "  reason:  %s\n", decision.Reason)
	}
	if enabled := rel.Compliance.Enabled(); len(enabled) > 0 {
		_, _ = fmt.Fprintf(p.out, "  compliance: %s\n", strings.Join(enabled, ", "))
	}
	if rel.Notes != "" {
		_, _ = fmt.Fprintf(p.out, "  notes:   %s\n", firstLine(rel.Notes))
	}

	switch p.prompt("\nInstall %s?", rel.Version) {
	case ResponseYes:
		return true, nil
	case ResponseQuit:
		_, _ = fmt.Fprintln(p.out, "Aborted.")
		return false, nil
	default:
		return false, nil
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}
