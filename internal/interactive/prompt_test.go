package interactive

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/adamancini/upkeep/internal/policy"
	"github.com/adamancini/upkeep/internal/release"
)

func TestPrompterYesResponse(t *testing.T) {
	input := strings.NewReader("y\n")
	output := &bytes.Buffer{}
	p := NewPrompterWithIO(input, output)

	resp := p.prompt("Test prompt?")

	if resp != ResponseYes {
		t.Errorf("expected ResponseYes, got %v", resp)
	}
}

func TestPrompterNoResponse(t *testing.T) {
	input := strings.NewReader("n\n")
	output := &bytes.Buffer{}
	p := NewPrompterWithIO(input, output)

	resp := p.prompt("Test prompt?")

	if resp != ResponseNo {
		t.Errorf("expected ResponseNo, got %v", resp)
	}
}

func TestPrompterQuitResponse(t *testing.T) {
	input := strings.NewReader("q\n")
	output := &bytes.Buffer{}
	p := NewPrompterWithIO(input, output)

	resp := p.prompt("Test prompt?")

	if resp != ResponseQuit {
		t.Errorf("expected ResponseQuit, got %v", resp)
	}
}

func TestPrompterInvalidResponse(t *testing.T) {
	input := strings.NewReader("invalid\n")
	output := &bytes.Buffer{}
	p := NewPrompterWithIO(input, output)

	resp := p.prompt("Test prompt?")

	if resp != ResponseNo {
		t.Errorf("expected ResponseNo for invalid input, got %v", resp)
	}
	if !strings.Contains(output.String(), "Invalid response") {
		t.Errorf("expected 'Invalid response' message in output")
	}
}

func TestPrompterEOFResponse(t *testing.T) {
	input := strings.NewReader("")
	output := &bytes.Buffer{}
	p := NewPrompterWithIO(input, output)

	resp := p.prompt("Test prompt?")

	if resp != ResponseQuit {
		t.Errorf("expected ResponseQuit on EOF, got %v", resp)
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"q\n", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			p := NewPrompterWithIO(strings.NewReader(tt.input), &bytes.Buffer{})
			if got := p.Confirm("Roll back to %s?", "1.0.0"); got != tt.want {
				t.Errorf("Confirm() = %v, want %v", got, tt.want)
			}
		})
	}
}

func testRelease() *release.Descriptor {
	return &release.Descriptor{
		Version:    "2.0.0",
		Channel:    "beta",
		Notes:      "Faster downloads\nand more",
		Compliance: release.ComplianceTags{"soc2": true, "hipaa": false},
	}
}

func TestApprove(t *testing.T) {
	decision := policy.NeedApproval("channel 'beta' requires approval")

	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"approved", "y\n", true},
		{"declined", "n\n", false},
		{"quit", "q\n", false},
		{"eof", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := &bytes.Buffer{}
			p := NewPrompterWithIO(strings.NewReader(tt.input), output)

			got, err := p.Approve(context.Background(), testRelease(), decision)
			if err != nil {
				t.Fatalf("Approve() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Approve() = %v, want %v", got, tt.want)
			}

			out := output.String()
			for _, want := range []string{"2.0.0", "beta", "requires approval", "soc2", "Faster downloads"} {
				if !strings.Contains(out, want) {
					t.Errorf("output missing %q:\n%s", want, out)
				}
			}
			if strings.Contains(out, "hipaa") {
				t.Error("disabled compliance regimes should not be listed")
			}
			if strings.Contains(out, "and more") {
				t.Error("only the first line of the notes should be shown")
			}
		})
	}
}

func TestApproveNotTerminal(t *testing.T) {
	p := NewPrompterWithIO(strings.NewReader("y\n"), &bytes.Buffer{})
	p.interactive = func() bool { return false }

	got, err := p.Approve(context.Background(), testRelease(), policy.NeedApproval(""))
	if !errors.Is(err, ErrNotTerminal) {
		t.Errorf("Approve() error = %v, want ErrNotTerminal", err)
	}
	if got {
		t.Error("Approve() should not approve without a terminal")
	}
}
