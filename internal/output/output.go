// Package output renders command results as text, JSON or YAML.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// Format selects how results are rendered.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Formats lists the accepted --output values.
func Formats() []string {
	return []string{string(FormatText), string(FormatJSON), string(FormatYAML)}
}

// Writer renders results to one stream.
type Writer struct {
	format Format
	w      io.Writer
}

func NewWriter(w io.Writer, format Format) *Writer {
	return &Writer{format: format, w: w}
}

func (w *Writer) Format() Format {
	return w.format
}

// Structured is true for JSON and YAML, where callers should emit the
// value itself and skip human-oriented summaries.
func (w *Writer) Structured() bool {
	return w.format == FormatJSON || w.format == FormatYAML
}

// Write renders v. Text mode prints v.String() when v is a fmt.Stringer
// and falls back to %+v otherwise.
func (w *Writer) Write(v any) error {
	switch w.format {
	case FormatJSON:
		enc := json.NewEncoder(w.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}

	text := fmt.Sprintf("%+v", v)
	if s, ok := v.(fmt.Stringer); ok {
		text = s.String()
	}
	_, err := fmt.Fprintln(w.w, text)
	return err
}

// Table renders rows as aligned columns under upper-cased headers. JSON and
// YAML writers ignore the rows and encode v.
func (w *Writer) Table(v any, headers []string, rows [][]string) error {
	if w.Structured() {
		return w.Write(v)
	}

	tw := tabwriter.NewWriter(w.w, 0, 0, 2, ' ', 0)
	upper := make([]string, len(headers))
	for i, h := range headers {
		upper[i] = strings.ToUpper(h)
	}
	_, _ = fmt.Fprintln(tw, strings.Join(upper, "\t"))
	for _, row := range rows {
		_, _ = fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// ParseFormat maps an --output value to a Format. Matching ignores case and
// "yml" is accepted for YAML.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want %s)", s, strings.Join(Formats(), ", "))
	}
}
