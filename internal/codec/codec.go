// Package codec decodes YAML, TOML and JSON documents into Go values.
//
// Both the configuration loader and the release descriptor loader accept all
// three formats, so format detection and environment expansion live here.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format represents the encoding of a document.
type Format int

const (
	FormatUnknown Format = iota
	FormatYAML
	FormatTOML
	FormatJSON
)

func (f Format) String() string {
	switch f {
	case FormatYAML:
		return "yaml"
	case FormatTOML:
		return "toml"
	case FormatJSON:
		return "json"
	default:
		return "unknown"
	}
}

// Detect determines the format based on extension or content.
func Detect(path string, content []byte) Format {
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	case ".json":
		return FormatJSON
	}

	// Content sniffing for extensionless files and HTTP bodies
	return Sniff(content)
}

// Sniff attempts to detect format from content.
func Sniff(content []byte) Format {
	trimmed := strings.TrimSpace(string(content))

	// JSON starts with { or [
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		if json.Valid([]byte(trimmed)) {
			return FormatJSON
		}
	}

	// TOML uses key = value and [tables]; YAML uses key: value
	lines := strings.Split(trimmed, "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.Contains(line, " = ") || strings.HasPrefix(line, "[") {
			return FormatTOML
		}
		if strings.Contains(line, ":") {
			return FormatYAML
		}
	}

	return FormatUnknown
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// ExpandEnv replaces ${VAR} and ${VAR:-default} patterns in content.
func ExpandEnv(content []byte) []byte {
	return envVarPattern.ReplaceAllFunc(content, func(match []byte) []byte {
		parts := envVarPattern.FindSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		value := os.Getenv(string(parts[1]))
		if value == "" && len(parts) >= 3 && len(parts[2]) > 0 {
			value = string(parts[2])
		}

		return []byte(value)
	})
}

// Decode unmarshals content in the given format into v.
func Decode(content []byte, format Format, v any) error {
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(content, v); err != nil {
			return fmt.Errorf("YAML parse error: %w", err)
		}
	case FormatTOML:
		if err := toml.Unmarshal(content, v); err != nil {
			return fmt.Errorf("TOML parse error: %w", err)
		}
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(content))
		dec.UseNumber()
		if err := dec.Decode(v); err != nil {
			return fmt.Errorf("JSON parse error: %w", err)
		}
	default:
		return fmt.Errorf("unknown file format")
	}
	return nil
}

// ToJSONValue decodes content into a generic value with JSON-compatible
// types (map[string]any, []any, json.Number, string, bool, nil), suitable for
// JSON Schema validation regardless of the source format.
func ToJSONValue(content []byte, format Format) (any, error) {
	var raw any
	if err := Decode(content, format, &raw); err != nil {
		return nil, err
	}
	if format == FormatJSON {
		return raw, nil
	}

	// YAML and TOML produce their own scalar types; round-trip through JSON
	// to normalise them.
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to normalise %s document: %w", format, err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to normalise %s document: %w", format, err)
	}
	return out, nil
}
