package release

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/adamancini/upkeep/internal/codec"
)

//go:embed release.schema.json
var schemaJSON []byte

const schemaURL = "release.schema.json"

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func schema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
		if err != nil {
			schemaErr = fmt.Errorf("failed to parse release schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, doc); err != nil {
			schemaErr = fmt.Errorf("failed to load release schema: %w", err)
			return
		}
		compiledSchema, schemaErr = c.Compile(schemaURL)
	})
	return compiledSchema, schemaErr
}

// LoadFile reads a release descriptor from a JSON, YAML or TOML file.
func LoadFile(path string) (*Descriptor, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read release descriptor: %w", err)
	}

	format := codec.Detect(path, content)
	if format == codec.FormatUnknown {
		return nil, fmt.Errorf("unable to detect file format for %s", path)
	}

	return Parse(content, format)
}

// Parse validates content against the release schema and decodes it.
func Parse(content []byte, format codec.Format) (*Descriptor, error) {
	sch, err := schema()
	if err != nil {
		return nil, err
	}

	inst, err := codec.ToJSONValue(content, format)
	if err != nil {
		return nil, err
	}
	if err := sch.Validate(inst); err != nil {
		return nil, fmt.Errorf("release descriptor does not match schema: %w", err)
	}

	var d Descriptor
	if err := codec.Decode(content, format, &d); err != nil {
		return nil, err
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}

	return &d, nil
}
