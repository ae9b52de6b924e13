package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/opsplan/pkg/lifecycle"
)

// Format is the encoding of a draft input document.
type Format string

const (
	FormatCUE  Format = "cue"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFromPath infers the document format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		return FormatCUE, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unsupported draft input file type: %s", path)
}

// DraftLoader decodes draft payloads from CUE, YAML or JSON and checks them
// against the #Draft schema before they reach the lifecycle service.
type DraftLoader struct {
	ctx     *cue.Context
	schemas *SchemaRegistry
}

// NewDraftLoader creates a loader with the built-in schemas.
func NewDraftLoader() *DraftLoader {
	ctx := cuecontext.New()
	return &DraftLoader{
		ctx:     ctx,
		schemas: newSchemaRegistry(ctx),
	}
}

// Schemas returns the loader's schema registry.
func (l *DraftLoader) Schemas() *SchemaRegistry {
	return l.schemas
}

// LoadFile reads and decodes the draft input at path.
func (l *DraftLoader) LoadFile(path string) (*lifecycle.DraftInput, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read draft input: %w", err)
	}

	return l.parse(data, format, path)
}

// Parse decodes an in-memory draft document.
func (l *DraftLoader) Parse(data []byte, format Format) (*lifecycle.DraftInput, error) {
	return l.parse(data, format, "input."+string(format))
}

func (l *DraftLoader) parse(data []byte, format Format, filename string) (*lifecycle.DraftInput, error) {
	val, err := l.compile(data, format, filename)
	if err != nil {
		return nil, err
	}

	unified, err := l.schemas.Unify(SchemaDraft, val)
	if err != nil {
		return nil, err
	}

	raw, err := unified.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to export draft input: %w", err)
	}

	var in lifecycle.DraftInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("failed to decode draft input: %w", err)
	}
	return &in, nil
}

// compile turns the document into a CUE value.
func (l *DraftLoader) compile(data []byte, format Format, filename string) (cue.Value, error) {
	var doc any
	switch format {
	case FormatCUE:
		val := l.ctx.CompileBytes(data, cue.Filename(filename))
		if err := val.Err(); err != nil {
			return cue.Value{}, newSchemaError(err)
		}
		return val, nil
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return cue.Value{}, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case FormatJSON:
		if err := json.Unmarshal(data, &doc); err != nil {
			return cue.Value{}, fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		return cue.Value{}, fmt.Errorf("unsupported draft input format: %s", format)
	}

	if doc == nil {
		return cue.Value{}, fmt.Errorf("draft input %s is empty", filename)
	}

	val := l.ctx.Encode(doc)
	if err := val.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("failed to encode draft input: %w", err)
	}
	return val, nil
}

// LoadDraftInput reads a draft payload from a .cue, .yaml, .yml or .json file.
func LoadDraftInput(path string) (*lifecycle.DraftInput, error) {
	return NewDraftLoader().LoadFile(path)
}
