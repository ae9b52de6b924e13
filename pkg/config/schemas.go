package config

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// Built-in schema names.
const (
	SchemaDraft   = "draft"
	SchemaPatchOp = "patchOp"
)

// SchemaRegistry manages CUE definitions used to validate input documents.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a registry holding the built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	return newSchemaRegistry(cuecontext.New())
}

func newSchemaRegistry(ctx *cue.Context) *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     ctx,
		schemas: make(map[string]cue.Value),
	}

	base := ctx.CompileString(builtinSchemas, cue.Filename("schemas.cue"))
	if err := base.Err(); err != nil {
		panic(fmt.Sprintf("built-in schemas do not compile: %v", err))
	}
	sr.schemas[SchemaDraft] = base.LookupPath(cue.ParsePath("#Draft"))
	sr.schemas[SchemaPatchOp] = base.LookupPath(cue.ParsePath("#PatchOp"))

	return sr
}

// RegisterSchema compiles schema and registers it under name. The schema
// source must evaluate to the constraint itself, e.g. `{ kind: string }`.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	val := sr.ctx.CompileString(schema, cue.Filename(name+".cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.schemas[name] = val
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// Unify returns val constrained by the named schema.
func (sr *SchemaRegistry) Unify(schemaName string, val cue.Value) (cue.Value, error) {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return cue.Value{}, fmt.Errorf("schema %s not found", schemaName)
	}

	unified := schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return cue.Value{}, newSchemaError(err)
	}
	return unified, nil
}

// ValidateAgainstSchema validates a Go value against a named schema.
func (sr *SchemaRegistry) ValidateAgainstSchema(_ context.Context, schemaName string, data any) error {
	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	_, err := sr.Unify(schemaName, dataVal)
	return err
}

// ListSchemas returns all registered schema names, sorted.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

const builtinSchemas = `
#PatchOp: {
	op:     "add" | "remove" | "replace"
	path:   string & =~"^(/.*)?$"
	value?: _
}

#Step: {
	id?:            string
	action?:        string
	description?:   string
	patch?:         [...#PatchOp]
	rollbackPatch?: [...#PatchOp]
}

#Draft: {
	action:       "create" | "update" | "delete" | "scale" | "restart"
	intent?:      string
	aiRationale?: string
	requestedBy?: string

	resource: {
		kind:             string & !=""
		namespace?:       string
		name:             string & !=""
		uid?:             string
		resourceVersion?: string
		cluster?:         string
		href?:            string
	}

	diff?: {
		before?:        _
		patch?:         [...#PatchOp]
		rollbackPatch?: [...#PatchOp]
		patchFormat?:   "rfc6902" | "strategic-merge"
	}

	steps?:          [...#Step]
	idempotencyKey?: string
	sourcePromptId?: string
	version?:        string
}
`
