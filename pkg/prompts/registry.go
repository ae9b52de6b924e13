// Package prompts provides the instruction-template registry consulted when
// annotating plan risk with the provenance of an AI-authored change.
package prompts

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/openfroyo/opsplan/pkg/engine"
)

// Metadata describes an instruction template.
type Metadata struct {
	ID          string           `json:"id" yaml:"id" validate:"required"`
	Name        string           `json:"name" yaml:"name"`
	RiskTier    engine.RiskLevel `json:"riskTier" yaml:"riskTier" validate:"required,oneof=low medium high"`
	Description string           `json:"description,omitempty" yaml:"description,omitempty"`
}

// Registry resolves template metadata by id.
// Metadata returns nil, nil for unknown ids.
type Registry interface {
	Metadata(ctx context.Context, id string) (*Metadata, error)
	List(ctx context.Context) ([]Metadata, error)
}

var validate = validator.New()

// StaticRegistry is an in-memory registry.
type StaticRegistry struct {
	mu      sync.RWMutex
	entries map[string]Metadata
}

// NewStaticRegistry creates a registry holding the given templates.
func NewStaticRegistry(entries ...Metadata) (*StaticRegistry, error) {
	r := &StaticRegistry{}
	if err := r.Replace(entries); err != nil {
		return nil, err
	}
	return r, nil
}

// Metadata implements Registry.
func (r *StaticRegistry) Metadata(_ context.Context, id string) (*Metadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.entries[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

// List implements Registry. Entries are sorted by id.
func (r *StaticRegistry) List(_ context.Context) ([]Metadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Metadata, 0, len(r.entries))
	for _, m := range r.entries {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Replace atomically swaps the registry contents. The registry is left
// untouched if any entry is invalid or duplicated.
func (r *StaticRegistry) Replace(entries []Metadata) error {
	next := make(map[string]Metadata, len(entries))
	for i, m := range entries {
		if err := validate.Struct(m); err != nil {
			return fmt.Errorf("invalid prompt metadata at index %d: %w", i, err)
		}
		if _, dup := next[m.ID]; dup {
			return fmt.Errorf("duplicate prompt id: %s", m.ID)
		}
		next[m.ID] = m
	}

	r.mu.Lock()
	r.entries = next
	r.mu.Unlock()
	return nil
}

// Len returns the number of registered templates.
func (r *StaticRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
