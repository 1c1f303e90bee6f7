// Package catalog is the read-only Model Definition / pricing table port
// (spec.md §3). It is "consumed as a read-only table of per-provider model
// entries" per spec.md §1 -- the core never mutates it in-path.
package catalog

import (
	"fmt"

	"goa.design/llmgateway/internal/model"
)

// Catalog is the read-only model/pricing/capability table.
type Catalog interface {
	// ModelDefinition returns the definition for a model id, as catalogued
	// (not provider-scoped).
	ModelDefinition(modelID string) (model.ModelDefinition, bool)
	// All returns every catalogued model definition, for the auto-routing
	// branch's candidate enumeration (spec.md §4.5a).
	All() []model.ModelDefinition
}

// Static is an in-memory Catalog loaded once at startup and shared
// concurrently thereafter (spec.md §5: "read-only, initialized at startup,
// shared concurrently, never mutated in-path").
type Static struct {
	byID map[string]model.ModelDefinition
	all  []model.ModelDefinition
}

// NewStatic builds a Static catalog from a slice of definitions.
func NewStatic(defs []model.ModelDefinition) *Static {
	s := &Static{byID: make(map[string]model.ModelDefinition, len(defs)), all: defs}
	for _, d := range defs {
		s.byID[d.ID] = d
	}
	return s
}

func (s *Static) ModelDefinition(modelID string) (model.ModelDefinition, bool) {
	d, ok := s.byID[modelID]
	return d, ok
}

func (s *Static) All() []model.ModelDefinition {
	return s.all
}

// ErrUnknownModel is returned by callers that need a typed not-found signal.
type ErrUnknownModel struct{ ModelID string }

func (e ErrUnknownModel) Error() string {
	return fmt.Sprintf("catalog: unknown model %q", e.ModelID)
}
