package catalog

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/aalabel/aalabel-cli/internal/model"
)

// SectionLister is the catalog side of the evidence store.
type SectionLister interface {
	ListSections(ctx context.Context) ([]model.SectionDefinition, error)
}

// StoreSource reads sections from the store's label_sections table.
type StoreSource struct {
	store SectionLister
}

// NewStoreSource creates a StoreSource.
func NewStoreSource(s SectionLister) *StoreSource {
	return &StoreSource{store: s}
}

func (s *StoreSource) Sections(ctx context.Context) ([]model.SectionDefinition, error) {
	defs, err := s.store.ListSections(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: list sections")
	}
	return defs, nil
}
