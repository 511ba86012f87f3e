// Package catalog provides the label section catalog: which sections a
// harmonized label has, in which order.
package catalog

import (
	"context"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/aalabel/aalabel-cli/internal/model"
)

// Source supplies section definitions.
type Source interface {
	Sections(ctx context.Context) ([]model.SectionDefinition, error)
}

// UnknownSectionsError lists requested section codes that are not active
// in the catalog.
type UnknownSectionsError struct {
	Codes []string
}

func (e *UnknownSectionsError) Error() string {
	return "catalog: unknown or inactive sections: " + strings.Join(e.Codes, ", ")
}

// Resolve returns the active sections in display order, optionally filtered
// to codes. Requested codes that are unknown or inactive are an error.
func Resolve(defs []model.SectionDefinition, codes []string) ([]model.SectionDefinition, error) {
	active := make([]model.SectionDefinition, 0, len(defs))
	for _, d := range defs {
		if d.Active {
			active = append(active, d)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].DisplayOrder != active[j].DisplayOrder {
			return active[i].DisplayOrder < active[j].DisplayOrder
		}
		return active[i].Code < active[j].Code
	})

	if len(codes) == 0 {
		return active, nil
	}

	want := make(map[string]bool, len(codes))
	for _, c := range codes {
		want[c] = true
	}
	out := make([]model.SectionDefinition, 0, len(codes))
	for _, d := range active {
		if want[d.Code] {
			out = append(out, d)
			delete(want, d.Code)
		}
	}
	if len(want) > 0 {
		unknown := make([]string, 0, len(want))
		for c := range want {
			unknown = append(unknown, c)
		}
		sort.Strings(unknown)
		return nil, &UnknownSectionsError{Codes: unknown}
	}
	return out, nil
}

// Validate checks a set of definitions for missing fields and duplicate
// codes.
func Validate(defs []model.SectionDefinition) error {
	seen := make(map[string]bool, len(defs))
	for i, d := range defs {
		if d.Code == "" {
			return eris.Errorf("catalog: section %d has no code", i)
		}
		if d.Name == "" {
			return eris.Errorf("catalog: section %s has no name", d.Code)
		}
		if seen[d.Code] {
			return eris.Errorf("catalog: duplicate section code %s", d.Code)
		}
		seen[d.Code] = true
	}
	return nil
}

// SplitCodes parses a comma-separated code list, trimming blanks.
func SplitCodes(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if c := strings.TrimSpace(part); c != "" {
			out = append(out, c)
		}
	}
	return out
}
