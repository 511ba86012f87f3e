package harmonize

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Params are the retrieval parameters for one section.
type Params struct {
	TopK      int
	Threshold float64
}

// Validate checks parameter bounds.
func (p Params) Validate() error {
	if p.TopK < 1 {
		return eris.Errorf("harmonize: top_k must be >= 1, got %d", p.TopK)
	}
	if p.Threshold < 0 || p.Threshold > 1 {
		return eris.Errorf("harmonize: threshold must be in [0,1], got %v", p.Threshold)
	}
	return nil
}

// SectionOverride replaces the global parameters for one section. Nil
// fields fall back to the defaults.
type SectionOverride struct {
	TopK      *int     `yaml:"top_k"`
	Threshold *float64 `yaml:"threshold"`
}

// Overrides maps section code to its override.
type Overrides map[string]SectionOverride

type overridesFile struct {
	Sections Overrides `yaml:"sections"`
}

// LoadOverrides reads a YAML overrides file. An empty path yields no
// overrides.
func LoadOverrides(path string) (Overrides, error) {
	if path == "" {
		return Overrides{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "harmonize: read overrides %s", path)
	}
	var f overridesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "harmonize: parse overrides %s", path)
	}
	if f.Sections == nil {
		f.Sections = Overrides{}
	}
	for code, o := range f.Sections {
		if o.TopK != nil && *o.TopK < 1 {
			return nil, eris.Errorf("harmonize: override %s: top_k must be >= 1, got %d", code, *o.TopK)
		}
		if o.Threshold != nil && (*o.Threshold < 0 || *o.Threshold > 1) {
			return nil, eris.Errorf("harmonize: override %s: threshold must be in [0,1], got %v", code, *o.Threshold)
		}
	}
	return f.Sections, nil
}

// For returns the parameters for a section code.
func (o Overrides) For(code string, def Params) Params {
	ov, ok := o[code]
	if !ok {
		return def
	}
	if ov.TopK != nil {
		def.TopK = *ov.TopK
	}
	if ov.Threshold != nil {
		def.Threshold = *ov.Threshold
	}
	return def
}
