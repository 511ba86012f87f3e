package catalog

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/aalabel/aalabel-cli/internal/model"
)

// fileCatalog is the on-disk layout for YAML and JSON catalogs.
type fileCatalog struct {
	Sections []fileSection `json:"sections" yaml:"sections"`
}

// fileSection mirrors SectionDefinition with Active defaulting to true.
type fileSection struct {
	Code         string `json:"code" yaml:"code"`
	Name         string `json:"name" yaml:"name"`
	Description  string `json:"description" yaml:"description"`
	DisplayOrder int    `json:"display_order" yaml:"display_order"`
	Mandatory    *bool  `json:"mandatory" yaml:"mandatory"`
	Category     string `json:"category" yaml:"category"`
	Active       *bool  `json:"active" yaml:"active"`
}

// FileSource reads sections from a YAML or JSON file.
type FileSource struct {
	path string
}

// NewFileSource creates a FileSource for path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (f *FileSource) Sections(_ context.Context) ([]model.SectionDefinition, error) {
	return LoadFile(f.path)
}

// LoadFile parses a section catalog file. The format follows the extension:
// .json is JSON, anything else YAML.
func LoadFile(path string) ([]model.SectionDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read %s", path)
	}

	var fc fileCatalog
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &fc)
	} else {
		err = yaml.Unmarshal(data, &fc)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: parse %s", path)
	}

	defs := make([]model.SectionDefinition, 0, len(fc.Sections))
	for i, s := range fc.Sections {
		d := model.SectionDefinition{
			Code:         strings.TrimSpace(s.Code),
			Name:         strings.TrimSpace(s.Name),
			Description:  strings.TrimSpace(s.Description),
			DisplayOrder: s.DisplayOrder,
			Mandatory:    s.Mandatory == nil || *s.Mandatory,
			Category:     s.Category,
			Active:       s.Active == nil || *s.Active,
		}
		if d.DisplayOrder == 0 {
			d.DisplayOrder = i + 1
		}
		defs = append(defs, d)
	}
	if err := Validate(defs); err != nil {
		return nil, err
	}
	return defs, nil
}
