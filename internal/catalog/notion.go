package catalog

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/aalabel/aalabel-cli/internal/model"
	"github.com/aalabel/aalabel-cli/pkg/notion"
)

// Notion database property names.
const (
	notionPropName        = "Name"
	notionPropCode        = "Code"
	notionPropDescription = "Description"
	notionPropOrder       = "Order"
	notionPropMandatory   = "Mandatory"
	notionPropCategory    = "Category"
	notionPropActive      = "Active"
)

// NotionSource reads active sections from a Notion database.
type NotionSource struct {
	client notion.Client
	dbID   string
}

// NewNotionSource creates a NotionSource.
func NewNotionSource(client notion.Client, dbID string) *NotionSource {
	return &NotionSource{client: client, dbID: dbID}
}

func (n *NotionSource) Sections(ctx context.Context) ([]model.SectionDefinition, error) {
	pages, err := notion.QueryChecked(ctx, n.client, n.dbID, notionPropActive, notionPropOrder)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: notion sections")
	}

	defs := make([]model.SectionDefinition, 0, len(pages))
	for _, p := range pages {
		defs = append(defs, model.SectionDefinition{
			Code:         notion.PlainText(p.Properties, notionPropCode),
			Name:         notion.PlainText(p.Properties, notionPropName),
			Description:  notion.PlainText(p.Properties, notionPropDescription),
			DisplayOrder: int(notion.Number(p.Properties, notionPropOrder)),
			Mandatory:    notion.Checkbox(p.Properties, notionPropMandatory),
			Category:     notion.SelectName(p.Properties, notionPropCategory),
			Active:       notion.Checkbox(p.Properties, notionPropActive),
		})
	}
	if err := Validate(defs); err != nil {
		return nil, err
	}
	return defs, nil
}
