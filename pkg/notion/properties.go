package notion

import (
	"strings"

	"github.com/jomei/notionapi"
)

// PlainText returns the text of a title or rich-text property.
func PlainText(props notionapi.Properties, name string) string {
	var parts []notionapi.RichText
	switch p := props[name].(type) {
	case *notionapi.TitleProperty:
		parts = p.Title
	case notionapi.TitleProperty:
		parts = p.Title
	case *notionapi.RichTextProperty:
		parts = p.RichText
	case notionapi.RichTextProperty:
		parts = p.RichText
	default:
		return ""
	}
	var b strings.Builder
	for _, rt := range parts {
		b.WriteString(rt.PlainText)
	}
	return strings.TrimSpace(b.String())
}

// Number returns a number property, or 0.
func Number(props notionapi.Properties, name string) float64 {
	switch p := props[name].(type) {
	case *notionapi.NumberProperty:
		return p.Number
	case notionapi.NumberProperty:
		return p.Number
	}
	return 0
}

// Checkbox returns a checkbox property, or false.
func Checkbox(props notionapi.Properties, name string) bool {
	switch p := props[name].(type) {
	case *notionapi.CheckboxProperty:
		return p.Checkbox
	case notionapi.CheckboxProperty:
		return p.Checkbox
	}
	return false
}

// SelectName returns the selected option of a select property, or "".
func SelectName(props notionapi.Properties, name string) string {
	switch p := props[name].(type) {
	case *notionapi.SelectProperty:
		return p.Select.Name
	case notionapi.SelectProperty:
		return p.Select.Name
	}
	return ""
}
