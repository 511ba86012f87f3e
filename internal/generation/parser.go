package generation

import (
	"fmt"
	"strings"
)

// MalformedGenerationError reports a backend response that does not follow
// the section response format.
type MalformedGenerationError struct {
	Reason string
	Raw    string
}

func (e *MalformedGenerationError) Error() string {
	return fmt.Sprintf("generation: malformed response: %s", e.Reason)
}

// Parsed is a section response split on its markers.
type Parsed struct {
	Content       string
	Justification string
	Sources       string
}

// Parse splits raw on the section markers. The content marker is required
// and must be followed by non-empty text; the justification and sources
// blocks are best-effort.
func Parse(raw string) (Parsed, error) {
	start := strings.Index(raw, MarkerContent)
	if start < 0 {
		return Parsed{}, &MalformedGenerationError{Reason: "missing " + MarkerContent + " marker", Raw: raw}
	}
	body := raw[start+len(MarkerContent):]

	justIdx := strings.Index(body, MarkerJustification)
	srcIdx := strings.Index(body, MarkerSources)

	var p Parsed
	p.Content = strings.TrimSpace(body[:firstOf(len(body), justIdx, srcIdx)])
	if p.Content == "" {
		return Parsed{}, &MalformedGenerationError{Reason: "empty harmonized content", Raw: raw}
	}

	if justIdx >= 0 {
		rest := body[justIdx+len(MarkerJustification):]
		end := len(rest)
		if srcIdx > justIdx {
			end = srcIdx - justIdx - len(MarkerJustification)
		}
		p.Justification = strings.TrimSpace(rest[:end])
	}
	if srcIdx >= 0 {
		rest := body[srcIdx+len(MarkerSources):]
		end := len(rest)
		if justIdx > srcIdx {
			end = justIdx - srcIdx - len(MarkerSources)
		}
		p.Sources = strings.TrimSpace(rest[:end])
	}
	return p, nil
}

// firstOf returns the smallest non-negative index, or def.
func firstOf(def int, idx ...int) int {
	out := def
	for _, i := range idx {
		if i >= 0 && i < out {
			out = i
		}
	}
	return out
}
