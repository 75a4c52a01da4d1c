// File: internal/grounding/compat.go
package grounding

import (
	"strings"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

// typeCompatible reports whether a visually predicted element type can
// plausibly be realized by the given DOM descriptor. The relation is
// intentionally permissive within a category (an email field may render as a
// plain text input) and strict across categories (a button never grounds to
// a textarea).
func typeCompatible(predicted schemas.ElementType, d *schemas.DomElementDescriptor) bool {
	tag := strings.ToLower(d.TagName)
	inputType := strings.ToLower(d.Attr("type"))
	role := strings.ToLower(d.Attr("role"))

	switch predicted {
	case schemas.ElementTypeText, schemas.ElementTypeEmail, schemas.ElementTypePhone:
		if tag == "textarea" {
			// A visually small text field can be a one-line textarea.
			return true
		}
		if tag == "input" {
			switch inputType {
			case "", "text", "email", "tel", "search", "url", "number", "date", "password":
				return true
			}
			return false
		}
		return role == "textbox" || hasContentEditable(d)

	case schemas.ElementTypeTextarea:
		if tag == "textarea" {
			return true
		}
		if tag == "input" && (inputType == "" || inputType == "text") {
			return true
		}
		return role == "textbox" || hasContentEditable(d)

	case schemas.ElementTypeDropdown:
		if tag == "select" {
			return true
		}
		return role == "combobox" || role == "listbox"

	case schemas.ElementTypeCheckbox:
		return (tag == "input" && inputType == "checkbox") || role == "checkbox"

	case schemas.ElementTypeRadio:
		return (tag == "input" && inputType == "radio") || role == "radio"

	case schemas.ElementTypeButton:
		if tag == "button" {
			return true
		}
		if tag == "input" && (inputType == "submit" || inputType == "button" || inputType == "image" || inputType == "reset") {
			return true
		}
		if tag == "a" && d.Attr("href") != "" {
			return true
		}
		return role == "button" || role == "link"

	case schemas.ElementTypeFile:
		return tag == "input" && inputType == "file"

	case schemas.ElementTypeOther:
		// Unknown visual types may ground to anything interactable.
		return true

	default:
		return false
	}
}

func hasContentEditable(d *schemas.DomElementDescriptor) bool {
	val := strings.ToLower(strings.TrimSpace(d.Attr("contenteditable")))
	return val == "true" || (val == "" && d.Attributes != nil && hasAttrKey(d, "contenteditable"))
}

func hasAttrKey(d *schemas.DomElementDescriptor, key string) bool {
	_, ok := d.Attributes[key]
	return ok
}

// textCandidates returns the text-bearing values of a descriptor in priority
// order. For button-like inputs the value attribute carries the visible
// caption, so it is promoted to the front.
func textCandidates(d *schemas.DomElementDescriptor) []string {
	ordered := []string{
		d.TextContent,
		d.Attr("aria-label"),
		d.Attr("value"),
		d.Attr("placeholder"),
		d.Attr("id"),
		d.Attr("name"),
	}

	tag := strings.ToLower(d.TagName)
	inputType := strings.ToLower(d.Attr("type"))
	if tag == "input" && (inputType == "submit" || inputType == "button") {
		ordered = []string{
			d.Attr("value"),
			d.TextContent,
			d.Attr("aria-label"),
			d.Attr("id"),
			d.Attr("name"),
		}
	}

	out := ordered[:0]
	for _, s := range ordered {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

// bestTextSimilarity scores the visual label against every text candidate
// and keeps the maximum.
func bestTextSimilarity(visualLabel string, d *schemas.DomElementDescriptor) float64 {
	best := 0.0
	for _, candidate := range textCandidates(d) {
		if sim := textSimilarity(visualLabel, candidate); sim > best {
			best = sim
		}
	}
	return best
}
