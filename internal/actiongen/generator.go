// File: internal/actiongen/generator.go

// Package actiongen turns grounded, semantically matched elements plus
// resolved values into an ordered, executable browser action sequence.
package actiongen

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

// Expected next-page hints attached to the navigation choice. These are
// corroborating evidence for outcome evaluation, never a hard pass/fail
// signal.
const (
	ExpectConfirmationOrNext = "confirmation_page_or_next_step"
	ExpectNextFormStep       = "next_form_step"
)

var submitKeywords = []string{"submit", "apply", "send application", "finish", "complete application"}
var nextKeywords = []string{"next", "continue", "proceed", "save and continue", "review"}

// SkippedField records a field no value could be resolved for. Skips are
// surfaced, never silently dropped.
type SkippedField struct {
	FieldID     string
	VisualLabel string
	SemanticKey string
	Reason      string
}

// PageActions is the generation result for one page.
type PageActions struct {
	Fills      []schemas.ActionDetail
	Navigation *schemas.ActionDetail
	// ExpectedNextPageType hints what executing Navigation should lead to.
	ExpectedNextPageType string
	Skipped              []SkippedField
	// Incomplete is set when no field resolved a value, so navigating away
	// would abandon an untouched form.
	Incomplete bool
}

// All returns fills followed by the navigation action, the only order the
// batch may execute in.
func (p *PageActions) All() []schemas.ActionDetail {
	out := make([]schemas.ActionDetail, 0, len(p.Fills)+1)
	out = append(out, p.Fills...)
	if p.Navigation != nil {
		out = append(out, *p.Navigation)
	}
	return out
}

// Generator is the action-generation stage.
type Generator struct {
	logger *zap.Logger
}

// NewGenerator wires the action generation stage.
func NewGenerator(logger *zap.Logger) (*Generator, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Generator{logger: logger.Named("actiongen")}, nil
}

// Generate builds the page's action sequence. The profile passed in already
// carries the QA overlay for this page; overrides map field IDs to values
// the human supplied during clarification and win over everything else.
// Rejected maps target DOM paths to values the page's validation already
// refused; those values are never proposed again for the same target.
func (g *Generator) Generate(elements []schemas.IdentifiedElement, profile *schemas.UserProfile, overrides, rejected map[string]string) *PageActions {
	result := &PageActions{}

	var fields, buttons []*schemas.IdentifiedElement
	for i := range elements {
		el := &elements[i]
		if !el.IsGrounded() {
			continue
		}
		if el.PredictedType == schemas.ElementTypeButton {
			buttons = append(buttons, el)
			continue
		}
		fields = append(fields, el)
	}

	// Fill order follows page position: top-to-bottom, then left-to-right.
	sort.SliceStable(fields, func(i, j int) bool {
		if fields[i].ElementBBox.YMin != fields[j].ElementBBox.YMin {
			return fields[i].ElementBBox.YMin < fields[j].ElementBBox.YMin
		}
		return fields[i].ElementBBox.XMin < fields[j].ElementBBox.XMin
	})

	for _, el := range fields {
		value, source, ok := resolveValue(el, profile, overrides, rejected)
		if !ok {
			reason := "skipped: no data"
			if rejected[el.DOMPathPrimary] != "" {
				reason = "skipped: value rejected by page validation"
			}
			result.Skipped = append(result.Skipped, SkippedField{
				FieldID:     el.ID,
				VisualLabel: el.VisualLabel,
				SemanticKey: el.SemanticKey,
				Reason:      reason,
			})
			continue
		}
		if action := buildFieldAction(el, value, source); action != nil {
			result.Fills = append(result.Fills, *action)
		}
	}

	if len(result.Fills) == 0 && len(fields) > 0 {
		// Nothing resolved; navigating would abandon the page.
		result.Incomplete = true
		g.logger.Warn("No field values resolved; page flagged incomplete",
			zap.Int("fields", len(fields)),
			zap.Int("skipped", len(result.Skipped)),
		)
		return result
	}

	result.Navigation, result.ExpectedNextPageType = chooseNavigation(buttons)

	g.logger.Info("Action generation complete",
		zap.Int("fills", len(result.Fills)),
		zap.Int("skipped", len(result.Skipped)),
		zap.Bool("has_navigation", result.Navigation != nil),
	)
	return result
}

// resolveValue applies the precedence chain: user override, then QA draft /
// profile (both live in the overlaid profile), then an options heuristic
// for choice fields. Values the page already rejected are never repeated;
// only a user override may re-fill a rejected target.
func resolveValue(el *schemas.IdentifiedElement, profile *schemas.UserProfile, overrides, rejected map[string]string) (string, schemas.ActionSource, bool) {
	if v, ok := overrides[el.ID]; ok && v != "" {
		return v, schemas.SourceUserOverride, true
	}

	if el.SemanticKey != "" && el.SemanticKey != sentinelKey {
		if v, ok := profile.Lookup(el.SemanticKey); ok {
			source := schemas.SourceProfile
			if strings.HasPrefix(el.SemanticKey, "application.") {
				// Application-scoped values only exist via the QA overlay.
				source = schemas.SourceQADraft
			}
			if isChoiceField(el.PredictedType) && len(el.Options) > 0 {
				if opt, ok := bestOption(v, el.Options); ok && opt != rejected[el.DOMPathPrimary] {
					return opt, source, true
				}
				return "", "", false
			}
			if v == rejected[el.DOMPathPrimary] {
				return "", "", false
			}
			return v, source, true
		}
	}

	// Choice fields with an obvious default-free single option stay
	// untouched; anything else without data is skipped.
	return "", "", false
}

// sentinelKey mirrors the semantic package's sentinel without importing it;
// the value is part of the cross-stage contract.
const sentinelKey = "system_internal.other_unspecified_field"

func isChoiceField(t schemas.ElementType) bool {
	return t == schemas.ElementTypeDropdown || t == schemas.ElementTypeRadio || t == schemas.ElementTypeCheckbox
}

// bestOption matches a profile value against the field's visible options:
// exact normalized match first, then containment either way.
func bestOption(value string, options []string) (string, bool) {
	norm := func(s string) string {
		return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(s))), " ")
	}
	nv := norm(value)
	if nv == "" {
		return "", false
	}
	for _, opt := range options {
		if norm(opt) == nv {
			return opt, true
		}
	}
	for _, opt := range options {
		no := norm(opt)
		if strings.Contains(no, nv) || strings.Contains(nv, no) {
			return opt, true
		}
	}
	return "", false
}

func buildFieldAction(el *schemas.IdentifiedElement, value string, source schemas.ActionSource) *schemas.ActionDetail {
	action := &schemas.ActionDetail{
		TargetDOMPath: el.DOMPathPrimary,
		Value:         value,
		Source:        source,
		OriginFieldID: el.ID,
	}
	switch el.PredictedType {
	case schemas.ElementTypeDropdown:
		action.Type = schemas.ActionSelectOption
	case schemas.ElementTypeCheckbox:
		if isAffirmative(value) {
			action.Type = schemas.ActionCheck
		} else {
			action.Type = schemas.ActionUncheck
		}
		action.Value = ""
	case schemas.ElementTypeRadio:
		action.Type = schemas.ActionCheck
	case schemas.ElementTypeFile:
		action.Type = schemas.ActionUploadFile
	case schemas.ElementTypeText, schemas.ElementTypeTextarea,
		schemas.ElementTypeEmail, schemas.ElementTypePhone, schemas.ElementTypeOther:
		action.Type = schemas.ActionFillText
	default:
		return nil
	}
	return action
}

func isAffirmative(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "yes", "true", "y", "1", "checked":
		return true
	default:
		return false
	}
}

// chooseNavigation prefers a primary forward control: submit-class labels
// first, then next/continue-class, then the first grounded button.
func chooseNavigation(buttons []*schemas.IdentifiedElement) (*schemas.ActionDetail, string) {
	if len(buttons) == 0 {
		return nil, ""
	}
	if btn := findByKeywords(buttons, submitKeywords); btn != nil {
		return navAction(btn), ExpectConfirmationOrNext
	}
	if btn := findByKeywords(buttons, nextKeywords); btn != nil {
		return navAction(btn), ExpectNextFormStep
	}
	return navAction(buttons[0]), ""
}

func findByKeywords(buttons []*schemas.IdentifiedElement, keywords []string) *schemas.IdentifiedElement {
	for _, btn := range buttons {
		label := strings.ToLower(btn.VisualLabel)
		for _, kw := range keywords {
			if strings.Contains(label, kw) {
				return btn
			}
		}
	}
	return nil
}

func navAction(btn *schemas.IdentifiedElement) *schemas.ActionDetail {
	return &schemas.ActionDetail{
		Type:          schemas.ActionClick,
		TargetDOMPath: btn.DOMPathPrimary,
		Source:        schemas.SourceDefault,
		OriginFieldID: btn.ID,
	}
}
