// File: api/schemas/schemas.go
package schemas

import (
	"strings"
	"time"
)

// -- Geometry --

// BBox is a rectangle in page coordinates, [x_min, y_min, x_max, y_max].
// Coordinates may be pixel values or normalized; all comparisons within a
// single page cycle use the same space, so the math is unit-agnostic.
type BBox struct {
	XMin float64 `json:"x_min"`
	YMin float64 `json:"y_min"`
	XMax float64 `json:"x_max"`
	YMax float64 `json:"y_max"`
}

// Valid reports whether the box has positive area.
func (b BBox) Valid() bool {
	return b.XMax > b.XMin && b.YMax > b.YMin
}

// Area returns the box area, or 0 for a degenerate box.
func (b BBox) Area() float64 {
	if !b.Valid() {
		return 0
	}
	return (b.XMax - b.XMin) * (b.YMax - b.YMin)
}

// Center returns the midpoint of the box.
func (b BBox) Center() (x, y float64) {
	return (b.XMin + b.XMax) / 2, (b.YMin + b.YMax) / 2
}

// IoU computes intersection-over-union with another box. Degenerate boxes
// yield 0.
func (b BBox) IoU(o BBox) float64 {
	ix := min(b.XMax, o.XMax) - max(b.XMin, o.XMin)
	iy := min(b.YMax, o.YMax) - max(b.YMin, o.YMin)
	if ix <= 0 || iy <= 0 {
		return 0
	}
	inter := ix * iy
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// -- Element model --

// ElementType is the bounded vocabulary of field types the vision model is
// allowed to predict.
type ElementType string

const (
	ElementTypeText     ElementType = "text_input"
	ElementTypeTextarea ElementType = "textarea"
	ElementTypeEmail    ElementType = "email_input"
	ElementTypePhone    ElementType = "phone_input"
	ElementTypeDropdown ElementType = "dropdown"
	ElementTypeCheckbox ElementType = "checkbox"
	ElementTypeRadio    ElementType = "radio_button"
	ElementTypeButton   ElementType = "button"
	ElementTypeFile     ElementType = "file_upload"
	ElementTypeOther    ElementType = "other"
)

// KnownElementTypes lists every accepted ElementType value, in the order the
// perception prompt presents them.
var KnownElementTypes = []ElementType{
	ElementTypeText, ElementTypeTextarea, ElementTypeEmail, ElementTypePhone,
	ElementTypeDropdown, ElementTypeCheckbox, ElementTypeRadio,
	ElementTypeButton, ElementTypeFile, ElementTypeOther,
}

// ParseElementType maps a raw model string onto the bounded vocabulary,
// falling back to ElementTypeOther for anything unrecognized.
func ParseElementType(raw string) ElementType {
	normalized := ElementType(strings.ToLower(strings.TrimSpace(raw)))
	for _, t := range KnownElementTypes {
		if normalized == t {
			return t
		}
	}
	return ElementTypeOther
}

// IdentifiedElement is a visually perceived form field or navigation control.
// Perception creates it; Grounding fills DOMPathPrimary/DOMPathLabel and
// ConfidenceGrounding; Semantic Matching fills SemanticKey and
// ConfidenceSemantic. It lives for one page cycle only.
type IdentifiedElement struct {
	ID                  string      `json:"id"`
	VisualLabel         string      `json:"visual_label"`
	PredictedType       ElementType `json:"predicted_type"`
	ElementBBox         BBox        `json:"element_bbox"`
	LabelBBox           *BBox       `json:"label_bbox,omitempty"`
	DOMPathPrimary      string      `json:"dom_path_primary,omitempty"`
	DOMPathLabel        string      `json:"dom_path_label,omitempty"`
	SemanticKey         string      `json:"semantic_key,omitempty"`
	ConfidenceGrounding float64     `json:"confidence_grounding"`
	ConfidenceSemantic  float64     `json:"confidence_semantic"`
	Options             []string    `json:"options,omitempty"`
}

// IsGrounded reports whether grounding resolved a concrete DOM target.
func (e *IdentifiedElement) IsGrounded() bool {
	return e.DOMPathPrimary != ""
}

// DomElementDescriptor is one interactable element from the page inspection
// inventory. Produced fresh on every capture and never mutated.
type DomElementDescriptor struct {
	XPath          string            `json:"xpath"`
	TagName        string            `json:"tag_name"`
	TextContent    string            `json:"text_content"`
	RenderedBBox   BBox              `json:"rendered_bbox"`
	Attributes     map[string]string `json:"attributes"`
	IsDisplayed    bool              `json:"is_displayed"`
	IsInteractable bool              `json:"is_interactable"`
}

// Attr returns the named attribute or "".
func (d *DomElementDescriptor) Attr(name string) string {
	if d.Attributes == nil {
		return ""
	}
	return d.Attributes[name]
}

// PageSnapshot is everything the browser driver captured for one page.
type PageSnapshot struct {
	URL        string                 `json:"url"`
	Screenshot []byte                 `json:"-"`
	DOM        string                 `json:"-"`
	Inventory  []DomElementDescriptor `json:"inventory"`
	CapturedAt time.Time              `json:"captured_at"`
}

// JobContext describes the position being applied for. Threaded into the
// question-answering prompts.
type JobContext struct {
	Title       string `json:"title"`
	Company     string `json:"company"`
	Description string `json:"description"`
	URL         string `json:"url"`
}

// -- Actions --

// ActionType enumerates the executable browser operations.
type ActionType string

const (
	ActionFillText        ActionType = "FILL_TEXT"
	ActionClick           ActionType = "CLICK"
	ActionSelectOption    ActionType = "SELECT_OPTION"
	ActionCheck           ActionType = "CHECK"
	ActionUncheck         ActionType = "UNCHECK"
	ActionUploadFile      ActionType = "UPLOAD_FILE"
	ActionNavigateBack    ActionType = "NAVIGATE_BACK"
	ActionNavigateForward ActionType = "NAVIGATE_FORWARD"
)

// ActionSource records where an action's value came from, in precedence
// order: user override beats QA draft beats profile beats default.
type ActionSource string

const (
	SourceProfile      ActionSource = "PROFILE"
	SourceQADraft      ActionSource = "QA_DRAFT"
	SourceDefault      ActionSource = "DEFAULT"
	SourceUserOverride ActionSource = "USER_OVERRIDE"
)

// ActionDetail is one executable browser action. OriginFieldID back-references
// the IdentifiedElement that produced it; the reference is informational and
// non-owning.
type ActionDetail struct {
	Type          ActionType   `json:"action_type"`
	TargetDOMPath string       `json:"target_dom_path"`
	Value         string       `json:"value,omitempty"`
	Source        ActionSource `json:"source"`
	OriginFieldID string       `json:"origin_field_id,omitempty"`
}

// ExecStatus is the typed outcome of executing a single action.
type ExecStatus string

const (
	ExecSuccess                ExecStatus = "success"
	ExecFailureNotFound        ExecStatus = "failure_not_found"
	ExecFailureNotInteractable ExecStatus = "failure_not_interactable"
	ExecFailureTimeout         ExecStatus = "failure_timeout"
)

// Failed reports whether the status is any of the failure values.
func (s ExecStatus) Failed() bool {
	return s != ExecSuccess
}

// ExecutionResult is the browser driver's report for one executed action.
// Driver failures surface here as typed statuses, never as raw errors
// crossing into pipeline logic.
type ExecutionResult struct {
	Status       ExecStatus    `json:"status"`
	ErrorDetails string        `json:"error_details,omitempty"`
	NewSnapshot  *PageSnapshot `json:"-"`
}
