// File: internal/grounding/grounder.go

// Package grounding maps visually perceived elements onto concrete
// interactable DOM nodes through a strictly prioritized heuristic cascade:
// label-anchored structure first, combined geometry+text score second,
// geometry-only fallback third. No-match is a valid terminal outcome, not
// an error.
package grounding

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/policy"
)

// Grounder enriches IdentifiedElements with DOM paths and grounding
// confidence. Ground is deterministic for a fixed input pair.
type Grounder struct {
	policy *policy.Policy
	logger *zap.Logger
}

// NewGrounder wires the grounding stage.
func NewGrounder(pol *policy.Policy, logger *zap.Logger) (*Grounder, error) {
	if pol == nil {
		pol = policy.Default()
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Grounder{policy: pol, logger: logger.Named("grounding")}, nil
}

// Ground resolves each element in place against the page's DOM inventory.
// Elements that cannot be grounded keep an empty DOMPathPrimary and zero
// confidence. An empty or unusable inventory is a contract violation.
func (g *Grounder) Ground(elements []schemas.IdentifiedElement, snapshot *schemas.PageSnapshot) error {
	if snapshot == nil || len(snapshot.Inventory) == 0 {
		return schemas.NewPipelineError(schemas.ErrCodeInvalidInventory, "grounding",
			"DOM inventory is empty", nil)
	}
	usable := 0
	for i := range snapshot.Inventory {
		if snapshot.Inventory[i].XPath != "" {
			usable++
		}
	}
	if usable == 0 {
		return schemas.NewPipelineError(schemas.ErrCodeInvalidInventory, "grounding",
			"DOM inventory has no addressable elements", nil)
	}

	labels, err := buildLabelIndex(snapshot.DOM)
	if err != nil {
		// A DOM that fails to parse disables tier 1 but the geometric tiers
		// still apply.
		g.logger.Warn("DOM parse failed; label-anchored tier disabled", zap.Error(err))
		labels = &labelIndex{}
	}

	claimed := make(map[string]bool, len(elements))
	tierCounts := [4]int{}
	for i := range elements {
		tier := g.groundOne(&elements[i], snapshot.Inventory, labels, claimed)
		tierCounts[tier]++
	}

	g.logger.Info("Grounding complete",
		zap.Int("elements", len(elements)),
		zap.Int("label_anchored", tierCounts[1]),
		zap.Int("combined_score", tierCounts[2]),
		zap.Int("geometric_fallback", tierCounts[3]),
		zap.Int("unmatched", tierCounts[0]),
	)
	return nil
}

// groundOne runs the cascade for a single element and reports the winning
// tier (0 for no match). Claimed paths are skipped so two visual elements
// never ground to the same DOM node.
func (g *Grounder) groundOne(el *schemas.IdentifiedElement, inventory []schemas.DomElementDescriptor, labels *labelIndex, claimed map[string]bool) int {
	// Tier 1: label-anchored structural match.
	if d, labelPath, ok := g.labelAnchored(el, inventory, labels, claimed); ok {
		confidence := policy.LabelAnchoredConfidence
		if el.ElementBBox.IoU(d.RenderedBBox) >= g.policy.IoUStrong {
			confidence = 0.95
		}
		g.assign(el, d, labelPath, confidence, claimed)
		return 1
	}

	// Tier 2: combined geometry + text score.
	if d, score, ok := g.combinedScore(el, inventory, claimed); ok {
		g.assign(el, d, "", score, claimed)
		return 2
	}

	// Tier 3: geometry-only fallback with capped confidence.
	if d, iou, ok := g.geometricFallback(el, inventory, claimed); ok {
		g.assign(el, d, "", g.policy.FallbackConfidence(iou), claimed)
		return 3
	}

	// Tier 4: no match. A valid outcome, surfaced later as clarification.
	el.DOMPathPrimary = ""
	el.ConfidenceGrounding = 0
	return 0
}

func (g *Grounder) assign(el *schemas.IdentifiedElement, d *schemas.DomElementDescriptor, labelPath string, confidence float64, claimed map[string]bool) {
	el.DOMPathPrimary = d.XPath
	el.DOMPathLabel = labelPath
	el.ConfidenceGrounding = confidence
	claimed[d.XPath] = true
}

// labelAnchored tries to link the visual label to a <label> element and
// follow its structural association (for->id, aria-labelledby, wrapped
// descendant) to a type-compatible interactable descriptor.
func (g *Grounder) labelAnchored(el *schemas.IdentifiedElement, inventory []schemas.DomElementDescriptor, labels *labelIndex, claimed map[string]bool) (*schemas.DomElementDescriptor, string, bool) {
	if el.VisualLabel == "" {
		return nil, "", false
	}
	for _, entry := range labels.matching(el.VisualLabel) {
		// for="..." -> element id.
		if entry.forID != "" {
			if d := g.findUsable(inventory, claimed, el, func(d *schemas.DomElementDescriptor) bool {
				return d.Attr("id") == entry.forID
			}); d != nil {
				return d, entry.xpath, true
			}
		}
		// aria-labelledby back-reference to the label's own id.
		if entry.labelID != "" {
			if d := g.findUsable(inventory, claimed, el, func(d *schemas.DomElementDescriptor) bool {
				return containsToken(d.Attr("aria-labelledby"), entry.labelID)
			}); d != nil {
				return d, entry.xpath, true
			}
		}
		// Label wrapping the control.
		if len(entry.descendantIDs) > 0 || len(entry.descendantNames) > 0 {
			if d := g.findUsable(inventory, claimed, el, func(d *schemas.DomElementDescriptor) bool {
				id, name := d.Attr("id"), d.Attr("name")
				return (id != "" && containsString(entry.descendantIDs, id)) ||
					(name != "" && containsString(entry.descendantNames, name))
			}); d != nil {
				return d, entry.xpath, true
			}
		}
	}
	return nil, "", false
}

// findUsable returns the first inventory descriptor in order that satisfies
// the predicate, is type-compatible, interactable, and unclaimed.
func (g *Grounder) findUsable(inventory []schemas.DomElementDescriptor, claimed map[string]bool, el *schemas.IdentifiedElement, pred func(*schemas.DomElementDescriptor) bool) *schemas.DomElementDescriptor {
	for i := range inventory {
		d := &inventory[i]
		if d.XPath == "" || claimed[d.XPath] || !d.IsInteractable {
			continue
		}
		if !typeCompatible(el.PredictedType, d) {
			continue
		}
		if pred(d) {
			return d
		}
	}
	return nil
}

// combinedScore scans type-compatible candidates above the IoU floor and
// picks the best weighted IoU+text score above the acceptance bar. Ties keep
// the earliest inventory entry, which keeps the pass deterministic.
func (g *Grounder) combinedScore(el *schemas.IdentifiedElement, inventory []schemas.DomElementDescriptor, claimed map[string]bool) (*schemas.DomElementDescriptor, float64, bool) {
	var best *schemas.DomElementDescriptor
	bestScore := 0.0
	for i := range inventory {
		d := &inventory[i]
		if d.XPath == "" || claimed[d.XPath] || !d.IsInteractable || !d.IsDisplayed {
			continue
		}
		if !typeCompatible(el.PredictedType, d) {
			continue
		}
		iou := el.ElementBBox.IoU(d.RenderedBBox)
		if iou < g.policy.IoUCandidateFloor {
			continue
		}
		score := g.policy.CombinedScore(iou, bestTextSimilarity(el.VisualLabel, d))
		if score > bestScore {
			best, bestScore = d, score
		}
	}
	if best == nil || !g.policy.AcceptCombined(bestScore) {
		return nil, 0, false
	}
	return best, bestScore, true
}

// geometricFallback picks the highest-IoU type-compatible candidate above
// the stricter fallback floor.
func (g *Grounder) geometricFallback(el *schemas.IdentifiedElement, inventory []schemas.DomElementDescriptor, claimed map[string]bool) (*schemas.DomElementDescriptor, float64, bool) {
	var best *schemas.DomElementDescriptor
	bestIoU := 0.0
	for i := range inventory {
		d := &inventory[i]
		if d.XPath == "" || claimed[d.XPath] || !d.IsInteractable || !d.IsDisplayed {
			continue
		}
		if !typeCompatible(el.PredictedType, d) {
			continue
		}
		if iou := el.ElementBBox.IoU(d.RenderedBBox); iou > bestIoU {
			best, bestIoU = d, iou
		}
	}
	if best == nil || bestIoU < g.policy.IoUFallbackFloor {
		return nil, 0, false
	}
	return best, bestIoU, true
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func containsToken(attr, token string) bool {
	for _, field := range strings.Fields(attr) {
		if field == token {
			return true
		}
	}
	return false
}
