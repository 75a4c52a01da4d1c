// File: internal/policy/policy.go

// Package policy centralizes every confidence threshold and grounding
// weight the pipeline consults. Grounding, semantic matching, and the
// orchestrator's escalation logic all branch through this one module
// instead of inlining magic numbers per call site.
package policy

import (
	"fmt"

	"github.com/xkilldash9x/formpilot/internal/config"
)

// ConfidenceLevel is a coarse band derived from a raw [0,1] score.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// LabelAnchoredConfidence is the floor assigned to a tier-1 (label-anchored)
// grounding match. Tier-1 matches are structural, not probabilistic, so the
// value sits well inside the high band.
const LabelAnchoredConfidence = 0.9

// Policy holds the resolved thresholds for one application attempt.
type Policy struct {
	// Grounding cascade parameters.
	WeightIoU         float64
	WeightText        float64
	IoUCandidateFloor float64
	IoUStrong         float64
	IoUFallbackFloor  float64
	FallbackPenalty   float64

	// Shared confidence bands.
	highBand   float64
	mediumBand float64
}

// FromConfig builds a Policy from validated configuration.
func FromConfig(cfg config.PipelineConfig) (*Policy, error) {
	if cfg.Confidence.High <= cfg.Confidence.Medium {
		return nil, fmt.Errorf("high band (%.2f) must exceed medium band (%.2f)",
			cfg.Confidence.High, cfg.Confidence.Medium)
	}
	return &Policy{
		WeightIoU:         cfg.Grounding.WeightIoU,
		WeightText:        cfg.Grounding.WeightText,
		IoUCandidateFloor: cfg.Grounding.IoUCandidateFloor,
		IoUStrong:         cfg.Grounding.IoUStrong,
		IoUFallbackFloor:  cfg.Grounding.IoUFallbackFloor,
		FallbackPenalty:   cfg.Grounding.FallbackPenalty,
		highBand:          cfg.Confidence.High,
		mediumBand:        cfg.Confidence.Medium,
	}, nil
}

// Default returns the policy used when no configuration override exists.
func Default() *Policy {
	return &Policy{
		WeightIoU:         0.6,
		WeightText:        0.4,
		IoUCandidateFloor: 0.1,
		IoUStrong:         0.5,
		IoUFallbackFloor:  0.6,
		FallbackPenalty:   0.7,
		highBand:          0.75,
		mediumBand:        0.5,
	}
}

// Level maps a raw score onto the shared confidence bands.
func (p *Policy) Level(score float64) ConfidenceLevel {
	switch {
	case score >= p.highBand:
		return ConfidenceHigh
	case score >= p.mediumBand:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// AcceptCombined reports whether a tier-2 combined grounding score clears
// the acceptance bar (the medium band).
func (p *Policy) AcceptCombined(score float64) bool {
	return score >= p.mediumBand
}

// NeedsClarification reports whether a score is too weak to act on without
// human input.
func (p *Policy) NeedsClarification(score float64) bool {
	return p.Level(score) == ConfidenceLow
}

// CombinedScore computes the weighted tier-2 grounding score.
func (p *Policy) CombinedScore(iou, textSim float64) float64 {
	return p.WeightIoU*iou + p.WeightText*textSim
}

// FallbackConfidence computes the capped confidence for a tier-3
// geometric-only match.
func (p *Policy) FallbackConfidence(iou float64) float64 {
	return iou * p.FallbackPenalty
}
