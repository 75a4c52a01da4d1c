// File: internal/policy/policy_test.go
package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/formpilot/internal/config"
)

func TestConfidenceBands(t *testing.T) {
	p := Default()

	assert.Equal(t, ConfidenceHigh, p.Level(0.75))
	assert.Equal(t, ConfidenceHigh, p.Level(0.92))
	assert.Equal(t, ConfidenceMedium, p.Level(0.5))
	assert.Equal(t, ConfidenceMedium, p.Level(0.74))
	assert.Equal(t, ConfidenceLow, p.Level(0.49))
	assert.Equal(t, ConfidenceLow, p.Level(0))

	assert.False(t, p.NeedsClarification(0.5))
	assert.True(t, p.NeedsClarification(0.3))
}

func TestCombinedScore(t *testing.T) {
	p := Default()

	// 0.6*iou + 0.4*text with default weights.
	assert.InDelta(t, 0.6, p.CombinedScore(1.0, 0.0), 1e-9)
	assert.InDelta(t, 0.4, p.CombinedScore(0.0, 1.0), 1e-9)
	assert.InDelta(t, 0.76, p.CombinedScore(0.6, 1.0), 1e-9)

	assert.True(t, p.AcceptCombined(0.5))
	assert.False(t, p.AcceptCombined(0.49))
}

func TestFallbackConfidence(t *testing.T) {
	p := Default()

	// A perfect geometric-only overlap still lands below tier-1 confidence.
	assert.InDelta(t, 0.7, p.FallbackConfidence(1.0), 1e-9)
	assert.Less(t, p.FallbackConfidence(1.0), LabelAnchoredConfidence)
	assert.InDelta(t, 0.42, p.FallbackConfidence(0.6), 1e-9)
}

func TestFromConfig(t *testing.T) {
	t.Run("rejects inverted bands", func(t *testing.T) {
		cfg := config.PipelineConfig{
			Confidence: config.ConfidenceConfig{High: 0.4, Medium: 0.5},
		}
		_, err := FromConfig(cfg)
		require.Error(t, err)
	})

	t.Run("carries weights through", func(t *testing.T) {
		cfg := config.PipelineConfig{
			Grounding: config.GroundingConfig{
				WeightIoU:         0.7,
				WeightText:        0.3,
				IoUCandidateFloor: 0.1,
				IoUStrong:         0.5,
				IoUFallbackFloor:  0.6,
				FallbackPenalty:   0.7,
			},
			Confidence: config.ConfidenceConfig{High: 0.8, Medium: 0.55},
		}
		p, err := FromConfig(cfg)
		require.NoError(t, err)
		assert.InDelta(t, 0.7, p.WeightIoU, 1e-9)
		assert.Equal(t, ConfidenceMedium, p.Level(0.6))
	})
}
