// File: internal/perception/perceiver_test.go
package perception

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

type stubLLM struct {
	response string
	err      error
	lastReq  schemas.GenerationRequest
}

func (s *stubLLM) Generate(_ context.Context, req schemas.GenerationRequest) (string, error) {
	s.lastReq = req
	return s.response, s.err
}

func (s *stubLLM) Close() error { return nil }

func snapshotWithScreenshot() *schemas.PageSnapshot {
	return &schemas.PageSnapshot{
		URL:        "https://jobs.example.com/apply",
		Screenshot: []byte{0x89, 0x50, 0x4e, 0x47},
	}
}

func withSequentialIDs(t *testing.T) {
	t.Helper()
	orig := uuidNewString
	n := 0
	uuidNewString = func() string {
		n++
		return fmt.Sprintf("el-%d", n)
	}
	t.Cleanup(func() { uuidNewString = orig })
}

func TestPerceive(t *testing.T) {
	ctx := context.Background()

	t.Run("parses a well-formed vision response", func(t *testing.T) {
		withSequentialIDs(t)
		llm := &stubLLM{response: `[
			{"visual_label": "First Name", "element_type": "text_input", "element_bbox": [100, 50, 300, 80], "label_bbox": [100, 30, 180, 48], "options": null},
			{"visual_label": "Submit", "element_type": "button", "element_bbox": [100, 200, 200, 240], "label_bbox": null, "options": null}
		]`}
		p, err := NewPerceiver(llm, zap.NewNop())
		require.NoError(t, err)

		elements, err := p.Perceive(ctx, snapshotWithScreenshot())
		require.NoError(t, err)
		require.Len(t, elements, 2)

		assert.Equal(t, "el-1", elements[0].ID)
		assert.Equal(t, "First Name", elements[0].VisualLabel)
		assert.Equal(t, schemas.ElementTypeText, elements[0].PredictedType)
		require.NotNil(t, elements[0].LabelBBox)
		assert.Equal(t, schemas.ElementTypeButton, elements[1].PredictedType)
		assert.Nil(t, elements[1].LabelBBox)

		// Grounding and semantic fields stay empty at this stage.
		assert.False(t, elements[0].IsGrounded())
		assert.Empty(t, elements[0].SemanticKey)
	})

	t.Run("screenshot travels with the request", func(t *testing.T) {
		llm := &stubLLM{response: `[]`}
		p, err := NewPerceiver(llm, zap.NewNop())
		require.NoError(t, err)

		snapshot := snapshotWithScreenshot()
		_, err = p.Perceive(ctx, snapshot)
		require.NoError(t, err)
		require.Len(t, llm.lastReq.Images, 1)
		assert.Equal(t, snapshot.Screenshot, llm.lastReq.Images[0])
		assert.Equal(t, schemas.TierPowerful, llm.lastReq.Tier)
		assert.True(t, llm.lastReq.Options.ForceJSONFormat)
	})

	t.Run("degenerate boxes are dropped, not fatal", func(t *testing.T) {
		withSequentialIDs(t)
		llm := &stubLLM{response: `[
			{"visual_label": "Bad", "element_type": "text_input", "element_bbox": [300, 80, 100, 50]},
			{"visual_label": "Good", "element_type": "text_input", "element_bbox": [100, 50, 300, 80]}
		]`}
		p, err := NewPerceiver(llm, zap.NewNop())
		require.NoError(t, err)

		elements, err := p.Perceive(ctx, snapshotWithScreenshot())
		require.NoError(t, err)
		require.Len(t, elements, 1)
		assert.Equal(t, "Good", elements[0].VisualLabel)
	})

	t.Run("unknown type falls back to other", func(t *testing.T) {
		withSequentialIDs(t)
		llm := &stubLLM{response: `[{"visual_label": "X", "element_type": "slider", "element_bbox": [0, 0, 10, 10]}]`}
		p, err := NewPerceiver(llm, zap.NewNop())
		require.NoError(t, err)

		elements, err := p.Perceive(ctx, snapshotWithScreenshot())
		require.NoError(t, err)
		assert.Equal(t, schemas.ElementTypeOther, elements[0].PredictedType)
	})

	t.Run("model call failure is a retryable service error", func(t *testing.T) {
		llm := &stubLLM{err: errors.New("429 too many requests")}
		p, err := NewPerceiver(llm, zap.NewNop())
		require.NoError(t, err)

		_, err = p.Perceive(ctx, snapshotWithScreenshot())
		require.Error(t, err)
		assert.Equal(t, schemas.ErrCodePerceptionService, schemas.CodeOf(err))
	})

	t.Run("unparseable output is a malformed-output error", func(t *testing.T) {
		llm := &stubLLM{response: "I see a form with several fields."}
		p, err := NewPerceiver(llm, zap.NewNop())
		require.NoError(t, err)

		_, err = p.Perceive(ctx, snapshotWithScreenshot())
		require.Error(t, err)
		assert.Equal(t, schemas.ErrCodeMalformedPerception, schemas.CodeOf(err))
	})

	t.Run("missing screenshot is rejected", func(t *testing.T) {
		p, err := NewPerceiver(&stubLLM{}, zap.NewNop())
		require.NoError(t, err)

		_, err = p.Perceive(ctx, &schemas.PageSnapshot{URL: "https://x"})
		require.Error(t, err)
	})
}
