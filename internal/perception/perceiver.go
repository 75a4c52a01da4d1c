// File: internal/perception/perceiver.go

// Package perception turns a page screenshot into a list of visually
// identified form fields and navigation controls via a vision-capable model.
package perception

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/llmutil"
)

// uuidNewString is a seam for deterministic IDs in tests.
var uuidNewString = uuid.NewString

const systemPrompt = `You are a precise UI analysis engine. You examine a screenshot of a web page
and identify every form field and navigation control a human applicant would
interact with. You respond with strict JSON only, no commentary.`

const userPromptTemplate = `Identify every interactive form element visible in the screenshot:
text inputs, textareas, email/phone inputs, dropdowns, checkboxes, radio
buttons, file-upload controls, and buttons (including Next/Continue/Submit).

Respond with a JSON array. Each entry must contain exactly these keys:
- "visual_label": the human-visible label text for the element ("" if none)
- "element_type": one of [%s]
- "element_bbox": [x_min, y_min, x_max, y_max] pixel coordinates of the element
- "label_bbox": [x_min, y_min, x_max, y_max] of the label text, or null
- "options": array of visible option labels for dropdowns/radio groups, or null

Do not invent elements that are not visible. Do not add keys.`

// perceivedElement mirrors the JSON shape requested from the model.
type perceivedElement struct {
	VisualLabel string    `json:"visual_label"`
	ElementType string    `json:"element_type"`
	ElementBBox []float64 `json:"element_bbox"`
	LabelBBox   []float64 `json:"label_bbox"`
	Options     []string  `json:"options"`
}

// Perceiver is the visual perception stage. It is stateless: Perceive is a
// pure function of the snapshot (plus model behavior).
type Perceiver struct {
	llm    schemas.LLMClient
	logger *zap.Logger
}

// NewPerceiver wires the perception stage.
func NewPerceiver(llm schemas.LLMClient, logger *zap.Logger) (*Perceiver, error) {
	if llm == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Perceiver{llm: llm, logger: logger.Named("perception")}, nil
}

// Perceive runs the vision call and returns the identified elements with
// visual fields populated. Grounding and semantic fields are left empty.
// An empty result is valid; it is not an error.
func (p *Perceiver) Perceive(ctx context.Context, snapshot *schemas.PageSnapshot) ([]schemas.IdentifiedElement, error) {
	if snapshot == nil || len(snapshot.Screenshot) == 0 {
		return nil, schemas.NewPipelineError(schemas.ErrCodePerceptionService, "perception",
			"snapshot has no screenshot", nil)
	}

	typeList := make([]string, len(schemas.KnownElementTypes))
	for i, t := range schemas.KnownElementTypes {
		typeList[i] = string(t)
	}

	req := schemas.GenerationRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   fmt.Sprintf(userPromptTemplate, strings.Join(typeList, ", ")),
		Images:       [][]byte{snapshot.Screenshot},
		Tier:         schemas.TierPowerful,
		Options: schemas.GenerationOptions{
			Temperature:     0.0,
			ForceJSONFormat: true,
		},
	}

	raw, err := p.llm.Generate(ctx, req)
	if err != nil {
		return nil, schemas.NewPipelineError(schemas.ErrCodePerceptionService, "perception",
			"vision model call failed", err)
	}

	parsed, err := llmutil.ParseJSONResponse[[]perceivedElement](raw)
	if err != nil {
		return nil, schemas.NewPipelineError(schemas.ErrCodeMalformedPerception, "perception",
			"no valid structured payload in model output", err)
	}

	elements := make([]schemas.IdentifiedElement, 0, len(*parsed))
	dropped := 0
	for _, pe := range *parsed {
		bbox, ok := toBBox(pe.ElementBBox)
		if !ok {
			dropped++
			continue
		}
		el := schemas.IdentifiedElement{
			ID:            uuidNewString(),
			VisualLabel:   strings.TrimSpace(pe.VisualLabel),
			PredictedType: schemas.ParseElementType(pe.ElementType),
			ElementBBox:   bbox,
			Options:       pe.Options,
		}
		if labelBox, ok := toBBox(pe.LabelBBox); ok {
			el.LabelBBox = &labelBox
		}
		elements = append(elements, el)
	}

	p.logger.Info("Perception complete",
		zap.String("url", snapshot.URL),
		zap.Int("elements", len(elements)),
		zap.Int("dropped_invalid_bbox", dropped),
	)
	return elements, nil
}

func toBBox(coords []float64) (schemas.BBox, bool) {
	if len(coords) != 4 {
		return schemas.BBox{}, false
	}
	b := schemas.BBox{XMin: coords[0], YMin: coords[1], XMax: coords[2], YMax: coords[3]}
	return b, b.Valid()
}
