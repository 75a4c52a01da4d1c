// File: internal/semantic/matcher.go
package semantic

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/llmutil"
	"github.com/xkilldash9x/formpilot/internal/policy"
)

const matcherSystemPrompt = `You are a form-field classification engine. You map a web form field onto
exactly one key from a fixed vocabulary. You never invent keys. If no key in
the vocabulary describes the field, you answer with the designated
"unspecified" key. You respond with strict JSON only.`

// matchResponse is the JSON shape required from the model.
type matchResponse struct {
	SemanticKey string  `json:"semantic_key"`
	Confidence  float64 `json:"confidence"`
	Reasoning   string  `json:"reasoning,omitempty"`
}

// Matcher classifies grounded fields against an injected schema.
type Matcher struct {
	schema *Schema
	llm    schemas.LLMClient
	policy *policy.Policy
	logger *zap.Logger
}

// NewMatcher wires the semantic matching stage.
func NewMatcher(schema *Schema, llm schemas.LLMClient, pol *policy.Policy, logger *zap.Logger) (*Matcher, error) {
	if schema == nil {
		return nil, fmt.Errorf("semantic schema is required")
	}
	if llm == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	if pol == nil {
		pol = policy.Default()
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Matcher{schema: schema, llm: llm, policy: pol, logger: logger.Named("semantic")}, nil
}

// Schema exposes the injected vocabulary for downstream stages (QA needs
// the question subset).
func (m *Matcher) Schema() *Schema { return m.schema }

// MatchAll assigns semantic keys in place. Buttons and other navigation
// controls are skipped; they carry no profile meaning. A single field's
// model failure does not abort the batch: the field keeps an empty key and
// is later surfaced for clarification. Only total failure of every call
// escalates as a service error.
func (m *Matcher) MatchAll(ctx context.Context, elements []schemas.IdentifiedElement, pageContext string) error {
	attempted, failed := 0, 0
	for i := range elements {
		el := &elements[i]
		if el.PredictedType == schemas.ElementTypeButton || !el.IsGrounded() {
			continue
		}
		attempted++
		if err := m.matchOne(ctx, el, pageContext); err != nil {
			if ctx.Err() != nil {
				return schemas.NewPipelineError(schemas.ErrCodeSemanticService, "semantic",
					"matching interrupted", ctx.Err())
			}
			failed++
			m.logger.Warn("Semantic match failed for field; flagged for clarification",
				zap.String("field_id", el.ID),
				zap.String("label", el.VisualLabel),
				zap.Error(err),
			)
			el.SemanticKey = ""
			el.ConfidenceSemantic = 0
		}
	}

	if attempted > 0 && failed == attempted {
		return schemas.NewPipelineError(schemas.ErrCodeSemanticService, "semantic",
			fmt.Sprintf("all %d classification calls failed", attempted), nil)
	}

	m.logger.Info("Semantic matching complete",
		zap.Int("attempted", attempted),
		zap.Int("failed", failed),
	)
	return nil
}

func (m *Matcher) matchOne(ctx context.Context, el *schemas.IdentifiedElement, pageContext string) error {
	raw, err := m.llm.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: matcherSystemPrompt,
		UserPrompt:   m.buildPrompt(el, pageContext),
		Tier:         schemas.TierFast,
		Options: schemas.GenerationOptions{
			Temperature:     0.0,
			ForceJSONFormat: true,
		},
	})
	if err != nil {
		return fmt.Errorf("classification call: %w", err)
	}

	parsed, err := llmutil.ParseJSONResponse[matchResponse](raw)
	if err != nil {
		return fmt.Errorf("classification response: %w", err)
	}

	key := strings.TrimSpace(parsed.SemanticKey)
	confidence := clamp01(parsed.Confidence)

	// Closed-vocabulary enforcement: an invented key is treated as "the
	// model could not place this field", not as a soft match.
	if !m.schema.IsValid(key) {
		m.logger.Debug("Model returned out-of-vocabulary key, coercing to sentinel",
			zap.String("field_id", el.ID),
			zap.String("returned_key", key),
		)
		key = SentinelKey
		confidence = 0.1
	}

	el.SemanticKey = key
	el.ConfidenceSemantic = confidence
	return nil
}

func (m *Matcher) buildPrompt(el *schemas.IdentifiedElement, pageContext string) string {
	var sb strings.Builder
	sb.WriteString("Classify this form field.\n\n")
	fmt.Fprintf(&sb, "Field label: %q\n", el.VisualLabel)
	fmt.Fprintf(&sb, "Field type: %s\n", el.PredictedType)
	if len(el.Options) > 0 {
		fmt.Fprintf(&sb, "Selectable options: %s\n", strings.Join(el.Options, " | "))
	}
	if pageContext != "" {
		fmt.Fprintf(&sb, "Surrounding page context: %s\n", pageContext)
	}

	sb.WriteString("\nVocabulary (key: meaning):\n")
	for _, k := range m.schema.Keys {
		fmt.Fprintf(&sb, "- %s: %s\n", k.Key, k.Description)
	}
	fmt.Fprintf(&sb, "- %s: none of the above keys fit this field\n", SentinelKey)

	sb.WriteString(`
Rules:
- "semantic_key" MUST be exactly one key from the vocabulary above.
- When several keys could fit (e.g. an unqualified "Email"), pick the most
  general key for the category unless the context points elsewhere.
- If nothing fits, use the "none of the above" key. Never invent a key.

Respond with JSON: {"semantic_key": "...", "confidence": 0.0-1.0, "reasoning": "one short sentence"}`)
	return sb.String()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
