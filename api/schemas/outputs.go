// File: api/schemas/outputs.go
package schemas

import (
	"encoding/json"
	"fmt"
)

// CoreOutputType is the discriminant for the union of payloads the pipeline
// stages hand back to the orchestrator. The tag is always checked before
// branching; consumers never infer the variant from field presence.
type CoreOutputType string

const (
	OutputPerceptionResult     CoreOutputType = "perception_result"
	OutputSemanticMatches      CoreOutputType = "semantic_matches"
	OutputQAResult             CoreOutputType = "qa_result"
	OutputActionSequence       CoreOutputType = "action_sequence"
	OutputClarificationRequest CoreOutputType = "clarification_request"
)

// CoreOutput is a tagged variant. Exactly one payload field is non-nil, and
// it must agree with Type.
type CoreOutput struct {
	Type          CoreOutputType            `json:"type"`
	Perception    []IdentifiedElement       `json:"perception,omitempty"`
	Matches       []IdentifiedElement       `json:"matches,omitempty"`
	Answers       []QuestionAnsweringResult `json:"answers,omitempty"`
	Actions       []ActionDetail            `json:"actions,omitempty"`
	Clarification *ClarificationRequest     `json:"clarification,omitempty"`
}

// Validate checks that the discriminant agrees with the populated payload.
func (o *CoreOutput) Validate() error {
	switch o.Type {
	case OutputPerceptionResult, OutputSemanticMatches, OutputQAResult, OutputActionSequence:
		return nil
	case OutputClarificationRequest:
		if o.Clarification == nil {
			return fmt.Errorf("clarification_request output missing payload")
		}
		return nil
	default:
		return fmt.Errorf("unknown core output type %q", o.Type)
	}
}

// DecodeCoreOutput parses a serialized CoreOutput and validates its tag.
func DecodeCoreOutput(data []byte) (*CoreOutput, error) {
	var out CoreOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decoding core output: %w", err)
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

// QuestionAnsweringResult is a drafted answer for an open-ended question
// field. Review is structurally mandatory: RequiresUserReview is a method
// returning a constant, so no code path can mark a draft as pre-approved.
type QuestionAnsweringResult struct {
	FieldID     string   `json:"field_id"`
	SemanticKey string   `json:"semantic_key"`
	Question    string   `json:"question"`
	DraftAnswer string   `json:"draft_answer"`
	Sources     []string `json:"sources"`
}

// RequiresUserReview always reports true. Drafted answers are never
// submitted without human approval.
func (QuestionAnsweringResult) RequiresUserReview() bool { return true }

// MarshalJSON emits the review flag explicitly so downstream consumers see
// the invariant on the wire.
func (q QuestionAnsweringResult) MarshalJSON() ([]byte, error) {
	type alias QuestionAnsweringResult
	return json.Marshal(struct {
		alias
		RequiresUserReview bool `json:"requires_user_review"`
	}{alias(q), true})
}

// ApprovedAnswer is a reviewed (possibly edited) QA draft returned by the
// review gateway.
type ApprovedAnswer struct {
	FieldID     string `json:"field_id"`
	SemanticKey string `json:"semantic_key"`
	FinalAnswer string `json:"final_answer"`
	Edited      bool   `json:"edited"`
}

// ClarificationReason describes why the pipeline needs human input for a
// field.
type ClarificationReason string

const (
	ReasonNoGrounding     ClarificationReason = "no_grounding_match"
	ReasonNoSemanticMatch ClarificationReason = "no_semantic_match"
	ReasonLowConfidence   ClarificationReason = "low_confidence"
	ReasonMissingData     ClarificationReason = "missing_profile_data"
	ReasonValueRejected   ClarificationReason = "value_rejected_by_page"
)

// ClarificationRequest asks the human to resolve an ambiguity the pipeline
// could not settle automatically.
type ClarificationRequest struct {
	FieldID        string              `json:"field_id"`
	VisualLabel    string              `json:"visual_label"`
	Reason         ClarificationReason `json:"reason"`
	CandidatePaths []string            `json:"candidate_paths,omitempty"`
	PageURL        string              `json:"page_url"`
}

// Resolution is the human's answer to a ClarificationRequest.
type Resolution struct {
	FieldID       string `json:"field_id"`
	Skip          bool   `json:"skip"`
	OverrideValue string `json:"override_value,omitempty"`
	OverridePath  string `json:"override_path,omitempty"`
}
