// File: api/schemas/interfaces.go
package schemas

import "context"

// -- LLM Client Schemas & Interface --

// ModelTier allows for selecting a large language model based on a
// preference for speed versus advanced capabilities.
type ModelTier string

const (
	TierFast     ModelTier = "fast"     // Prefers a faster, potentially less capable model.
	TierPowerful ModelTier = "powerful" // Prefers a more capable, potentially slower model.
)

// GenerationOptions provides detailed parameters to control the generation
// process, such as creativity (temperature) and output format.
type GenerationOptions struct {
	Temperature     float64 `json:"temperature"`       // Controls randomness. Lower is more deterministic.
	ForceJSONFormat bool    `json:"force_json_format"` // If true, forces the model to output valid JSON.
	TopP            float64 `json:"top_p"`             // Nucleus sampling parameter.
	TopK            int     `json:"top_k"`             // Top-k sampling parameter.
}

// GenerationRequest encapsulates a complete request to the model, including
// prompts, optional image attachments for vision calls, the desired tier,
// and generation options.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"`
	UserPrompt   string            `json:"user_prompt"`
	Images       [][]byte          `json:"-"` // PNG screenshots for multimodal requests.
	Tier         ModelTier         `json:"tier"`
	Options      GenerationOptions `json:"options"`
}

// LLMClient defines a standard interface for interacting with a large
// language model, abstracting the specifics of the underlying provider.
type LLMClient interface {
	// Generate produces a completion based on the provided request.
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	// Close cleans up any resources held by the client.
	Close() error
}

// -- Browser Driver --

// BrowserDriver is the narrow contract the pipeline consumes for page
// capture and action execution. Failures surface as typed ExecutionResult
// statuses or wrapped errors, never as panics crossing into pipeline logic.
type BrowserDriver interface {
	// Navigate loads a URL and waits for the page to stabilize.
	Navigate(ctx context.Context, url string) error
	// CapturePage returns the current URL, a screenshot, the serialized DOM,
	// and the interactable-element inventory.
	CapturePage(ctx context.Context) (*PageSnapshot, error)
	// Execute performs a single action against the live page.
	Execute(ctx context.Context, action ActionDetail) (*ExecutionResult, error)
	// Close tears down the browser session.
	Close(ctx context.Context) error
}

// -- Profile Store --

// ProfileStore loads applicant profiles. Read-only from the pipeline's
// perspective.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*UserProfile, error)
}

// -- Human-in-the-loop Gateway --

// ReviewGateway presents drafts and action batches for human approval.
// Every method is a suspension point: calls block until the human responds
// or the context expires.
type ReviewGateway interface {
	// ReviewAnswers presents QA drafts and returns the approved (possibly
	// edited) answers. Drafts omitted from the result are rejected.
	ReviewAnswers(ctx context.Context, drafts []QuestionAnsweringResult) ([]ApprovedAnswer, error)
	// ReviewActions presents a full action batch for a page and returns the
	// approved batch, which may be edited or reordered.
	ReviewActions(ctx context.Context, actions []ActionDetail) ([]ActionDetail, error)
	// ResolveClarification asks the human to settle an ambiguity.
	ResolveClarification(ctx context.Context, req ClarificationRequest) (Resolution, error)
}

// -- State Store --

// StateStore persists application state at suspension boundaries so an
// attempt can be paused, resumed, or inspected after a crash.
type StateStore interface {
	Save(ctx context.Context, state *ApplicationStateSnapshot) error
	Load(ctx context.Context, applicationID string) (*ApplicationStateSnapshot, error)
}

// ApplicationStateSnapshot is the serializable projection of the
// orchestrator's state. The live ApplicationState type lives with the
// orchestrator, which owns all mutation; stores only see this frozen form.
type ApplicationStateSnapshot struct {
	ApplicationID       string                 `json:"application_id"`
	OverallStatus       string                 `json:"overall_status"`
	TargetJob           JobContext             `json:"target_job"`
	CurrentURL          string                 `json:"current_url"`
	PageCount           int                    `json:"page_count"`
	AccumulatedFormData map[string]string      `json:"accumulated_form_data"`
	ActionHistory       []ActionRecord         `json:"action_history"`
	InterventionPoints  []InterventionPoint    `json:"intervention_points"`
	UpdatedAt           int64                  `json:"updated_at"`
	Extra               map[string]interface{} `json:"extra,omitempty"`
}

// ActionRecord is one executed (or attempted) action with its outcome.
type ActionRecord struct {
	Action    ActionDetail `json:"action"`
	Timestamp int64        `json:"timestamp"`
	Status    ExecStatus   `json:"status"`
	Error     string       `json:"error,omitempty"`
}

// InterventionPoint logs one escalation to the human, with a stable reason
// code and the triggering context.
type InterventionPoint struct {
	Reason    string            `json:"reason"`
	Context   map[string]string `json:"context,omitempty"`
	Timestamp int64             `json:"timestamp"`
}
