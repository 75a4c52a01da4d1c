// File: internal/orchestrator/state.go
package orchestrator

import (
	"fmt"
	"time"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

// Status is the overall state of one application attempt.
type Status string

const (
	StatusNotStarted          Status = "NotStarted"
	StatusInProgress          Status = "InProgress"
	StatusAwaitingReviewQA    Status = "AwaitingUserReview_QA"
	StatusAwaitingClarify     Status = "AwaitingUserReview_Clarification"
	StatusAwaitingFinalSubmit Status = "AwaitingUserReview_FinalSubmission"
	StatusSubmitted           Status = "SubmittedSuccessfully"
	StatusErrorAI             Status = "ErrorEncountered_AI"
	StatusErrorBrowser        Status = "ErrorEncountered_Browser"
	StatusUserCancelled       Status = "UserCancelled"
	StatusUserPaused          Status = "UserPaused"
)

// Terminal reports whether the status ends the attempt for good.
func (s Status) Terminal() bool {
	return s == StatusSubmitted || s == StatusUserCancelled
}

// Frozen reports whether the state may still be mutated. Terminal statuses
// and unrecoverable errors freeze all history appends.
func (s Status) Frozen() bool {
	return s.Terminal() || s == StatusErrorAI || s == StatusErrorBrowser
}

// reviewStates can resume back into InProgress.
func (s Status) awaitingReview() bool {
	return s == StatusAwaitingReviewQA || s == StatusAwaitingClarify || s == StatusAwaitingFinalSubmit
}

// allowedTransitions encodes the state machine. Transitions not listed are
// rejected; UserCancelled/UserPaused are additionally reachable from every
// non-terminal state (see Transition).
var allowedTransitions = map[Status][]Status{
	StatusNotStarted:          {StatusInProgress},
	StatusInProgress:          {StatusAwaitingReviewQA, StatusAwaitingClarify, StatusAwaitingFinalSubmit, StatusSubmitted, StatusErrorAI, StatusErrorBrowser},
	StatusAwaitingReviewQA:    {StatusInProgress, StatusAwaitingClarify},
	StatusAwaitingClarify:     {StatusInProgress, StatusAwaitingReviewQA},
	StatusAwaitingFinalSubmit: {StatusInProgress, StatusSubmitted},
	StatusUserPaused:          {StatusInProgress},
}

// Intervention reason codes recorded with every escalation.
const (
	ReasonBrowserActionFailure = "browser_action_failure"
	ReasonBrowserCapture       = "browser_capture_failure"
	ReasonAIServiceFailure     = "ai_service_failure"
	ReasonMalformedAIOutput    = "malformed_ai_output"
	ReasonLowConfidence        = "repeated_low_confidence"
	ReasonValidationErrors     = "validation_errors"
	ReasonIncompletePage       = "incomplete_page"
	ReasonActionBatchRejected  = "action_batch_rejected"
	ReasonClarification        = "clarification_needed"
	ReasonPageBudgetExhausted  = "page_budget_exhausted"
)

// pageRecord summarizes one processed page in history.
type pageRecord struct {
	URL       string    `json:"url"`
	Category  string    `json:"category"`
	Fields    int       `json:"fields"`
	Actions   int       `json:"actions"`
	VisitedAt time.Time `json:"visited_at"`
}

// ApplicationState is owned and mutated exclusively by the Orchestrator.
// Other components only return values; the orchestrator records them. The
// attempt is single-threaded, so access needs no locking; what the type
// enforces is transition legality and the terminal freeze.
type ApplicationState struct {
	ApplicationID string
	TargetJob     schemas.JobContext

	CurrentPage *schemas.PageSnapshot

	pageHistory        []pageRecord
	actionHistory      []schemas.ActionRecord
	interventionPoints []schemas.InterventionPoint
	accumulatedData    map[string]string

	status Status
}

// NewApplicationState starts a fresh attempt.
func NewApplicationState(applicationID string, job schemas.JobContext) *ApplicationState {
	return &ApplicationState{
		ApplicationID:   applicationID,
		TargetJob:       job,
		accumulatedData: map[string]string{},
		status:          StatusNotStarted,
	}
}

// Status returns the current overall status.
func (a *ApplicationState) Status() Status { return a.status }

// Transition moves the state machine, rejecting illegal edges and any
// movement out of a frozen status.
func (a *ApplicationState) Transition(to Status) error {
	if a.status == to {
		return nil
	}
	if a.status.Frozen() {
		return fmt.Errorf("status %s is frozen; cannot transition to %s", a.status, to)
	}
	// Pause and cancel are reachable from every non-terminal state.
	if to == StatusUserCancelled || to == StatusUserPaused {
		a.status = to
		return nil
	}
	for _, allowed := range allowedTransitions[a.status] {
		if allowed == to {
			a.status = to
			return nil
		}
	}
	return fmt.Errorf("illegal transition %s -> %s", a.status, to)
}

// AppendAction records an executed (or attempted) action. Appends on a
// frozen state are rejected, which is what keeps terminal states immutable.
func (a *ApplicationState) AppendAction(record schemas.ActionRecord) error {
	if a.status.Frozen() {
		return fmt.Errorf("status %s is frozen; action history is sealed", a.status)
	}
	a.actionHistory = append(a.actionHistory, record)
	return nil
}

// AppendPage records a processed page.
func (a *ApplicationState) AppendPage(record pageRecord) error {
	if a.status.Frozen() {
		return fmt.Errorf("status %s is frozen; page history is sealed", a.status)
	}
	a.pageHistory = append(a.pageHistory, record)
	return nil
}

// AppendIntervention logs an escalation. Error statuses still accept
// interventions so the reason for a freeze is always recorded, but terminal
// statuses reject them like every other mutation.
func (a *ApplicationState) AppendIntervention(reason string, context map[string]string) {
	if a.status.Terminal() {
		return
	}
	a.interventionPoints = append(a.interventionPoints, schemas.InterventionPoint{
		Reason:    reason,
		Context:   context,
		Timestamp: time.Now().Unix(),
	})
}

// RecordFormValue accumulates a filled semantic key -> value pair.
func (a *ApplicationState) RecordFormValue(semanticKey, value string) {
	if a.status.Frozen() || semanticKey == "" {
		return
	}
	a.accumulatedData[semanticKey] = value
}

// PageCount returns how many pages have been processed.
func (a *ApplicationState) PageCount() int { return len(a.pageHistory) }

// ActionHistory returns the recorded actions (read-only view).
func (a *ApplicationState) ActionHistory() []schemas.ActionRecord { return a.actionHistory }

// InterventionPoints returns the escalation log (read-only view).
func (a *ApplicationState) InterventionPoints() []schemas.InterventionPoint {
	return a.interventionPoints
}

// Snapshot freezes the state into its serializable projection for the
// state store.
func (a *ApplicationState) Snapshot() *schemas.ApplicationStateSnapshot {
	url := ""
	if a.CurrentPage != nil {
		url = a.CurrentPage.URL
	}
	data := make(map[string]string, len(a.accumulatedData))
	for k, v := range a.accumulatedData {
		data[k] = v
	}
	return &schemas.ApplicationStateSnapshot{
		ApplicationID:       a.ApplicationID,
		OverallStatus:       string(a.status),
		TargetJob:           a.TargetJob,
		CurrentURL:          url,
		PageCount:           len(a.pageHistory),
		AccumulatedFormData: data,
		ActionHistory:       append([]schemas.ActionRecord(nil), a.actionHistory...),
		InterventionPoints:  append([]schemas.InterventionPoint(nil), a.interventionPoints...),
		UpdatedAt:           time.Now().Unix(),
	}
}

// RestoreApplicationState rebuilds live state from a persisted snapshot for
// resumption. Review-pending statuses resume as paused; the next Run
// transitions them back to InProgress.
func RestoreApplicationState(snap *schemas.ApplicationStateSnapshot) (*ApplicationState, error) {
	if snap == nil || snap.ApplicationID == "" {
		return nil, fmt.Errorf("snapshot with application_id is required")
	}
	status := Status(snap.OverallStatus)
	if status.Terminal() {
		return nil, fmt.Errorf("attempt %s already ended with status %s", snap.ApplicationID, status)
	}
	if status.awaitingReview() || status == StatusInProgress {
		status = StatusUserPaused
	}
	data := make(map[string]string, len(snap.AccumulatedFormData))
	for k, v := range snap.AccumulatedFormData {
		data[k] = v
	}
	state := &ApplicationState{
		ApplicationID:      snap.ApplicationID,
		TargetJob:          snap.TargetJob,
		actionHistory:      append([]schemas.ActionRecord(nil), snap.ActionHistory...),
		interventionPoints: append([]schemas.InterventionPoint(nil), snap.InterventionPoints...),
		accumulatedData:    data,
		status:             status,
	}
	for i := 0; i < snap.PageCount; i++ {
		state.pageHistory = append(state.pageHistory, pageRecord{URL: snap.CurrentURL})
	}
	return state, nil
}
