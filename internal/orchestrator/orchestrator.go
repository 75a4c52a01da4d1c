// File: internal/orchestrator/orchestrator.go

// Package orchestrator owns the application state machine and drives the
// per-page pipeline: capture, classify, perceive, ground, match, answer,
// generate, execute. All state mutation happens here; stage components only
// return values.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/actiongen"
	"github.com/xkilldash9x/formpilot/internal/browser"
	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/grounding"
	"github.com/xkilldash9x/formpilot/internal/perception"
	"github.com/xkilldash9x/formpilot/internal/policy"
	"github.com/xkilldash9x/formpilot/internal/qa"
	"github.com/xkilldash9x/formpilot/internal/semantic"
)

// Deps bundles everything the orchestrator drives. All fields are required
// except Classifier, which degrades to heuristics-only classification.
type Deps struct {
	Config     config.PipelineConfig
	Driver     schemas.BrowserDriver
	Perceiver  *perception.Perceiver
	Grounder   *grounding.Grounder
	Matcher    *semantic.Matcher
	Answerer   *qa.Answerer
	Generator  *actiongen.Generator
	Classifier *PageClassifier
	Gateway    schemas.ReviewGateway
	Store      schemas.StateStore
	Profile    *schemas.UserProfile
	Policy     *policy.Policy
	State      *ApplicationState
	Logger     *zap.Logger
}

// Orchestrator runs one application attempt to a terminal or suspended
// status. It is not safe for concurrent Run calls; RequestPause and
// RequestCancel may be called from other goroutines.
type Orchestrator struct {
	cfg        config.PipelineConfig
	driver     schemas.BrowserDriver
	perceiver  *perception.Perceiver
	grounder   *grounding.Grounder
	matcher    *semantic.Matcher
	answerer   *qa.Answerer
	generator  *actiongen.Generator
	classifier *PageClassifier
	gateway    schemas.ReviewGateway
	store      schemas.StateStore
	profile    *schemas.UserProfile
	policy     *policy.Policy
	state      *ApplicationState
	logger     *zap.Logger

	pauseRequested  atomic.Bool
	cancelRequested atomic.Bool

	// Validation-correction bookkeeping for the current page. corrections
	// counts correction passes; lastFills maps target DOM paths to the
	// values the last batch wrote; rejectedValues accumulates values the
	// page's validation refused. All reset when the page materially changes.
	corrections    int
	lastFills      map[string]string
	rejectedValues map[string]string
}

// NewOrchestrator validates the dependency set and wires the orchestrator.
func NewOrchestrator(d Deps) (*Orchestrator, error) {
	switch {
	case d.Driver == nil:
		return nil, fmt.Errorf("browser driver is required")
	case d.Perceiver == nil || d.Grounder == nil || d.Matcher == nil ||
		d.Answerer == nil || d.Generator == nil:
		return nil, fmt.Errorf("all pipeline stages are required")
	case d.Gateway == nil:
		return nil, fmt.Errorf("review gateway is required")
	case d.Store == nil:
		return nil, fmt.Errorf("state store is required")
	case d.Profile == nil:
		return nil, fmt.Errorf("user profile is required")
	case d.Policy == nil:
		return nil, fmt.Errorf("confidence policy is required")
	case d.State == nil:
		return nil, fmt.Errorf("application state is required")
	case d.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	}
	return &Orchestrator{
		cfg:        d.Config,
		driver:     d.Driver,
		perceiver:  d.Perceiver,
		grounder:   d.Grounder,
		matcher:    d.Matcher,
		answerer:   d.Answerer,
		generator:  d.Generator,
		classifier: d.Classifier,
		gateway:    d.Gateway,
		store:      d.Store,
		profile:    d.Profile,
		policy:     d.Policy,
		state:      d.State,
		logger:     d.Logger.Named("orchestrator"),
	}, nil
}

// State exposes the live application state for inspection.
func (o *Orchestrator) State() *ApplicationState { return o.state }

// RequestPause asks the run loop to suspend at the next stage boundary.
func (o *Orchestrator) RequestPause() { o.pauseRequested.Store(true) }

// RequestCancel asks the run loop to cancel at the next stage boundary.
// Cancellation is terminal.
func (o *Orchestrator) RequestCancel() { o.cancelRequested.Store(true) }

type pageOutcome int

const (
	outcomeAdvanced pageOutcome = iota
	outcomeRetryPage
	outcomeSubmitted
	outcomeHalted
)

// Run drives the attempt until it submits, suspends, or fails. A non-empty
// startURL is navigated to first; resumed attempts pass the URL persisted in
// their snapshot. The returned status is always the final state-machine
// status, including on error.
func (o *Orchestrator) Run(ctx context.Context, startURL string) (Status, error) {
	switch o.state.Status() {
	case StatusNotStarted, StatusUserPaused:
		if err := o.state.Transition(StatusInProgress); err != nil {
			return o.state.Status(), err
		}
	default:
		return o.state.Status(), fmt.Errorf("cannot run from status %s", o.state.Status())
	}

	if startURL != "" {
		if err := o.driver.Navigate(ctx, startURL); err != nil {
			o.state.AppendIntervention(ReasonBrowserCapture, map[string]string{"error": err.Error()})
			_ = o.state.Transition(StatusErrorBrowser)
			o.persist(ctx)
			return o.state.Status(), err
		}
	}
	o.persist(ctx)

	// Per-page recovery bookkeeping, reset every time the page advances.
	overrides := map[string]string{}
	draftsByKey := map[string]string{}
	regrounded := false

	for {
		if status, stopped := o.checkControl(ctx); stopped {
			return status, nil
		}
		if o.state.PageCount() >= o.cfg.MaxPages {
			o.state.AppendIntervention(ReasonPageBudgetExhausted, map[string]string{
				"pages": fmt.Sprintf("%d", o.state.PageCount()),
			})
			_ = o.state.Transition(StatusUserPaused)
			o.persist(ctx)
			return o.state.Status(), fmt.Errorf("page budget of %d exhausted", o.cfg.MaxPages)
		}

		outcome, err := o.processPage(ctx, overrides, draftsByKey, &regrounded)
		switch outcome {
		case outcomeSubmitted:
			o.persist(ctx)
			return o.state.Status(), nil
		case outcomeHalted:
			o.persist(ctx)
			return o.state.Status(), err
		case outcomeAdvanced:
			overrides = map[string]string{}
			draftsByKey = map[string]string{}
			regrounded = false
		case outcomeRetryPage:
			// Same page again with state carried over.
		}
		o.persist(ctx)
	}
}

// processPage runs the full pipeline for the current page and executes the
// resulting actions. Overrides and drafts survive retries of the same page.
func (o *Orchestrator) processPage(ctx context.Context, overrides, draftsByKey map[string]string, regrounded *bool) (pageOutcome, error) {
	snapshot, err := o.capturePage(ctx)
	if err != nil {
		return o.failPipeline(err)
	}
	previous := o.state.CurrentPage
	o.state.CurrentPage = snapshot

	category := o.classify(ctx, snapshot)
	switch category {
	case CategoryConfirmation:
		o.logger.Info("Confirmation page detected; application submitted",
			zap.String("url", snapshot.URL))
		_ = o.state.Transition(StatusSubmitted)
		return outcomeSubmitted, nil
	case CategoryLogin, CategoryErrorPage:
		o.state.AppendIntervention(ReasonIncompletePage, map[string]string{
			"category": string(category),
			"url":      snapshot.URL,
		})
		_ = o.state.Transition(StatusUserPaused)
		return outcomeHalted, fmt.Errorf("cannot proceed past %s page at %s", category, snapshot.URL)
	}

	// A page that did not change after our last batch and now shows
	// validation banners gets a bounded number of correction passes. The
	// values the rejected batch wrote are excluded from the next pass, so a
	// correction either fills an alternative or escalates; it never repeats
	// the value the page just refused.
	if previous == nil || MateriallyChanged(previous, snapshot) {
		o.corrections = 0
		o.rejectedValues = nil
	} else if msgs := DetectValidationErrors(snapshot.DOM); len(msgs) > 0 {
		if !o.recordCorrection(msgs) {
			_ = o.state.Transition(StatusUserPaused)
			return outcomeHalted, fmt.Errorf("validation errors persisted after %d correction attempts", o.cfg.MaxCorrectionAttempts)
		}
		if o.rejectedValues == nil {
			o.rejectedValues = map[string]string{}
		}
		for path, value := range o.lastFills {
			o.rejectedValues[path] = value
		}
	}

	var elements []schemas.IdentifiedElement
	err = o.retryAI(ctx, func() error {
		var perr error
		elements, perr = o.perceiver.Perceive(ctx, snapshot)
		return perr
	})
	if err != nil {
		return o.failPipeline(err)
	}

	if err := o.grounder.Ground(elements, snapshot); err != nil {
		return o.failPipeline(err)
	}

	err = o.retryAI(ctx, func() error {
		return o.matcher.MatchAll(ctx, elements, snapshot.URL)
	})
	if err != nil {
		return o.failPipeline(err)
	}

	if _, stopped := o.checkControl(ctx); stopped {
		return outcomeHalted, nil
	}

	if err := o.resolveClarifications(ctx, elements, snapshot, overrides); err != nil {
		return outcomeHalted, err
	}
	if err := o.reviewQuestions(ctx, elements, overrides, draftsByKey); err != nil {
		return outcomeHalted, err
	}

	page := o.generator.Generate(elements, o.profile.Overlay(draftsByKey), overrides, o.rejectedValues)
	if page.Incomplete {
		o.state.AppendIntervention(ReasonIncompletePage, map[string]string{
			"url":     snapshot.URL,
			"skipped": fmt.Sprintf("%d", len(page.Skipped)),
		})
		_ = o.state.Transition(StatusUserPaused)
		return outcomeHalted, fmt.Errorf("no field on %s could be resolved", snapshot.URL)
	}

	batch, approved, err := o.gateActions(ctx, page)
	if err != nil {
		return outcomeHalted, err
	}
	if !approved {
		o.state.AppendIntervention(ReasonActionBatchRejected, map[string]string{"url": snapshot.URL})
		_ = o.state.Transition(StatusUserPaused)
		return outcomeHalted, nil
	}

	fields := indexByFieldID(elements)
	for _, action := range batch {
		outcome, execErr := o.executeAction(ctx, action, fields, regrounded)
		if outcome != outcomeAdvanced {
			return outcome, execErr
		}
	}

	// Remember what this batch wrote; if the next capture shows the same
	// page with validation errors, these values are the rejected ones.
	o.lastFills = map[string]string{}
	for _, action := range batch {
		if action.Value != "" {
			o.lastFills[action.TargetDOMPath] = action.Value
		}
	}

	if err := o.state.AppendPage(pageRecord{
		URL:       snapshot.URL,
		Category:  string(category),
		Fields:    len(elements),
		Actions:   len(batch),
		VisitedAt: time.Now(),
	}); err != nil {
		return outcomeHalted, err
	}

	o.logger.Info("Page processed",
		zap.String("url", snapshot.URL),
		zap.Int("page", o.state.PageCount()),
		zap.Int("actions", len(batch)),
		zap.Int("skipped", len(page.Skipped)),
	)
	return outcomeAdvanced, nil
}

// capturePage captures the current page, retrying once on transient failure.
func (o *Orchestrator) capturePage(ctx context.Context) (*schemas.PageSnapshot, error) {
	snapshot, err := o.driver.CapturePage(ctx)
	if err == nil {
		return snapshot, nil
	}
	o.logger.Warn("Page capture failed; retrying once", zap.Error(err))
	return o.driver.CapturePage(ctx)
}

func (o *Orchestrator) classify(ctx context.Context, snapshot *schemas.PageSnapshot) PageCategory {
	if o.classifier == nil {
		return CategoryFormStep
	}
	return o.classifier.Classify(ctx, snapshot)
}

func (o *Orchestrator) recordCorrection(messages []string) bool {
	o.corrections++
	o.logger.Warn("Validation errors on unchanged page",
		zap.Strings("messages", messages),
		zap.Int("attempt", o.corrections),
	)
	o.state.AppendIntervention(ReasonValidationErrors, map[string]string{
		"messages": fmt.Sprintf("%v", messages),
		"attempt":  fmt.Sprintf("%d", o.corrections),
	})
	return o.corrections <= o.cfg.MaxCorrectionAttempts
}

// resolveClarifications collects every field the pipeline could not settle
// and suspends once for the whole set. Resolutions land in overrides or
// re-ground the element directly.
func (o *Orchestrator) resolveClarifications(ctx context.Context, elements []schemas.IdentifiedElement, snapshot *schemas.PageSnapshot, overrides map[string]string) error {
	type pending struct {
		el  *schemas.IdentifiedElement
		req schemas.ClarificationRequest
	}
	var queue []pending
	for i := range elements {
		el := &elements[i]
		if el.PredictedType == schemas.ElementTypeButton {
			continue
		}
		if _, handled := overrides[el.ID]; handled {
			continue
		}
		var reason schemas.ClarificationReason
		switch {
		case !el.IsGrounded():
			reason = schemas.ReasonNoGrounding
		case el.SemanticKey == "":
			// A per-field classification failure leaves the key empty; the
			// field still needs a value from somewhere.
			reason = schemas.ReasonNoSemanticMatch
		case el.SemanticKey == semantic.SentinelKey:
			reason = schemas.ReasonNoSemanticMatch
		case o.rejectedValues[el.DOMPathPrimary] != "":
			reason = schemas.ReasonValueRejected
		case o.policy.NeedsClarification(el.ConfidenceGrounding):
			reason = schemas.ReasonLowConfidence
		default:
			continue
		}
		queue = append(queue, pending{el: el, req: schemas.ClarificationRequest{
			FieldID:     el.ID,
			VisualLabel: el.VisualLabel,
			Reason:      reason,
			PageURL:     snapshot.URL,
		}})
	}
	if len(queue) == 0 {
		return nil
	}

	if err := o.state.Transition(StatusAwaitingClarify); err != nil {
		return err
	}
	o.state.AppendIntervention(ReasonClarification, map[string]string{
		"fields": fmt.Sprintf("%d", len(queue)),
		"url":    snapshot.URL,
	})
	o.persist(ctx)

	for _, p := range queue {
		res, err := o.gateway.ResolveClarification(ctx, p.req)
		if err != nil {
			return fmt.Errorf("clarification for %q: %w", p.req.VisualLabel, err)
		}
		if res.Skip {
			continue
		}
		if res.OverridePath != "" {
			p.el.DOMPathPrimary = res.OverridePath
			p.el.ConfidenceGrounding = 1.0
		}
		if res.OverrideValue != "" {
			overrides[p.el.ID] = res.OverrideValue
		}
	}
	return o.state.Transition(StatusInProgress)
}

// reviewQuestions drafts answers for open-ended question fields and blocks
// on human review. Every draft goes through the gateway; there is no
// autonomy level that skips this.
func (o *Orchestrator) reviewQuestions(ctx context.Context, elements []schemas.IdentifiedElement, overrides, draftsByKey map[string]string) error {
	schema := o.matcher.Schema()
	var questions []schemas.IdentifiedElement
	for i := range elements {
		el := &elements[i]
		if !el.IsGrounded() || !schema.IsQuestion(el.SemanticKey) {
			continue
		}
		if _, answered := overrides[el.ID]; answered {
			continue
		}
		questions = append(questions, *el)
	}
	if len(questions) == 0 {
		return nil
	}

	var drafts []schemas.QuestionAnsweringResult
	err := o.retryAI(ctx, func() error {
		var qerr error
		drafts, qerr = o.answerer.AnswerQuestions(ctx, questions, o.profile, o.state.TargetJob)
		return qerr
	})
	if err != nil {
		_, ferr := o.failPipeline(err)
		return ferr
	}

	if err := o.state.Transition(StatusAwaitingReviewQA); err != nil {
		return err
	}
	o.persist(ctx)

	approved, err := o.gateway.ReviewAnswers(ctx, drafts)
	if err != nil {
		return fmt.Errorf("answer review: %w", err)
	}
	for _, answer := range approved {
		overrides[answer.FieldID] = answer.FinalAnswer
		if answer.SemanticKey != "" {
			draftsByKey[answer.SemanticKey] = answer.FinalAnswer
		}
	}
	return o.state.Transition(StatusInProgress)
}

// gateActions applies the autonomy level to the generated batch. The
// returned bool reports whether the batch is approved for execution.
func (o *Orchestrator) gateActions(ctx context.Context, page *actiongen.PageActions) ([]schemas.ActionDetail, bool, error) {
	batch := page.All()
	if len(batch) == 0 {
		return nil, true, nil
	}
	submitIntent := page.ExpectedNextPageType == actiongen.ExpectConfirmationOrNext

	switch o.cfg.Autonomy {
	case config.AutonomyAutonomous:
		return batch, true, nil
	case config.AutonomyReviewSubmit:
		if !submitIntent {
			return batch, true, nil
		}
	}

	// Submission pages suspend into the dedicated review state so a resumed
	// attempt knows the form was fully staged.
	if submitIntent {
		if err := o.state.Transition(StatusAwaitingFinalSubmit); err != nil {
			return nil, false, err
		}
		o.persist(ctx)
	}

	reviewed, err := o.gateway.ReviewActions(ctx, batch)
	if err != nil {
		return nil, false, fmt.Errorf("action review: %w", err)
	}
	if submitIntent {
		if err := o.state.Transition(StatusInProgress); err != nil {
			return nil, false, err
		}
	}
	if len(reviewed) == 0 {
		return nil, false, nil
	}
	return reviewed, true, nil
}

// executeAction runs one action and records its outcome. The first browser
// failure on a page triggers a single re-capture cycle; a failure after
// regrounding is terminal.
func (o *Orchestrator) executeAction(ctx context.Context, action schemas.ActionDetail, fields map[string]*schemas.IdentifiedElement, regrounded *bool) (pageOutcome, error) {
	result, err := o.driver.Execute(ctx, action)

	record := schemas.ActionRecord{Action: action, Timestamp: time.Now().Unix()}
	if err != nil {
		record.Status = browser.ClassifyExecError(err)
		record.Error = err.Error()
	} else {
		record.Status = result.Status
		record.Error = result.ErrorDetails
	}
	if aerr := o.state.AppendAction(record); aerr != nil {
		return outcomeHalted, aerr
	}

	if err == nil && !result.Status.Failed() {
		if el, ok := fields[action.OriginFieldID]; ok && el.SemanticKey != "" {
			o.state.RecordFormValue(el.SemanticKey, action.Value)
		}
		return outcomeAdvanced, nil
	}

	detail := record.Error
	if !*regrounded {
		*regrounded = true
		o.logger.Warn("Action failed; re-grounding page once",
			zap.String("target", action.TargetDOMPath),
			zap.String("status", string(record.Status)),
			zap.String("detail", detail),
		)
		return outcomeRetryPage, nil
	}

	o.state.AppendIntervention(ReasonBrowserActionFailure, map[string]string{
		"target": action.TargetDOMPath,
		"status": string(record.Status),
		"detail": detail,
	})
	_ = o.state.Transition(StatusErrorBrowser)
	return outcomeHalted, fmt.Errorf("action on %s failed after regrounding: %s", action.TargetDOMPath, record.Status)
}

// failPipeline maps a stage error to its terminal status and intervention
// reason, freezing the state machine.
func (o *Orchestrator) failPipeline(err error) (pageOutcome, error) {
	status := StatusErrorAI
	reason := ReasonAIServiceFailure
	switch schemas.CodeOf(err) {
	case schemas.ErrCodeMalformedPerception, schemas.ErrCodeInvalidInventory:
		reason = ReasonMalformedAIOutput
	case schemas.ErrCodeBrowserAction:
		status = StatusErrorBrowser
		reason = ReasonBrowserActionFailure
	case schemas.ErrCodeBrowserCapture:
		status = StatusErrorBrowser
		reason = ReasonBrowserCapture
	}
	o.state.AppendIntervention(reason, map[string]string{"error": err.Error()})
	_ = o.state.Transition(status)
	o.logger.Error("Pipeline stage failed",
		zap.String("status", string(status)),
		zap.String("reason", reason),
		zap.Error(err),
	)
	return outcomeHalted, err
}

// retryAI retries an AI-stage call with exponential backoff. Only errors the
// taxonomy marks retryable are retried; malformed output and non-pipeline
// errors fail immediately.
func (o *Orchestrator) retryAI(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 2 * time.Second
	bo.MaxInterval = 20 * time.Second

	retries := uint64(0)
	if o.cfg.MaxAIRetries > 0 {
		retries = uint64(o.cfg.MaxAIRetries)
	}
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		var perr *schemas.PipelineError
		if errors.As(err, &perr) && perr.Retryable() {
			o.logger.Warn("Retryable pipeline failure",
				zap.String("code", string(perr.Code)),
				zap.Error(err),
			)
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(backoff.WithMaxRetries(bo, retries), ctx))
}

// checkControl honors pause/cancel requests at stage boundaries.
func (o *Orchestrator) checkControl(ctx context.Context) (Status, bool) {
	if o.cancelRequested.Load() {
		_ = o.state.Transition(StatusUserCancelled)
		o.persist(ctx)
		return o.state.Status(), true
	}
	if o.pauseRequested.Load() {
		o.pauseRequested.Store(false)
		_ = o.state.Transition(StatusUserPaused)
		o.persist(ctx)
		return o.state.Status(), true
	}
	if ctx.Err() != nil {
		_ = o.state.Transition(StatusUserCancelled)
		return o.state.Status(), true
	}
	return o.state.Status(), false
}

// persist saves a snapshot. Persistence failures are logged, not fatal; the
// attempt keeps its in-memory state.
func (o *Orchestrator) persist(ctx context.Context) {
	if err := o.store.Save(ctx, o.state.Snapshot()); err != nil {
		o.logger.Warn("State persistence failed",
			zap.String("application_id", o.state.ApplicationID),
			zap.Error(err),
		)
	}
}

func indexByFieldID(elements []schemas.IdentifiedElement) map[string]*schemas.IdentifiedElement {
	out := make(map[string]*schemas.IdentifiedElement, len(elements))
	for i := range elements {
		out[elements[i].ID] = &elements[i]
	}
	return out
}
