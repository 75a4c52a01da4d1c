// File: internal/browser/session.go

// Package browser implements the page-capture and action-execution driver
// on top of chromedp. It is the only package that talks to the browser; the
// pipeline sees it through schemas.BrowserDriver.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Session is one isolated browser tab driving one application attempt.
type Session struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	allocCtx    context.Context
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
}

var _ schemas.BrowserDriver = (*Session)(nil)

// NewSession launches a browser and opens a fresh tab context.
func NewSession(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.DisableGPU,
		chromedp.NoSandbox,
	}
	if cfg.Headless {
		opts = append(opts, chromedp.Headless)
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	// Eagerly start the browser so construction fails fast on a missing
	// binary instead of on the first navigation.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("starting browser: %w", err)
	}

	return &Session{
		cfg:         cfg,
		logger:      logger.Named("browser"),
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
	}, nil
}

// Navigate loads a URL and waits for the configured stabilization delay.
func (s *Session) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := s.boundedCtx(ctx, s.cfg.PageLoadTimeout)
	defer cancel()

	err := chromedp.Run(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(s.cfg.StabilizeDelay),
	)
	if err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	s.logger.Debug("Navigation complete", zap.String("url", url))
	return nil
}

// CapturePage collects the URL, a full screenshot, the serialized DOM, and
// the interactable-element inventory in one pass.
func (s *Session) CapturePage(ctx context.Context) (*schemas.PageSnapshot, error) {
	capCtx, cancel := s.boundedCtx(ctx, s.cfg.PageLoadTimeout)
	defer cancel()

	var (
		url          string
		dom          string
		screenshot   []byte
		inventoryRaw string
	)

	err := chromedp.Run(capCtx,
		chromedp.Location(&url),
		chromedp.OuterHTML("html", &dom, chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			screenshot, err = page.CaptureScreenshot().
				WithFormat(page.CaptureScreenshotFormatPng).
				WithCaptureBeyondViewport(true).
				Do(ctx)
			return err
		}),
		chromedp.Evaluate(inventoryJS, &inventoryRaw),
	)
	if err != nil {
		return nil, schemas.NewPipelineError(schemas.ErrCodeBrowserCapture, "browser",
			"page capture failed", err)
	}

	var inventory []schemas.DomElementDescriptor
	if err := jsonAPI.Unmarshal([]byte(inventoryRaw), &inventory); err != nil {
		return nil, schemas.NewPipelineError(schemas.ErrCodeBrowserCapture, "browser",
			"decoding element inventory", err)
	}

	s.logger.Info("Page captured",
		zap.String("url", url),
		zap.Int("inventory_size", len(inventory)),
		zap.Int("screenshot_bytes", len(screenshot)),
	)

	return &schemas.PageSnapshot{
		URL:        url,
		Screenshot: screenshot,
		DOM:        dom,
		Inventory:  inventory,
		CapturedAt: time.Now(),
	}, nil
}

// Execute performs one action. Failures come back as typed statuses in the
// result; the returned error is reserved for context cancellation and
// driver-level breakage.
func (s *Session) Execute(ctx context.Context, action schemas.ActionDetail) (*schemas.ExecutionResult, error) {
	actCtx, cancel := s.boundedCtx(ctx, s.cfg.ActionTimeout)
	defer cancel()

	err := s.dispatch(actCtx, action)
	if err == nil {
		return &schemas.ExecutionResult{Status: schemas.ExecSuccess}, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	status := ClassifyExecError(err)
	s.logger.Warn("Action execution failed",
		zap.String("type", string(action.Type)),
		zap.String("target", action.TargetDOMPath),
		zap.String("status", string(status)),
		zap.Error(err),
	)
	return &schemas.ExecutionResult{
		Status:       status,
		ErrorDetails: err.Error(),
	}, nil
}

func (s *Session) dispatch(ctx context.Context, action schemas.ActionDetail) error {
	target := action.TargetDOMPath

	switch action.Type {
	case schemas.ActionFillText:
		return chromedp.Run(ctx,
			chromedp.WaitVisible(target, chromedp.BySearch),
			chromedp.ScrollIntoView(target, chromedp.BySearch),
			chromedp.Clear(target, chromedp.BySearch),
			chromedp.SendKeys(target, action.Value, chromedp.BySearch),
		)

	case schemas.ActionClick:
		return chromedp.Run(ctx,
			chromedp.WaitVisible(target, chromedp.BySearch),
			chromedp.ScrollIntoView(target, chromedp.BySearch),
			chromedp.Click(target, chromedp.BySearch),
			chromedp.Sleep(s.cfg.StabilizeDelay),
		)

	case schemas.ActionSelectOption:
		return s.evalStatusScript(ctx, fmt.Sprintf(selectOptionJS, target, action.Value))

	case schemas.ActionCheck:
		return s.evalStatusScript(ctx, fmt.Sprintf(setCheckedJS, target, true))

	case schemas.ActionUncheck:
		return s.evalStatusScript(ctx, fmt.Sprintf(setCheckedJS, target, false))

	case schemas.ActionUploadFile:
		return chromedp.Run(ctx,
			chromedp.SetUploadFiles(target, []string{action.Value}, chromedp.BySearch),
		)

	case schemas.ActionNavigateBack:
		return chromedp.Run(ctx, chromedp.NavigateBack(), chromedp.Sleep(s.cfg.StabilizeDelay))

	case schemas.ActionNavigateForward:
		return chromedp.Run(ctx, chromedp.NavigateForward(), chromedp.Sleep(s.cfg.StabilizeDelay))

	default:
		return fmt.Errorf("unknown action type %q", action.Type)
	}
}

// evalStatusScript runs a page script that reports "ok" or a failure token.
func (s *Session) evalStatusScript(ctx context.Context, script string) error {
	var status string
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &status)); err != nil {
		return err
	}
	switch status {
	case "ok":
		return nil
	case "not_found":
		return errElementNotFound
	case "option_not_found":
		return fmt.Errorf("no matching option: %w", errNotInteractable)
	default:
		return fmt.Errorf("page script reported %q", status)
	}
}

var (
	errElementNotFound = errors.New("element not found")
	errNotInteractable = errors.New("element not interactable")
)

// ClassifyExecError maps an execution error onto the typed failure taxonomy.
// Exported so callers holding a driver-level error classify it the same way
// Execute does internally.
func ClassifyExecError(err error) schemas.ExecStatus {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return schemas.ExecFailureTimeout
	case errors.Is(err, errElementNotFound):
		return schemas.ExecFailureNotFound
	case errors.Is(err, errNotInteractable):
		return schemas.ExecFailureNotInteractable
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "could not find node") || strings.Contains(msg, "no nodes found"):
		return schemas.ExecFailureNotFound
	case strings.Contains(msg, "not visible") || strings.Contains(msg, "not clickable"):
		return schemas.ExecFailureNotInteractable
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return schemas.ExecFailureTimeout
	default:
		return schemas.ExecFailureNotInteractable
	}
}

// Close tears down the tab and the browser process.
func (s *Session) Close(ctx context.Context) error {
	done := make(chan error, 1)
	go func() {
		// chromedp.Cancel blocks until the browser exits.
		done <- chromedp.Cancel(s.tabCtx)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	s.tabCancel()
	s.allocCancel()
	return err
}

func (s *Session) boundedCtx(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	// Actions must run on the tab context; the caller's context only
	// contributes cancellation.
	merged, cancel := context.WithTimeout(s.tabCtx, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return merged, func() { stop(); cancel() }
}
