// File: internal/review/console.go

// Package review implements the human-in-the-loop gateway. The console
// implementation blocks on stdin; the auto implementation approves
// everything and exists for unattended runs and tests.
package review

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

// ConsoleGateway prompts the operator on the terminal. Every call is a
// suspension point with no timeout of its own; callers bound it with the
// context.
type ConsoleGateway struct {
	in     *bufio.Reader
	out    io.Writer
	logger *zap.Logger
}

var _ schemas.ReviewGateway = (*ConsoleGateway)(nil)

// NewConsoleGateway wires a console gateway over the given streams.
func NewConsoleGateway(in io.Reader, out io.Writer, logger *zap.Logger) (*ConsoleGateway, error) {
	if in == nil || out == nil {
		return nil, fmt.Errorf("input and output streams are required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &ConsoleGateway{
		in:     bufio.NewReader(in),
		out:    out,
		logger: logger.Named("review.console"),
	}, nil
}

// ReviewAnswers walks the operator through each draft. Enter keeps the
// draft, typed text replaces it, "skip" rejects it.
func (g *ConsoleGateway) ReviewAnswers(ctx context.Context, drafts []schemas.QuestionAnsweringResult) ([]schemas.ApprovedAnswer, error) {
	approved := make([]schemas.ApprovedAnswer, 0, len(drafts))
	for _, draft := range drafts {
		fmt.Fprintf(g.out, "\n--- Question: %s\n", draft.Question)
		fmt.Fprintf(g.out, "Draft answer:\n%s\n", draft.DraftAnswer)
		if len(draft.Sources) > 0 {
			fmt.Fprintf(g.out, "(sources: %s)\n", strings.Join(draft.Sources, ", "))
		}
		fmt.Fprint(g.out, "[Enter]=accept, type replacement, or \"skip\": ")

		line, err := g.readLine(ctx)
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)

		switch {
		case line == "skip":
			continue
		case line == "":
			approved = append(approved, schemas.ApprovedAnswer{
				FieldID:     draft.FieldID,
				SemanticKey: draft.SemanticKey,
				FinalAnswer: draft.DraftAnswer,
			})
		default:
			approved = append(approved, schemas.ApprovedAnswer{
				FieldID:     draft.FieldID,
				SemanticKey: draft.SemanticKey,
				FinalAnswer: line,
				Edited:      true,
			})
		}
	}
	return approved, nil
}

// ReviewActions shows the batch and asks for a single yes/no. Editing
// individual actions on the console is not supported; a "no" aborts the
// page.
func (g *ConsoleGateway) ReviewActions(ctx context.Context, actions []schemas.ActionDetail) ([]schemas.ActionDetail, error) {
	fmt.Fprintf(g.out, "\n--- Proposed actions (%d):\n", len(actions))
	for i, action := range actions {
		value := action.Value
		if len(value) > 60 {
			value = value[:60] + "..."
		}
		fmt.Fprintf(g.out, "%2d. %-13s %s %q\n", i+1, action.Type, action.TargetDOMPath, value)
	}
	fmt.Fprint(g.out, "Execute this batch? [y/N]: ")

	line, err := g.readLine(ctx)
	if err != nil {
		return nil, err
	}
	if answer := strings.ToLower(strings.TrimSpace(line)); answer == "y" || answer == "yes" {
		return actions, nil
	}
	return nil, nil
}

// ResolveClarification asks the operator to supply a value or skip the
// field.
func (g *ConsoleGateway) ResolveClarification(ctx context.Context, req schemas.ClarificationRequest) (schemas.Resolution, error) {
	fmt.Fprintf(g.out, "\n--- Clarification needed for %q (%s) on %s\n",
		req.VisualLabel, req.Reason, req.PageURL)
	if len(req.CandidatePaths) > 0 {
		fmt.Fprintf(g.out, "Candidate targets: %s\n", strings.Join(req.CandidatePaths, ", "))
	}
	fmt.Fprint(g.out, "Type a value to use, or \"skip\": ")

	line, err := g.readLine(ctx)
	if err != nil {
		return schemas.Resolution{}, err
	}
	line = strings.TrimSpace(line)
	if line == "" || line == "skip" {
		return schemas.Resolution{FieldID: req.FieldID, Skip: true}, nil
	}
	return schemas.Resolution{FieldID: req.FieldID, OverrideValue: line}, nil
}

// readLine reads one line honoring context cancellation. Stdin reads cannot
// be interrupted portably, so cancellation is checked before blocking.
func (g *ConsoleGateway) readLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	line, err := g.in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading operator input: %w", err)
	}
	return line, nil
}

// AutoGateway approves every batch and accepts every draft unchanged, and
// skips every clarification. Used for unattended runs where the autonomy
// level permits it, and in tests.
type AutoGateway struct {
	logger *zap.Logger
}

var _ schemas.ReviewGateway = (*AutoGateway)(nil)

// NewAutoGateway wires the auto-approving gateway.
func NewAutoGateway(logger *zap.Logger) (*AutoGateway, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &AutoGateway{logger: logger.Named("review.auto")}, nil
}

// ReviewAnswers accepts every draft verbatim.
func (g *AutoGateway) ReviewAnswers(_ context.Context, drafts []schemas.QuestionAnsweringResult) ([]schemas.ApprovedAnswer, error) {
	approved := make([]schemas.ApprovedAnswer, 0, len(drafts))
	for _, draft := range drafts {
		approved = append(approved, schemas.ApprovedAnswer{
			FieldID:     draft.FieldID,
			SemanticKey: draft.SemanticKey,
			FinalAnswer: draft.DraftAnswer,
		})
	}
	g.logger.Info("Auto-approved QA drafts", zap.Int("count", len(approved)))
	return approved, nil
}

// ReviewActions approves the batch unchanged.
func (g *AutoGateway) ReviewActions(_ context.Context, actions []schemas.ActionDetail) ([]schemas.ActionDetail, error) {
	g.logger.Info("Auto-approved action batch", zap.Int("count", len(actions)))
	return actions, nil
}

// ResolveClarification skips the field; unattended runs have nobody to ask.
func (g *AutoGateway) ResolveClarification(_ context.Context, req schemas.ClarificationRequest) (schemas.Resolution, error) {
	g.logger.Warn("Clarification skipped in auto mode",
		zap.String("field", req.VisualLabel),
		zap.String("reason", string(req.Reason)),
	)
	return schemas.Resolution{FieldID: req.FieldID, Skip: true}, nil
}
