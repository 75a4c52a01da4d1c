// File: internal/review/console_test.go
package review

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

func newConsole(t *testing.T, input string) (*ConsoleGateway, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	g, err := NewConsoleGateway(strings.NewReader(input), out, zap.NewNop())
	require.NoError(t, err)
	return g, out
}

func drafts() []schemas.QuestionAnsweringResult {
	return []schemas.QuestionAnsweringResult{
		{FieldID: "q-1", SemanticKey: "application.custom_question.generic", Question: "Why us?", DraftAnswer: "Because of the mission."},
		{FieldID: "q-2", SemanticKey: "application.cover_letter_text_final", Question: "Cover letter", DraftAnswer: "Dear team,"},
	}
}

func TestConsoleReviewAnswers(t *testing.T) {
	ctx := context.Background()

	t.Run("enter accepts, text edits, skip rejects", func(t *testing.T) {
		g, _ := newConsole(t, "\nA better answer.\n")
		approved, err := g.ReviewAnswers(ctx, drafts())
		require.NoError(t, err)
		require.Len(t, approved, 2)

		assert.Equal(t, "Because of the mission.", approved[0].FinalAnswer)
		assert.False(t, approved[0].Edited)
		assert.Equal(t, "A better answer.", approved[1].FinalAnswer)
		assert.True(t, approved[1].Edited)
	})

	t.Run("skip drops the draft", func(t *testing.T) {
		g, _ := newConsole(t, "skip\n\n")
		approved, err := g.ReviewAnswers(ctx, drafts())
		require.NoError(t, err)
		require.Len(t, approved, 1)
		assert.Equal(t, "q-2", approved[0].FieldID)
	})

	t.Run("cancelled context aborts before reading", func(t *testing.T) {
		g, _ := newConsole(t, "\n")
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := g.ReviewAnswers(cancelled, drafts())
		require.Error(t, err)
	})
}

func TestConsoleReviewActions(t *testing.T) {
	ctx := context.Background()
	actions := []schemas.ActionDetail{
		{Type: schemas.ActionFillText, TargetDOMPath: "//input[1]", Value: "Ada"},
		{Type: schemas.ActionClick, TargetDOMPath: "//button[1]"},
	}

	t.Run("yes approves the batch unchanged", func(t *testing.T) {
		g, out := newConsole(t, "y\n")
		approved, err := g.ReviewActions(ctx, actions)
		require.NoError(t, err)
		assert.Equal(t, actions, approved)
		assert.Contains(t, out.String(), "//input[1]")
	})

	t.Run("anything else rejects", func(t *testing.T) {
		g, _ := newConsole(t, "n\n")
		approved, err := g.ReviewActions(ctx, actions)
		require.NoError(t, err)
		assert.Nil(t, approved)
	})
}

func TestConsoleResolveClarification(t *testing.T) {
	ctx := context.Background()
	req := schemas.ClarificationRequest{
		FieldID:     "el-1",
		VisualLabel: "T-Shirt Size",
		Reason:      schemas.ReasonNoSemanticMatch,
		PageURL:     "https://jobs.example.com/apply",
	}

	t.Run("typed value becomes an override", func(t *testing.T) {
		g, _ := newConsole(t, "Medium\n")
		res, err := g.ResolveClarification(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, "Medium", res.OverrideValue)
		assert.False(t, res.Skip)
	})

	t.Run("skip and empty both skip", func(t *testing.T) {
		for _, input := range []string{"skip\n", "\n"} {
			g, _ := newConsole(t, input)
			res, err := g.ResolveClarification(ctx, req)
			require.NoError(t, err)
			assert.True(t, res.Skip, input)
		}
	})
}

func TestAutoGateway(t *testing.T) {
	ctx := context.Background()
	g, err := NewAutoGateway(zap.NewNop())
	require.NoError(t, err)

	approved, err := g.ReviewAnswers(ctx, drafts())
	require.NoError(t, err)
	assert.Len(t, approved, 2)

	actions := []schemas.ActionDetail{{Type: schemas.ActionClick, TargetDOMPath: "//button[1]"}}
	reviewed, err := g.ReviewActions(ctx, actions)
	require.NoError(t, err)
	assert.Equal(t, actions, reviewed)

	res, err := g.ResolveClarification(ctx, schemas.ClarificationRequest{FieldID: "el-1"})
	require.NoError(t, err)
	assert.True(t, res.Skip)
}
