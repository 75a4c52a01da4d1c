// File: internal/qa/answerer_test.go
package qa

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

type stubLLM struct {
	response   string
	err        error
	lastPrompt string
}

func (s *stubLLM) Generate(_ context.Context, req schemas.GenerationRequest) (string, error) {
	s.lastPrompt = req.UserPrompt
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func (s *stubLLM) Close() error { return nil }

func qaProfile() *schemas.UserProfile {
	return schemas.NewUserProfile(map[string]interface{}{
		"user": map[string]interface{}{
			"experience": map[string]interface{}{
				"years_total": float64(9),
				"summary":     "Nine years building data pipelines in Go and Python.",
			},
			"personal_info": map[string]interface{}{
				"first_name": "Ada",
			},
		},
	})
}

func questionField() schemas.IdentifiedElement {
	return schemas.IdentifiedElement{
		ID:             "q-1",
		VisualLabel:    "Describe your relevant experience",
		PredictedType:  schemas.ElementTypeTextarea,
		SemanticKey:    "application.custom_question.generic",
		DOMPathPrimary: `//textarea[@id="experience"]`,
	}
}

func TestAnswerQuestions(t *testing.T) {
	ctx := context.Background()
	job := schemas.JobContext{Title: "Data Engineer", Company: "Example Corp"}

	t.Run("drafts carry the mandatory review flag", func(t *testing.T) {
		llm := &stubLLM{response: `{"answer": "I have nine years of pipeline experience.", "sources_used": ["user.experience.summary"]}`}
		a, err := NewAnswerer(llm, zap.NewNop())
		require.NoError(t, err)

		drafts, err := a.AnswerQuestions(ctx, []schemas.IdentifiedElement{questionField()}, qaProfile(), job)
		require.NoError(t, err)
		require.Len(t, drafts, 1)

		draft := drafts[0]
		assert.True(t, draft.RequiresUserReview())
		assert.Equal(t, "q-1", draft.FieldID)
		assert.Equal(t, "I have nine years of pipeline experience.", draft.DraftAnswer)
		assert.Equal(t, []string{"user.experience.summary"}, draft.Sources)
	})

	t.Run("echoed sources never shown are dropped", func(t *testing.T) {
		llm := &stubLLM{response: `{"answer": "Sure.", "sources_used": ["user.secret.ssn", "user.experience.summary"]}`}
		a, err := NewAnswerer(llm, zap.NewNop())
		require.NoError(t, err)

		drafts, err := a.AnswerQuestions(ctx, []schemas.IdentifiedElement{questionField()}, qaProfile(), job)
		require.NoError(t, err)
		assert.Equal(t, []string{"user.experience.summary"}, drafts[0].Sources)
	})

	t.Run("model failure maps to answer generation error", func(t *testing.T) {
		llm := &stubLLM{err: errors.New("503 from upstream")}
		a, err := NewAnswerer(llm, zap.NewNop())
		require.NoError(t, err)

		_, err = a.AnswerQuestions(ctx, []schemas.IdentifiedElement{questionField()}, qaProfile(), job)
		require.Error(t, err)
		assert.Equal(t, schemas.ErrCodeAnswerGeneration, schemas.CodeOf(err))
	})

	t.Run("empty answers are rejected", func(t *testing.T) {
		llm := &stubLLM{response: `{"answer": "   ", "sources_used": []}`}
		a, err := NewAnswerer(llm, zap.NewNop())
		require.NoError(t, err)

		_, err = a.AnswerQuestions(ctx, []schemas.IdentifiedElement{questionField()}, qaProfile(), job)
		require.Error(t, err)
	})

	t.Run("prompt carries job context and relevant excerpts only", func(t *testing.T) {
		llm := &stubLLM{response: `{"answer": "ok", "sources_used": []}`}
		a, err := NewAnswerer(llm, zap.NewNop())
		require.NoError(t, err)

		_, err = a.AnswerQuestions(ctx, []schemas.IdentifiedElement{questionField()}, qaProfile(), job)
		require.NoError(t, err)
		assert.Contains(t, llm.lastPrompt, "Data Engineer")
		assert.Contains(t, llm.lastPrompt, "user.experience.summary")
	})
}

func TestSelectExcerpts(t *testing.T) {
	excerpts := selectExcerpts("How many years of experience do you have?", qaProfile())
	require.NotEmpty(t, excerpts)
	// The experience keys outrank the unrelated personal info.
	assert.Contains(t, excerpts[0].key, "experience")
}
