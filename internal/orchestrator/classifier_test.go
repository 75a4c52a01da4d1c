// File: internal/orchestrator/classifier_test.go
package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

type cannedLLM struct {
	response string
	err      error
}

func (c *cannedLLM) Generate(_ context.Context, _ schemas.GenerationRequest) (string, error) {
	return c.response, c.err
}

func (c *cannedLLM) Close() error { return nil }

func TestClassify(t *testing.T) {
	ctx := context.Background()

	newClassifier := func(t *testing.T, llm schemas.LLMClient) *PageClassifier {
		c, err := NewPageClassifier(llm, zap.NewNop())
		require.NoError(t, err)
		return c
	}

	t.Run("confirmation keywords win without a model call", func(t *testing.T) {
		c := newClassifier(t, &cannedLLM{err: errors.New("must not be called")})
		category := c.Classify(ctx, confirmationSnapshot())
		assert.Equal(t, CategoryConfirmation, category)
	})

	t.Run("pages with visible form controls are form steps", func(t *testing.T) {
		c := newClassifier(t, &cannedLLM{err: errors.New("must not be called")})
		category := c.Classify(ctx, formSnapshot())
		assert.Equal(t, CategoryFormStep, category)
	})

	t.Run("password walls classify as login", func(t *testing.T) {
		c := newClassifier(t, &cannedLLM{err: errors.New("must not be called")})
		snapshot := &schemas.PageSnapshot{
			URL: "https://jobs.example.com/login",
			DOM: `<html><body><form>Please enter your password<input type="password" name="pw"></form></body></html>`,
			Inventory: []schemas.DomElementDescriptor{{
				XPath: `//input[@name="pw"]`, TagName: "input",
				Attributes: map[string]string{"type": "password"},
			}},
		}
		assert.Equal(t, CategoryLogin, c.Classify(ctx, snapshot))
	})

	t.Run("ambiguous pages fall through to the model", func(t *testing.T) {
		c := newClassifier(t, &cannedLLM{response: `{"category": "error_page"}`})
		snapshot := &schemas.PageSnapshot{
			URL: "https://jobs.example.com/oops",
			DOM: `<html><body><p>Something went wrong.</p></body></html>`,
		}
		assert.Equal(t, CategoryErrorPage, c.Classify(ctx, snapshot))
	})

	t.Run("model failure degrades to unknown", func(t *testing.T) {
		c := newClassifier(t, &cannedLLM{err: errors.New("503")})
		snapshot := &schemas.PageSnapshot{
			URL: "https://jobs.example.com/blank",
			DOM: `<html><body><p>Loading...</p></body></html>`,
		}
		assert.Equal(t, CategoryUnknown, c.Classify(ctx, snapshot))
	})
}

func TestDetectValidationErrors(t *testing.T) {
	dom := `<html><body>
	<div role="alert">First name is required</div>
	<span class="field-error">Email address is invalid</span>
	<div class="error"></div>
	<p>Regular text</p>
	</body></html>`

	messages := DetectValidationErrors(dom)
	assert.Contains(t, messages, "First name is required")
	assert.Contains(t, messages, "Email address is invalid")
	assert.Len(t, messages, 2, "empty banners are ignored")

	assert.Empty(t, DetectValidationErrors(`<html><body><p>All good</p></body></html>`))
}

func TestMateriallyChanged(t *testing.T) {
	base := formSnapshot()

	t.Run("identical snapshots are unchanged", func(t *testing.T) {
		assert.False(t, MateriallyChanged(base, formSnapshot()))
	})

	t.Run("url change is a transition", func(t *testing.T) {
		next := formSnapshot()
		next.URL = "https://jobs.example.com/apply/step-2"
		assert.True(t, MateriallyChanged(base, next))
	})

	t.Run("inventory change is a transition", func(t *testing.T) {
		next := formSnapshot()
		next.Inventory = next.Inventory[:1]
		assert.True(t, MateriallyChanged(base, next))
	})

	t.Run("nil snapshots count as changed", func(t *testing.T) {
		assert.True(t, MateriallyChanged(nil, base))
		assert.True(t, MateriallyChanged(base, nil))
	})
}
