// File: internal/orchestrator/classifier.go
package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/llmutil"
)

// PageCategory is the coarse classification of a captured page.
type PageCategory string

const (
	CategoryFormStep     PageCategory = "form_step"
	CategoryConfirmation PageCategory = "confirmation"
	CategoryLogin        PageCategory = "login"
	CategoryErrorPage    PageCategory = "error_page"
	CategoryUnknown      PageCategory = "unknown"
)

var confirmationKeywords = []string{
	"application id",
	"your application has been received",
	"thank you for applying",
	"thank you for your application",
	"application submitted",
	"successfully submitted",
	"we have received your application",
}

var loginKeywords = []string{
	"sign in to continue",
	"log in to continue",
	"create an account or sign in",
	"forgot password",
}

// PageClassifier labels captured pages. Keyword heuristics run first; the
// fast model tier breaks ties. Classification is best-effort evidence, not
// a hard browser signal.
type PageClassifier struct {
	llm    schemas.LLMClient
	logger *zap.Logger
}

// NewPageClassifier wires the classifier.
func NewPageClassifier(llm schemas.LLMClient, logger *zap.Logger) (*PageClassifier, error) {
	if llm == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &PageClassifier{llm: llm, logger: logger.Named("classifier")}, nil
}

// Classify labels the snapshot. A model failure degrades to the heuristic
// answer instead of propagating: classification never blocks the pipeline.
func (c *PageClassifier) Classify(ctx context.Context, snapshot *schemas.PageSnapshot) PageCategory {
	text := visibleText(snapshot.DOM)
	lower := strings.ToLower(text)

	for _, kw := range confirmationKeywords {
		if strings.Contains(lower, kw) {
			return CategoryConfirmation
		}
	}
	for _, kw := range loginKeywords {
		if strings.Contains(lower, kw) {
			return CategoryLogin
		}
	}
	if hasFormControls(snapshot) {
		if hasPasswordField(snapshot) && strings.Contains(lower, "password") {
			return CategoryLogin
		}
		return CategoryFormStep
	}

	category := c.classifyWithModel(ctx, text, snapshot.URL)
	c.logger.Debug("Model page classification",
		zap.String("url", snapshot.URL),
		zap.String("category", string(category)),
	)
	return category
}

type classificationResponse struct {
	Category string `json:"category"`
}

func (c *PageClassifier) classifyWithModel(ctx context.Context, text, url string) PageCategory {
	prompt := fmt.Sprintf(`Classify this web page into exactly one category:
- form_step: a form the applicant still needs to fill
- confirmation: the application was submitted successfully
- login: an authentication wall
- error_page: an error or dead end
- unknown: none of the above

URL: %s
Visible text (truncated):
%s

Respond with JSON: {"category": "..."}`, url, truncate(text, 2000))

	raw, err := c.llm.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: "You classify web pages. Respond with strict JSON only.",
		UserPrompt:   prompt,
		Tier:         schemas.TierFast,
		Options:      schemas.GenerationOptions{Temperature: 0.0, ForceJSONFormat: true},
	})
	if err != nil {
		c.logger.Warn("Page classification call failed; treating as unknown", zap.Error(err))
		return CategoryUnknown
	}
	parsed, err := llmutil.ParseJSONResponse[classificationResponse](raw)
	if err != nil {
		return CategoryUnknown
	}
	switch PageCategory(strings.TrimSpace(parsed.Category)) {
	case CategoryFormStep:
		return CategoryFormStep
	case CategoryConfirmation:
		return CategoryConfirmation
	case CategoryLogin:
		return CategoryLogin
	case CategoryErrorPage:
		return CategoryErrorPage
	default:
		return CategoryUnknown
	}
}

// DetectValidationErrors scans the DOM for in-page validation banners:
// alert roles and error-classed nodes with visible text.
func DetectValidationErrors(dom string) []string {
	doc, err := htmlquery.Parse(strings.NewReader(dom))
	if err != nil {
		return nil
	}
	nodes := htmlquery.Find(doc,
		`//*[@role='alert'] | //*[contains(@class,'error') or contains(@class,'invalid')][not(self::script)][not(self::style)]`)

	seen := map[string]bool{}
	var messages []string
	for _, node := range nodes {
		text := strings.TrimSpace(htmlquery.InnerText(node))
		if text == "" || len(text) > 300 || seen[text] {
			continue
		}
		seen[text] = true
		messages = append(messages, text)
	}
	return messages
}

// MateriallyChanged reports whether two snapshots differ enough to count as
// a page transition: URL change, or a large shift in DOM size or inventory.
func MateriallyChanged(before, after *schemas.PageSnapshot) bool {
	if before == nil || after == nil {
		return true
	}
	if before.URL != after.URL {
		return true
	}
	if len(before.Inventory) != len(after.Inventory) {
		return true
	}
	lenBefore, lenAfter := len(before.DOM), len(after.DOM)
	if lenBefore == 0 {
		return lenAfter != 0
	}
	delta := lenAfter - lenBefore
	if delta < 0 {
		delta = -delta
	}
	return float64(delta)/float64(lenBefore) > 0.05
}

func visibleText(dom string) string {
	doc, err := htmlquery.Parse(strings.NewReader(dom))
	if err != nil {
		return dom
	}
	body := htmlquery.FindOne(doc, "//body")
	if body == nil {
		return dom
	}
	return strings.Join(strings.Fields(htmlquery.InnerText(body)), " ")
}

func hasFormControls(snapshot *schemas.PageSnapshot) bool {
	count := 0
	for i := range snapshot.Inventory {
		switch strings.ToLower(snapshot.Inventory[i].TagName) {
		case "input", "textarea", "select":
			if strings.ToLower(snapshot.Inventory[i].Attr("type")) == "hidden" {
				continue
			}
			count++
		}
	}
	return count > 0
}

func hasPasswordField(snapshot *schemas.PageSnapshot) bool {
	for i := range snapshot.Inventory {
		if strings.ToLower(snapshot.Inventory[i].Attr("type")) == "password" {
			return true
		}
	}
	return false
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
