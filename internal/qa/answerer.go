// File: internal/qa/answerer.go

// Package qa drafts answers for open-ended application questions from the
// applicant profile and job context. Every draft requires human review;
// nothing produced here is submittable on its own.
package qa

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/llmutil"
)

const answerSystemPrompt = `You draft concise, truthful answers to job application questions on behalf
of an applicant. You use ONLY the profile excerpts provided. If the profile
does not contain the information a question asks for, you say so plainly
instead of inventing specifics. You respond with strict JSON only.`

// maxExcerpts caps how many profile sections are offered to the model per
// question.
const maxExcerpts = 8

type answerResponse struct {
	Answer      string   `json:"answer"`
	SourcesUsed []string `json:"sources_used"`
}

// Answerer is the question-answering stage.
type Answerer struct {
	llm    schemas.LLMClient
	logger *zap.Logger
}

// NewAnswerer wires the QA stage.
func NewAnswerer(llm schemas.LLMClient, logger *zap.Logger) (*Answerer, error) {
	if llm == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Answerer{llm: llm, logger: logger.Named("qa")}, nil
}

// AnswerQuestions drafts an answer for every question field. The question
// set for a page is small, so a model failure aborts the batch; the
// orchestrator owns retry policy for the transient error code.
func (a *Answerer) AnswerQuestions(ctx context.Context, questions []schemas.IdentifiedElement, profile *schemas.UserProfile, job schemas.JobContext) ([]schemas.QuestionAnsweringResult, error) {
	results := make([]schemas.QuestionAnsweringResult, 0, len(questions))
	for i := range questions {
		q := &questions[i]
		result, err := a.answerOne(ctx, q, profile, job)
		if err != nil {
			return nil, schemas.NewPipelineError(schemas.ErrCodeAnswerGeneration, "qa",
				fmt.Sprintf("drafting answer for %q", q.VisualLabel), err)
		}
		results = append(results, *result)
	}
	return results, nil
}

func (a *Answerer) answerOne(ctx context.Context, q *schemas.IdentifiedElement, profile *schemas.UserProfile, job schemas.JobContext) (*schemas.QuestionAnsweringResult, error) {
	excerpts := selectExcerpts(q.VisualLabel, profile)

	longForm := q.PredictedType == schemas.ElementTypeTextarea ||
		q.SemanticKey == "application.cover_letter_text_final"

	raw, err := a.llm.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: answerSystemPrompt,
		UserPrompt:   buildAnswerPrompt(q.VisualLabel, excerpts, job, longForm),
		Tier:         schemas.TierPowerful,
		Options: schemas.GenerationOptions{
			Temperature:     0.4,
			ForceJSONFormat: true,
		},
	})
	if err != nil {
		return nil, err
	}

	parsed, err := llmutil.ParseJSONResponse[answerResponse](raw)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(parsed.Answer) == "" {
		return nil, fmt.Errorf("model returned an empty answer")
	}

	// Only report sources that were actually offered; the model sometimes
	// echoes keys it was never shown.
	offered := make(map[string]bool, len(excerpts))
	for _, e := range excerpts {
		offered[e.key] = true
	}
	var sources []string
	for _, s := range parsed.SourcesUsed {
		if offered[s] {
			sources = append(sources, s)
		}
	}

	a.logger.Info("Drafted answer awaiting review",
		zap.String("field_id", q.ID),
		zap.String("question", q.VisualLabel),
		zap.Int("sources", len(sources)),
	)

	return &schemas.QuestionAnsweringResult{
		FieldID:     q.ID,
		SemanticKey: q.SemanticKey,
		Question:    q.VisualLabel,
		DraftAnswer: strings.TrimSpace(parsed.Answer),
		Sources:     sources,
	}, nil
}

type excerpt struct {
	key   string
	value string
	score int
}

// selectExcerpts picks the profile sections most topically relevant to the
// question by token overlap between the question text and each dotted key
// plus its value. The whole profile is never shipped to the model.
func selectExcerpts(question string, profile *schemas.UserProfile) []excerpt {
	if profile == nil {
		return nil
	}
	qTokens := tokenize(question)

	var scored []excerpt
	for _, key := range profile.Keys() {
		value, ok := profile.Lookup(key)
		if !ok {
			continue
		}
		score := 0
		keyTokens := tokenize(strings.ReplaceAll(key, ".", " ") + " " + strings.ReplaceAll(key, "_", " "))
		for token := range qTokens {
			if keyTokens[token] {
				score += 2
			}
		}
		for token := range tokenize(value) {
			if qTokens[token] {
				score++
			}
		}
		scored = append(scored, excerpt{key: key, value: value, score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	// Keep positively relevant sections, padding with a few general ones so
	// the model always has some grounding material.
	out := make([]excerpt, 0, maxExcerpts)
	for _, e := range scored {
		if len(out) >= maxExcerpts {
			break
		}
		if e.score > 0 || len(out) < 3 {
			out = append(out, e)
		}
	}
	return out
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "of": true,
	"to": true, "in": true, "on": true, "for": true, "you": true, "your": true,
	"do": true, "does": true, "is": true, "are": true, "why": true, "what": true,
	"how": true, "please": true, "describe": true, "tell": true, "us": true,
	"about": true, "with": true, "this": true, "that": true,
}

func tokenize(s string) map[string]bool {
	tokens := map[string]bool{}
	for _, field := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		if len(field) < 2 || stopwords[field] {
			continue
		}
		tokens[field] = true
	}
	return tokens
}

func buildAnswerPrompt(question string, excerpts []excerpt, job schemas.JobContext, longForm bool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Application question: %q\n\n", question)

	if job.Title != "" || job.Company != "" {
		fmt.Fprintf(&sb, "Position: %s at %s\n", job.Title, job.Company)
	}
	if job.Description != "" {
		fmt.Fprintf(&sb, "Job description (truncated):\n%s\n", truncate(job.Description, 1500))
	}

	sb.WriteString("\nApplicant profile excerpts:\n")
	if len(excerpts) == 0 {
		sb.WriteString("(none available)\n")
	}
	for _, e := range excerpts {
		fmt.Fprintf(&sb, "- %s: %s\n", e.key, e.value)
	}

	if longForm {
		sb.WriteString("\nWrite 2-4 paragraphs in the applicant's voice.\n")
	} else {
		sb.WriteString("\nWrite 1-3 sentences in the applicant's voice.\n")
	}
	sb.WriteString(`If the excerpts do not contain the information needed, state that the
information is not available in the applicant's profile; do not fabricate.

Respond with JSON: {"answer": "...", "sources_used": ["excerpt keys actually used"]}`)
	return sb.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
