// Package classifier matches an incoming request to a registered
// workflow with a single tool-free engine call. Classification is
// advisory: any failure degrades to "no match" so the caller can fall
// back, it never aborts the request.
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/calyptra/skillflow/internal/connection"
	"github.com/calyptra/skillflow/internal/engine"
	"github.com/calyptra/skillflow/internal/log"
	"github.com/calyptra/skillflow/internal/model"
	"github.com/calyptra/skillflow/internal/store"
)

// Classifier selects a workflow for a prompt.
type Classifier struct {
	workflows store.WorkflowStore
	engine    engine.Engine
}

// New creates a classifier over the workflow registry.
func New(workflows store.WorkflowStore, eng engine.Engine) *Classifier {
	return &Classifier{workflows: workflows, engine: eng}
}

// decision is the JSON shape the engine is asked to produce.
type decision struct {
	Workflow   string `json:"workflow"`
	Confidence string `json:"confidence"`
	Reasoning  string `json:"reasoning"`
}

// Classify matches prompt against the registered workflows. The result
// is never nil; on any failure Confidence is none and Workflow is nil.
func (c *Classifier) Classify(ctx context.Context, prompt string) *model.ClassificationResult {
	none := &model.ClassificationResult{Confidence: model.ConfidenceNone}

	summaries, err := c.workflows.ListWorkflowSummaries(ctx)
	if err != nil {
		log.Warn("classification skipped, registry unavailable", "error", err)
		return none
	}
	if len(summaries) == 0 {
		return none
	}

	// Classification is pure text, so every builtin tool is off.
	res, err := c.engine.Execute(ctx, engine.Request{
		Prompt:          c.buildPrompt(prompt, summaries),
		DisallowedTools: connection.Builtins(),
	})
	if err != nil {
		log.Warn("classification engine call failed", "error", err)
		return none
	}

	dec, ok := extractDecision(res.Text)
	if !ok {
		log.Warn("classification output carried no decision", "output", res.Text)
		return none
	}

	confidence := model.ParseConfidence(dec.Confidence)
	if dec.Workflow == "" {
		// No workflow named: report how sure the model was about that.
		return &model.ClassificationResult{Confidence: confidence, Reasoning: dec.Reasoning}
	}
	if confidence == model.ConfidenceNone {
		return &model.ClassificationResult{Confidence: model.ConfidenceNone, Reasoning: dec.Reasoning}
	}

	var matched *model.WorkflowSummary
	for i := range summaries {
		if strings.EqualFold(summaries[i].Name, dec.Workflow) {
			matched = &summaries[i]
			break
		}
	}
	if matched == nil {
		log.Warn("classifier named an unregistered workflow", "name", dec.Workflow)
		return none
	}

	wf, err := c.workflows.GetWorkflow(ctx, matched.ID)
	if err != nil {
		log.Warn("matched workflow could not be loaded", "id", matched.ID, "error", err)
		return none
	}

	return &model.ClassificationResult{
		WorkflowID: wf.ID,
		Workflow:   wf,
		Confidence: confidence,
		Reasoning:  dec.Reasoning,
	}
}

// buildPrompt lists name and description only; steps and tools never
// reach the classifier.
func (c *Classifier) buildPrompt(prompt string, summaries []model.WorkflowSummary) string {
	var b strings.Builder
	b.WriteString("You match user requests to registered workflows.\n\n")
	b.WriteString("Registered workflows:\n")
	for _, s := range summaries {
		fmt.Fprintf(&b, "- %s: %s\n", s.Name, s.Description)
	}
	b.WriteString("\nUser request:\n")
	b.WriteString(prompt)
	b.WriteString("\n\nAnswer with JSON only, no prose:\n")
	b.WriteString(`{"workflow": "<exact name or empty string>", "confidence": "high|medium|low|none", "reasoning": "<one sentence>"}`)
	return b.String()
}

// extractDecision pulls the first {...} span out of the output, which
// tolerates prose and code fences around the JSON.
func extractDecision(text string) (decision, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return decision{}, false
	}

	var dec decision
	if err := json.Unmarshal([]byte(text[start:end+1]), &dec); err != nil {
		return decision{}, false
	}
	return dec, true
}
