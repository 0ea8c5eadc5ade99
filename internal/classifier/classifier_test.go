package classifier

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/calyptra/skillflow/internal/engine"
	"github.com/calyptra/skillflow/internal/model"
	"github.com/calyptra/skillflow/internal/store"
)

// fakeEngine returns a scripted answer and records the request.
type fakeEngine struct {
	text string
	err  error
	last engine.Request
}

func (f *fakeEngine) Execute(ctx context.Context, req engine.Request) (*engine.Result, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &engine.Result{Text: f.text, SessionID: "sess-1"}, nil
}

func seedRegistry(t *testing.T) *store.MemoryStore {
	t.Helper()
	ms := store.NewMemoryStore()
	ctx := context.Background()
	for _, wf := range []*model.Workflow{
		{
			ID:          "wf-digest",
			Name:        "Email Digest",
			Description: "Summarize unread mail into a daily digest",
			Steps:       []model.Step{{Order: 0, Task: "fetch unread mail"}},
		},
		{
			ID:          "wf-standup",
			Name:        "Standup Notes",
			Description: "Collect yesterday's commits into standup notes",
			Steps:       []model.Step{{Order: 0, Task: "list commits"}},
		},
	} {
		if err := ms.SaveWorkflow(ctx, wf); err != nil {
			t.Fatal(err)
		}
	}
	return ms
}

func TestClassifyMatch(t *testing.T) {
	ms := seedRegistry(t)
	fe := &fakeEngine{text: `{"workflow": "Email Digest", "confidence": "high", "reasoning": "mail summary request"}`}
	c := New(ms, fe)

	res := c.Classify(context.Background(), "give me a digest of my inbox")

	if !res.Matched() {
		t.Fatal("expected a match")
	}
	if res.WorkflowID != "wf-digest" {
		t.Errorf("WorkflowID = %q, want wf-digest", res.WorkflowID)
	}
	if res.Workflow == nil || len(res.Workflow.Steps) == 0 {
		t.Error("match must carry the full workflow with steps")
	}
	if res.Confidence != model.ConfidenceHigh {
		t.Errorf("Confidence = %q, want high", res.Confidence)
	}
}

func TestClassifyCaseInsensitiveName(t *testing.T) {
	ms := seedRegistry(t)
	fe := &fakeEngine{text: `{"workflow": "EMAIL DIGEST", "confidence": "medium", "reasoning": "r"}`}
	c := New(ms, fe)

	res := c.Classify(context.Background(), "digest")
	if res.WorkflowID != "wf-digest" {
		t.Errorf("WorkflowID = %q, want case-insensitive match", res.WorkflowID)
	}
}

func TestClassifyToleratesSurroundingProse(t *testing.T) {
	ms := seedRegistry(t)
	fe := &fakeEngine{text: "Sure! Here is my answer:\n```json\n" +
		`{"workflow": "Standup Notes", "confidence": "high", "reasoning": "r"}` +
		"\n```\nLet me know if you need more."}
	c := New(ms, fe)

	res := c.Classify(context.Background(), "standup")
	if res.WorkflowID != "wf-standup" {
		t.Errorf("WorkflowID = %q, want wf-standup despite prose", res.WorkflowID)
	}
}

func TestClassifyPromptUsesSummariesOnly(t *testing.T) {
	ms := seedRegistry(t)
	fe := &fakeEngine{text: `{"workflow": "", "confidence": "none", "reasoning": ""}`}
	c := New(ms, fe)

	c.Classify(context.Background(), "anything")

	if fe.last.Prompt == "" {
		t.Fatal("engine never called")
	}
	for _, leaked := range []string{"fetch unread mail", "list commits"} {
		if strings.Contains(fe.last.Prompt, leaked) {
			t.Errorf("step detail %q leaked into classification prompt", leaked)
		}
	}
	if !strings.Contains(fe.last.Prompt, "Email Digest") {
		t.Error("registry names missing from prompt")
	}
}

func TestClassifyDegradations(t *testing.T) {
	ms := seedRegistry(t)
	ctx := context.Background()

	cases := []struct {
		name string
		fe   *fakeEngine
	}{
		{"engine failure", &fakeEngine{err: errors.New("engine down")}},
		{"no JSON in output", &fakeEngine{text: "I could not decide."}},
		{"malformed JSON", &fakeEngine{text: `{"workflow": "Email Digest", "confidence":`}},
		{"unregistered name", &fakeEngine{text: `{"workflow": "Nope", "confidence": "high", "reasoning": "r"}`}},
		{"explicit none", &fakeEngine{text: `{"workflow": "", "confidence": "none", "reasoning": "nothing fits"}`}},
		{"unknown confidence", &fakeEngine{text: `{"workflow": "Email Digest", "confidence": "very sure", "reasoning": "r"}`}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := New(ms, tc.fe).Classify(ctx, "prompt")
			if res == nil {
				t.Fatal("result must never be nil")
			}
			if res.Matched() {
				t.Errorf("Matched() = true, want degradation to none")
			}
			if res.Confidence != model.ConfidenceNone {
				t.Errorf("Confidence = %q, want none", res.Confidence)
			}
		})
	}
}

func TestClassifyNoMatchKeepsParsedConfidence(t *testing.T) {
	ms := seedRegistry(t)
	fe := &fakeEngine{text: `{"workflow": "", "confidence": "low", "reasoning": "vaguely related"}`}
	c := New(ms, fe)

	res := c.Classify(context.Background(), "prompt")

	if res.Matched() {
		t.Fatal("empty workflow name must not match")
	}
	if res.Confidence != model.ConfidenceLow {
		t.Errorf("Confidence = %q, want the model's own grade low", res.Confidence)
	}
	if res.Reasoning != "vaguely related" {
		t.Errorf("Reasoning = %q", res.Reasoning)
	}
}

func TestClassifyEmptyRegistry(t *testing.T) {
	fe := &fakeEngine{text: `{"workflow": "Email Digest", "confidence": "high", "reasoning": "r"}`}
	c := New(store.NewMemoryStore(), fe)

	res := c.Classify(context.Background(), "prompt")
	if res.Matched() {
		t.Error("empty registry must never match")
	}
	if fe.last.Prompt != "" {
		t.Error("no engine call expected for an empty registry")
	}
}
