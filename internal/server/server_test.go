package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calyptra/skillflow/internal/engine"
	"github.com/calyptra/skillflow/internal/errdefs"
	"github.com/calyptra/skillflow/internal/events"
	"github.com/calyptra/skillflow/internal/model"
	"github.com/calyptra/skillflow/internal/orchestrator"
	"github.com/calyptra/skillflow/internal/store"
)

type fakeClassifier struct {
	result *model.ClassificationResult
}

func (f *fakeClassifier) Classify(ctx context.Context, prompt string) *model.ClassificationResult {
	if f.result == nil {
		return &model.ClassificationResult{Confidence: model.ConfidenceNone}
	}
	return f.result
}

type fakeRunner struct {
	result *orchestrator.RunResult
	err    error
	calls  int
}

func (f *fakeRunner) Run(ctx context.Context, wf *model.Workflow, prompt, requestID string) (*orchestrator.RunResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeServerEngine struct {
	text  string
	err   error
	calls int
}

func (f *fakeServerEngine) Execute(ctx context.Context, req engine.Request) (*engine.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &engine.Result{Text: f.text, SessionID: "sess-1"}, nil
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(ctx context.Context) error { return f.err }

func matchedWorkflow() *model.ClassificationResult {
	wf := &model.Workflow{
		ID:    "wf-1",
		Name:  "Email Digest",
		Steps: []model.Step{{Order: 0, Task: "fetch"}},
	}
	return &model.ClassificationResult{
		WorkflowID: "wf-1",
		Workflow:   wf,
		Confidence: model.ConfidenceHigh,
		Reasoning:  "mail request",
	}
}

func newTestServer(cls *fakeClassifier, runner *fakeRunner, eng *fakeServerEngine) *Server {
	bus := events.NewBus()
	return New(store.NewMemoryStore(), fakePinger{}, cls, runner, eng, bus, events.NewRunStreams(bus))
}

func postJSON(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSubmitRequiresPrompt(t *testing.T) {
	s := newTestServer(&fakeClassifier{}, &fakeRunner{}, &fakeServerEngine{})

	rec := postJSON(t, s.Handler(), "/api/requests", `{"prompt": ""}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kind":"validation"`)
}

func TestSubmitRejectsUnknownMode(t *testing.T) {
	s := newTestServer(&fakeClassifier{}, &fakeRunner{}, &fakeServerEngine{})

	rec := postJSON(t, s.Handler(), "/api/requests", `{"prompt": "p", "mode": "what"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitClassifierMode(t *testing.T) {
	runner := &fakeRunner{}
	s := newTestServer(&fakeClassifier{result: matchedWorkflow()}, runner, &fakeServerEngine{})

	rec := postJSON(t, s.Handler(), "/api/requests", `{"prompt": "p", "mode": "classifier"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"workflow_id":"wf-1"`)
	assert.Contains(t, rec.Body.String(), `"confidence":"high"`)
	assert.Zero(t, runner.calls, "classifier mode never runs the workflow")
}

func TestSubmitDefaultModeRunsMatch(t *testing.T) {
	runner := &fakeRunner{result: &orchestrator.RunResult{Answer: "digest ready"}}
	eng := &fakeServerEngine{}
	s := newTestServer(&fakeClassifier{result: matchedWorkflow()}, runner, eng)

	rec := postJSON(t, s.Handler(), "/api/requests", `{"prompt": "p"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"answer":"digest ready"`)
	assert.Equal(t, 1, runner.calls)
	assert.Zero(t, eng.calls, "matched requests never take the fallback path")
}

func TestSubmitDefaultModeFallsBack(t *testing.T) {
	runner := &fakeRunner{}
	eng := &fakeServerEngine{text: "plain answer"}
	s := newTestServer(&fakeClassifier{}, runner, eng)

	rec := postJSON(t, s.Handler(), "/api/requests", `{"prompt": "p"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"answer":"plain answer"`)
	assert.Zero(t, runner.calls)
	assert.Equal(t, 1, eng.calls)
}

func TestSubmitOrchestratorModeRequiresMatch(t *testing.T) {
	s := newTestServer(&fakeClassifier{}, &fakeRunner{}, &fakeServerEngine{})

	rec := postJSON(t, s.Handler(), "/api/requests", `{"prompt": "p", "mode": "orchestrator"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kind":"validation"`)
}

func TestSubmitRunFailureMapsKind(t *testing.T) {
	runner := &fakeRunner{err: errdefs.Timeout("run exceeded deadline", nil)}
	s := newTestServer(&fakeClassifier{result: matchedWorkflow()}, runner, &fakeServerEngine{})

	rec := postJSON(t, s.Handler(), "/api/requests", `{"prompt": "p", "mode": "orchestrator"}`)

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kind":"timeout"`)
}

func TestSubmitAsyncAccepted(t *testing.T) {
	runner := &fakeRunner{result: &orchestrator.RunResult{Answer: "later"}}
	s := newTestServer(&fakeClassifier{result: matchedWorkflow()}, runner, &fakeServerEngine{})

	rec := postJSON(t, s.Handler(), "/api/requests", `{"prompt": "p", "async": true, "request_id": "req-9"}`)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"request_id":"req-9"`)
	assert.Contains(t, rec.Body.String(), `"status":"accepted"`)
}

func TestHealthOK(t *testing.T) {
	s := newTestServer(&fakeClassifier{}, &fakeRunner{}, &fakeServerEngine{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthDegraded(t *testing.T) {
	bus := events.NewBus()
	s := New(store.NewMemoryStore(), fakePinger{err: errors.New("unreachable")},
		&fakeClassifier{}, &fakeRunner{}, &fakeServerEngine{}, bus, events.NewRunStreams(bus))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "unreachable")
}

func TestStreamDeliversRunEvents(t *testing.T) {
	bus := events.NewBus()
	streams := events.NewRunStreams(bus)
	s := New(store.NewMemoryStore(), fakePinger{}, &fakeClassifier{}, &fakeRunner{}, &fakeServerEngine{}, bus, streams)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	done := make(chan string, 1)
	go func() {
		resp, err := http.Get(ts.URL + "/api/requests/req-1/stream")
		if err != nil {
			done <- "error: " + err.Error()
			return
		}
		defer resp.Body.Close()
		buf := new(strings.Builder)
		b := make([]byte, 4096)
		for {
			n, err := resp.Body.Read(b)
			buf.Write(b[:n])
			if err != nil {
				break
			}
		}
		done <- buf.String()
	}()

	// Give the listener time to attach, then drive a run to completion.
	time.Sleep(200 * time.Millisecond)
	bus.Publish(events.StepStatusEvent{RequestID: "req-1", StepOrder: 0, Task: "fetch", State: events.StepRunning})
	bus.Publish(events.RunCompletedEvent{RequestID: "req-1", Answer: "done"})

	select {
	case body := <-done:
		assert.Contains(t, body, "event: step_status")
		assert.Contains(t, body, "event: run_completed")
		assert.Contains(t, body, `"request_id":"req-1"`)
		established := strings.Index(body, "event: connection-established")
		require.GreaterOrEqual(t, established, 0, "stream must open with connection-established")
		assert.Less(t, established, strings.Index(body, "event: step_status"),
			"connection-established must precede run events")
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not terminate on run_completed")
	}
}

func TestSubmitFallbackPublishesTerminalEvent(t *testing.T) {
	bus := events.NewBus()
	var published []events.Event
	bus.SubscribeAll(func(e events.Event) { published = append(published, e) })

	eng := &fakeServerEngine{text: "plain answer"}
	s := New(store.NewMemoryStore(), fakePinger{}, &fakeClassifier{}, &fakeRunner{}, eng, bus, events.NewRunStreams(bus))

	rec := postJSON(t, s.Handler(), "/api/requests", `{"prompt": "p", "request_id": "req-7"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, published, 1)
	assert.Equal(t, events.TypeRunCompleted, published[0].Type)
	assert.Equal(t, "req-7", published[0].RequestID)
	assert.Equal(t, "plain answer", published[0].Data["answer"])
}

func TestSubmitFallbackFailurePublishesRunFailed(t *testing.T) {
	bus := events.NewBus()
	var published []events.Event
	bus.SubscribeAll(func(e events.Event) { published = append(published, e) })

	eng := &fakeServerEngine{err: errdefs.Agent("engine down", nil)}
	s := New(store.NewMemoryStore(), fakePinger{}, &fakeClassifier{}, &fakeRunner{}, eng, bus, events.NewRunStreams(bus))

	rec := postJSON(t, s.Handler(), "/api/requests", `{"prompt": "p", "request_id": "req-8"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	require.Len(t, published, 1)
	assert.Equal(t, events.TypeRunFailed, published[0].Type)
	assert.Equal(t, "req-8", published[0].RequestID)
}

func TestSubmitOrchestratorNoMatchPublishesRunFailed(t *testing.T) {
	bus := events.NewBus()
	var published []events.Event
	bus.SubscribeAll(func(e events.Event) { published = append(published, e) })

	s := New(store.NewMemoryStore(), fakePinger{}, &fakeClassifier{}, &fakeRunner{}, &fakeServerEngine{}, bus, events.NewRunStreams(bus))

	rec := postJSON(t, s.Handler(), "/api/requests", `{"prompt": "p", "mode": "orchestrator", "request_id": "req-9"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	require.Len(t, published, 1)
	assert.Equal(t, events.TypeRunFailed, published[0].Type)
	assert.Equal(t, "req-9", published[0].RequestID)
}
