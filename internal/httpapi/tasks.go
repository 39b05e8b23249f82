package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/browseragent/control-plane/internal/errs"
	"github.com/browseragent/control-plane/internal/orchestrator"
	"github.com/browseragent/control-plane/internal/runmanager"
	"github.com/browseragent/control-plane/pkg/protocol"
)

// taskEvent is one SSE-shaped lifecycle event, replayed to late
// subscribers and streamed live to connected ones.
type taskEvent struct {
	Event   string `json:"event"`
	RunID   string `json:"runId,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// taskRecord tracks one POST /v1/tasks call from submission to terminal
// outcome. The run id is unknown until the orchestrator's first
// run-scoped event, since plan_created precedes run creation.
type taskRecord struct {
	mu       sync.Mutex
	taskID   string
	runID    string
	events   []taskEvent
	subs     map[int]chan taskEvent
	nextSub  int
	done     bool
	outcome  *orchestrator.Outcome
	err      error
	createdAt time.Time
}

func (r *taskRecord) append(ev taskEvent) {
	r.mu.Lock()
	if ev.RunID != "" && r.runID == "" {
		r.runID = ev.RunID
	}
	r.events = append(r.events, ev)
	subs := make([]chan taskEvent, 0, len(r.subs))
	for _, ch := range r.subs {
		subs = append(subs, ch)
	}
	r.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (r *taskRecord) finish(outcome *orchestrator.Outcome, err error) {
	r.mu.Lock()
	r.done = true
	r.outcome = outcome
	r.err = err
	subs := make([]chan taskEvent, 0, len(r.subs))
	for _, ch := range r.subs {
		subs = append(subs, ch)
	}
	r.mu.Unlock()
	for _, ch := range subs {
		close(ch)
	}
}

// subscribe registers a new SSE listener, returning the already-recorded
// events (for replay) and a channel of events yet to come. unsubscribe
// must be called when the HTTP handler's connection closes.
func (r *taskRecord) subscribe() (replay []taskEvent, live <-chan taskEvent, unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	replay = append([]taskEvent(nil), r.events...)
	if r.done {
		return replay, nil, func() {}
	}
	id := r.nextSub
	r.nextSub++
	ch := make(chan taskEvent, 32)
	r.subs[id] = ch
	return replay, ch, func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}
}

func (r *taskRecord) snapshot() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	status := "running"
	out := map[string]any{"taskId": r.taskID, "traceId": r.taskID, "runId": r.runID, "status": status}
	if len(r.events) > 0 {
		out["lastEvent"] = r.events[len(r.events)-1]
	}
	if r.done {
		if r.err != nil {
			out["status"] = "failed"
			out["result"] = map[string]any{"success": false, "error": r.err.Error()}
		} else {
			out["status"] = string(r.outcome.Run.Status)
			out["result"] = map[string]any{
				"success": r.outcome.Run.Status == runmanager.StatusSucceeded,
				"traceId": r.taskID,
				"run":     r.outcome.Run,
			}
		}
	}
	return out
}

// taskRegistry correlates trace ids (returned from POST /v1/tasks) with
// their taskRecord for GET/DELETE/events lookups.
type taskRegistry struct {
	mu      sync.Mutex
	records map[string]*taskRecord
}

func newTaskRegistry() *taskRegistry {
	return &taskRegistry{records: make(map[string]*taskRecord)}
}

func (tr *taskRegistry) create() *taskRecord {
	rec := &taskRecord{
		taskID:    uuid.NewString(),
		subs:      make(map[int]chan taskEvent),
		createdAt: time.Now().UTC(),
	}
	tr.mu.Lock()
	tr.records[rec.taskID] = rec
	tr.mu.Unlock()
	return rec
}

func (tr *taskRegistry) get(taskID string) (*taskRecord, bool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	rec, ok := tr.records[taskID]
	return rec, ok
}

func (tr *taskRegistry) list() []*taskRecord {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	out := make([]*taskRecord, 0, len(tr.records))
	for _, rec := range tr.records {
		out = append(out, rec)
	}
	return out
}

type createTaskBody struct {
	Goal         string         `json:"goal"`
	Inputs       map[string]any `json:"inputs"`
	OutputSchema map[string]any `json:"outputSchema"`
	SessionID    string         `json:"sessionId"`
	Mode         string         `json:"mode"`
	MaxRetries   int            `json:"maxRetries"`
	MaxToolCalls int            `json:"maxToolCalls"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var body createTaskBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errs.New(errs.InvalidParameter, "invalid request body: "+err.Error()))
		return
	}
	if body.Goal == "" {
		writeError(w, errs.New(errs.InvalidParameter, "goal is required"))
		return
	}

	rec := s.tasks.create()
	req := orchestrator.TaskRequest{
		Goal:         body.Goal,
		Inputs:       body.Inputs,
		OutputSchema: body.OutputSchema,
		SessionID:    body.SessionID,
		Mode:         runmanager.Mode(body.Mode),
		Budget:       orchestrator.Budget{MaxRetries: body.MaxRetries, MaxToolCalls: body.MaxToolCalls},
		OnEvent: func(runID, event string, payload any) {
			rec.append(taskEvent{Event: event, RunID: runID, Payload: payload})
		},
	}

	go func() {
		outcome, err := s.orch.SubmitTask(context.Background(), req)
		if err != nil {
			// The stream always ends with a done event, failure included.
			rec.append(taskEvent{Event: protocol.SSEDone, Payload: map[string]any{"success": false, "error": err.Error()}})
		}
		rec.finish(outcome, err)
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{"taskId": rec.taskID, "traceId": rec.taskID, "status": "running"})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.tasks.get(r.PathValue("id"))
	if !ok {
		writeError(w, errs.New(errs.RunNotFound, r.PathValue("id")))
		return
	}
	writeJSON(w, http.StatusOK, rec.snapshot())
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	recs := s.tasks.list()
	out := make([]map[string]any, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.snapshot())
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": out, "total": len(out)})
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.tasks.get(r.PathValue("id"))
	if !ok {
		writeError(w, errs.New(errs.RunNotFound, r.PathValue("id")))
		return
	}
	rec.mu.Lock()
	runID := rec.runID
	rec.mu.Unlock()
	if runID == "" {
		writeError(w, errs.New(errs.InvalidParameter, "task has not started a run yet"))
		return
	}
	if !s.runs.Cancel(runID) {
		writeJSON(w, http.StatusOK, map[string]any{"canceled": false, "reason": "run already terminal"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"canceled": true})
}

func (s *Server) handleTaskEvents(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.tasks.get(r.PathValue("id"))
	if !ok {
		writeError(w, errs.New(errs.RunNotFound, r.PathValue("id")))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, errs.New(errs.InternalError, "streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	replay, live, unsubscribe := rec.subscribe()
	defer unsubscribe()

	for _, ev := range replay {
		writeSSE(w, ev)
	}
	flusher.Flush()

	if live == nil {
		return
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-live:
			if !ok {
				return
			}
			writeSSE(w, ev)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev taskEvent) {
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Event, b)
}
