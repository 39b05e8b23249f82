// Package runmanager owns the concurrency-bounded task-run registry: a
// FIFO queue gated by a semaphore, cooperative cancellation, timeouts, and
// terminal-once status transitions.
package runmanager

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/browseragent/control-plane/internal/errs"
)

// Mode selects how Submit waits for completion.
type Mode string

const (
	ModeSync  Mode = "sync"
	ModeAsync Mode = "async"
	ModeAuto  Mode = "auto"
)

// autoSyncUnitThreshold is the "light workload" cutoff.
const autoSyncUnitThreshold = 10

// Executor is the function a submitted run drives. It must check token at
// suspension points; cancellation is cooperative only.
type Executor func(ctx context.Context, runID string, token *CancelToken, onProgress func(done, total int)) (any, error)

// SubmitOptions configures one Submit call.
type SubmitOptions struct {
	Mode       Mode
	TimeoutMs  int64
	OnTerminal func(*Run)
}

// ListFilter narrows List's result set.
type ListFilter struct {
	Status     Status
	TemplateID string
	SessionID  string
	Limit      int
	Offset     int
}

// ListResult carries the filtered total alongside the paginated page, so
// callers can tell "total matches" from "page size".
type ListResult struct {
	Runs  []Run
	Total int
}

type entry struct {
	run      *Run
	mu       sync.Mutex
	seq      int64 // insertion order tie-breaker for same-millisecond creation
	executor Executor
	onTerm   func(*Run)
	timeout  int64
	doneCh   chan struct{}
}

// Gauges is the subset of internal/metrics the manager pushes gauges
// into; kept as a narrow interface so runmanager never imports the
// Prometheus client directly.
type Gauges interface {
	SetActiveRuns(n int)
	SetQueuedRuns(n int)
}

type noopMetrics struct{}

func (noopMetrics) SetActiveRuns(int) {}
func (noopMetrics) SetQueuedRuns(int) {}

// Manager is a process-scoped singleton owning run-id -> Run, a FIFO
// queue, and a live-set gated by a semaphore of capacity maxConcurrent.
type Manager struct {
	mu            sync.Mutex
	runs          map[string]*entry
	queue         []string // FIFO of queued run ids
	sem           chan struct{}
	maxConcurrent int
	maxQueued     int
	seq           int64
	metrics       Gauges
	log           *slog.Logger

	dispatchWake chan struct{}
	stopOnce     sync.Once
	stopCh       chan struct{}
	wg           sync.WaitGroup
}

// New builds a Manager with the given concurrency and backpressure caps.
func New(maxConcurrentRuns, maxQueuedRuns int, metrics Gauges, log *slog.Logger) *Manager {
	if maxConcurrentRuns <= 0 {
		maxConcurrentRuns = 10
	}
	if maxQueuedRuns <= 0 {
		maxQueuedRuns = 100
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if log == nil {
		log = slog.Default()
	}
	m := &Manager{
		runs:         make(map[string]*entry),
		sem:          make(chan struct{}, maxConcurrentRuns),
		maxConcurrent: maxConcurrentRuns,
		maxQueued:    maxQueuedRuns,
		metrics:      metrics,
		log:          log,
		dispatchWake: make(chan struct{}, 1),
		stopCh:       make(chan struct{}),
	}
	m.wg.Add(1)
	go m.dispatchLoop()
	return m
}

// Submit creates a run with status queued and schedules it.
func (m *Manager) Submit(templateID, sessionID string, ownsSession bool, totalSteps int, executor Executor, opts SubmitOptions) (*Run, error) {
	m.mu.Lock()
	active := 0
	for _, e := range m.runs {
		if !e.run.Status.IsTerminal() {
			active++
		}
	}
	if active >= m.maxQueued {
		m.mu.Unlock()
		return nil, errs.New(errs.RunBackpressure, "too many queued or running tasks")
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	run := &Run{
		ID:          id,
		TemplateID:  templateID,
		SessionID:   sessionID,
		OwnsSession: ownsSession,
		Status:      StatusQueued,
		Progress:    Progress{TotalSteps: totalSteps},
		ArtifactIDs: []string{},
		Metrics:     Metrics{CreatedAt: now},
		cancel:      NewCancelToken(),
	}
	m.seq++
	e := &entry{run: run, seq: m.seq, executor: executor, onTerm: opts.OnTerminal, timeout: opts.TimeoutMs, doneCh: make(chan struct{})}
	m.runs[id] = e
	m.queue = append(m.queue, id)
	m.metrics.SetQueuedRuns(len(m.queue))
	m.mu.Unlock()

	m.wake()

	mode := opts.Mode
	if mode == "" || mode == ModeAuto {
		if totalSteps <= autoSyncUnitThreshold {
			mode = ModeSync
		} else {
			mode = ModeAsync
		}
	}

	if mode == ModeSync {
		<-e.doneCh
	}
	return run, nil
}

func (m *Manager) wake() {
	select {
	case m.dispatchWake <- struct{}{}:
	default:
	}
}

// dispatchLoop pulls queued runs FIFO and acquires a semaphore slot for
// each, so ordering among ready runs is FIFO and no run holds the
// semaphore across another run's wait.
func (m *Manager) dispatchLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-m.dispatchWake:
		case <-ticker.C:
		}
		m.dispatchReady()
	}
}

func (m *Manager) dispatchReady() {
	for {
		select {
		case m.sem <- struct{}{}:
		default:
			return
		}
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.mu.Unlock()
			<-m.sem
			return
		}
		id := m.queue[0]
		m.queue = m.queue[1:]
		e, ok := m.runs[id]
		m.metrics.SetQueuedRuns(len(m.queue))
		m.mu.Unlock()
		if !ok {
			<-m.sem
			continue
		}
		m.wg.Add(1)
		go m.runOne(e)
	}
}

func (m *Manager) runOne(e *entry) {
	defer m.wg.Done()
	defer func() {
		<-m.sem
		m.metrics.SetActiveRuns(len(m.sem))
	}()

	e.mu.Lock()
	e.run.Status = StatusRunning
	e.run.Metrics.StartedAt = time.Now().UTC()
	e.mu.Unlock()

	m.metrics.SetActiveRuns(len(m.sem))

	ctx := context.Background()
	var timer *time.Timer
	if e.timeout > 0 {
		timer = time.AfterFunc(time.Duration(e.timeout)*time.Millisecond, func() {
			e.run.cancel.Cancel(string(errs.RunTimeout))
		})
	}

	onProgress := func(done, total int) {
		e.mu.Lock()
		e.run.Progress = Progress{DoneSteps: done, TotalSteps: total}
		e.mu.Unlock()
	}

	result, err := e.executor(ctx, e.run.ID, e.run.cancel, onProgress)

	if timer != nil {
		timer.Stop()
	}

	m.finish(e, result, err)
}

func (m *Manager) finish(e *entry, result any, err error) {
	e.mu.Lock()

	if e.run.Status.IsTerminal() {
		e.mu.Unlock()
		close(e.doneCh)
		return
	}

	now := time.Now().UTC()
	e.run.Metrics.EndedAt = now
	if !e.run.Metrics.StartedAt.IsZero() {
		e.run.Metrics.ElapsedMs = now.Sub(e.run.Metrics.StartedAt).Milliseconds()
	}

	canceled := e.run.cancel.Canceled()

	switch {
	case canceled:
		e.run.Status = StatusCanceled
		reason := e.run.cancel.Reason()
		code := errs.RunCanceled
		if reason == string(errs.RunTimeout) {
			code = errs.RunTimeout
			e.run.Status = StatusFailed
		}
		e.run.Err = &RunError{Code: code, Message: reason}
		if err == nil && result != nil {
			// Partial result produced after cancel is preserved.
			e.run.Result = result
		}
	case err != nil:
		e.run.Status = StatusFailed
		code, ok := errs.CodeOf(err)
		if !ok {
			code = errs.InternalError
		}
		e.run.Err = &RunError{Code: code, Message: err.Error()}
	default:
		e.run.Result = result
		e.run.Status = deriveStatus(result)
	}

	m.log.Info("run terminal", "runId", e.run.ID, "status", e.run.Status, "templateId", e.run.TemplateID)
	e.mu.Unlock()

	// Hook runs outside the entry lock so it may call back into the
	// manager, but before doneCh releases a sync submitter.
	if e.onTerm != nil {
		e.onTerm(e.run)
	}
	close(e.doneCh)
}

// Get returns a snapshot of the run, if known.
func (m *Manager) Get(runID string) (Run, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.runs[runID]
	if !ok {
		return Run{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.run.Snapshot(), true
}

// List returns runs matching filter, ordered by createdAt desc (ties
// broken by insertion order), with Total set to the size of the filtered
// set before pagination.
func (m *Manager) List(f ListFilter) ListResult {
	m.mu.Lock()
	entries := make([]*entry, 0, len(m.runs))
	for _, e := range m.runs {
		entries = append(entries, e)
	}
	m.mu.Unlock()

	matched := make([]*entry, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		r := e.run
		ok := true
		if f.Status != "" && r.Status != f.Status {
			ok = false
		}
		if f.TemplateID != "" && r.TemplateID != f.TemplateID {
			ok = false
		}
		if f.SessionID != "" && r.SessionID != f.SessionID {
			ok = false
		}
		e.mu.Unlock()
		if ok {
			matched = append(matched, e)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		ri, rj := matched[i].run, matched[j].run
		if ri.Metrics.CreatedAt.Equal(rj.Metrics.CreatedAt) {
			return matched[i].seq > matched[j].seq
		}
		return ri.Metrics.CreatedAt.After(rj.Metrics.CreatedAt)
	})

	total := len(matched)
	start := f.Offset
	if start > total {
		start = total
	}
	end := total
	if f.Limit > 0 && start+f.Limit < end {
		end = start + f.Limit
	}

	page := make([]Run, 0, end-start)
	for _, e := range matched[start:end] {
		e.mu.Lock()
		page = append(page, e.run.Snapshot())
		e.mu.Unlock()
	}
	return ListResult{Runs: page, Total: total}
}

// Cancel requests cancellation of runID. Idempotent; returns false for
// unknown or already-terminal runs.
func (m *Manager) Cancel(runID string) bool {
	m.mu.Lock()
	e, ok := m.runs[runID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	e.mu.Lock()
	terminal := e.run.Status.IsTerminal()
	e.mu.Unlock()
	if terminal {
		return false
	}
	e.run.cancel.Cancel(string(errs.RunCanceled))
	return true
}

// AttachArtifact appends artifactID to the run, permitted until terminal.
func (m *Manager) AttachArtifact(runID, artifactID string) error {
	m.mu.Lock()
	e, ok := m.runs[runID]
	m.mu.Unlock()
	if !ok {
		return errs.New(errs.RunNotFound, runID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.run.Status.IsTerminal() {
		return errs.New(errs.InvalidParameter, "run is terminal")
	}
	for _, id := range e.run.ArtifactIDs {
		if id == artifactID {
			return nil
		}
	}
	e.run.ArtifactIDs = append(e.run.ArtifactIDs, artifactID)
	return nil
}

// Dispose flushes timers and cancels every non-terminal run, then waits
// for in-flight executors to observe cancellation and return.
func (m *Manager) Dispose() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.mu.Lock()
	for _, e := range m.runs {
		e.mu.Lock()
		if !e.run.Status.IsTerminal() {
			e.run.cancel.Cancel("disposed")
		}
		e.mu.Unlock()
	}
	m.mu.Unlock()
	m.wg.Wait()
}
