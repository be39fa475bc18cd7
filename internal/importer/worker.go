package importer

import (
	"bytes"
	"errors"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/vbehar/ffckmembers/internal/metrics"
	"github.com/vbehar/ffckmembers/internal/model"
	"github.com/vbehar/ffckmembers/internal/store"
)

// ErrQueueFull is returned by Enqueue when too many import runs are waiting.
var ErrQueueFull = errors.New("import queue is full")

// maxFinishedRuns bounds how many finished run statuses stay available for
// polling. Beyond that the oldest finished runs are forgotten, so the status
// registry cannot grow with the lifetime of the service.
const maxFinishedRuns = 100

// RunState is the lifecycle state of a queued import run.
type RunState string

const (
	RunPending RunState = "pending"
	RunRunning RunState = "running"
	RunDone    RunState = "done"
	RunFailed  RunState = "failed"
)

// RunStatus reports where a queued import run stands. The summary is set
// once the run finished, even for a failed run (it then covers the rows
// applied before the failure).
type RunStatus struct {
	ID      uuid.UUID `json:"id"`
	State   RunState  `json:"state"`
	Summary *Summary  `json:"summary,omitempty"`
	Error   string    `json:"error,omitempty"`
}

type queuedRun struct {
	id   uuid.UUID
	data []byte
}

// Worker processes import runs one at a time, in submission order, on a
// single background goroutine. There is no cancellation: once started, a run
// goes on until its source is exhausted.
type Worker struct {
	importer *Importer
	notifier *store.Notifier
	metrics  *metrics.Metrics
	queue    chan queuedRun

	mu       sync.Mutex
	runs     map[uuid.UUID]RunStatus
	finished []uuid.UUID
}

// NewWorker builds a Worker with the given queue capacity. The notifier and
// metrics may be nil. Call Start before enqueueing.
func NewWorker(imp *Importer, notifier *store.Notifier, m *metrics.Metrics, queueSize int) *Worker {
	return &Worker{
		importer: imp,
		notifier: notifier,
		metrics:  m,
		queue:    make(chan queuedRun, queueSize),
		runs:     make(map[uuid.UUID]RunStatus),
	}
}

// Start launches the background goroutine.
func (w *Worker) Start() {
	go func() {
		for run := range w.queue {
			w.process(run)
		}
	}()
}

// Enqueue submits the raw bytes of a CSV source for import and returns the
// run identifier immediately. It fails with ErrQueueFull instead of
// blocking.
func (w *Worker) Enqueue(data []byte) (uuid.UUID, error) {
	run := queuedRun{id: uuid.New(), data: data}
	w.setStatus(RunStatus{ID: run.id, State: RunPending})
	select {
	case w.queue <- run:
		return run.id, nil
	default:
		w.forget(run.id)
		return uuid.Nil, ErrQueueFull
	}
}

// Status reports the state of a run, and whether the run is known at all.
func (w *Worker) Status(id uuid.UUID) (RunStatus, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	status, ok := w.runs[id]
	return status, ok
}

func (w *Worker) process(run queuedRun) {
	w.setStatus(RunStatus{ID: run.id, State: RunRunning})

	summary, err := w.importer.Run(run.id, bytes.NewReader(run.data))
	if err != nil {
		log.Printf("import run %s failed: %v", run.id, err)
		w.finish(RunStatus{ID: run.id, State: RunFailed, Summary: &summary, Error: err.Error()})
		w.metrics.CountImportRun("failed")
	} else {
		log.Printf("import run %s done: %d rows, %d inserted, %d updated, %d stale, %d empty, %d invalid",
			run.id, summary.Rows, summary.Inserted, summary.Updated,
			summary.SkippedStale, summary.SkippedEmpty, summary.SkippedInvalid)
		w.finish(RunStatus{ID: run.id, State: RunDone, Summary: &summary})
		w.metrics.CountImportRun("done")
	}

	// completed runs may have touched many rows: tell the watchers of the
	// collection to re-query
	w.notifier.Notify(model.CollectionAddress)
}

func (w *Worker) setStatus(status RunStatus) {
	w.mu.Lock()
	w.runs[status.ID] = status
	w.mu.Unlock()
}

// finish records the final status of a run and evicts the oldest finished
// runs beyond the retention cap.
func (w *Worker) finish(status RunStatus) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.runs[status.ID] = status
	w.finished = append(w.finished, status.ID)
	for len(w.finished) > maxFinishedRuns {
		delete(w.runs, w.finished[0])
		w.finished = w.finished[1:]
	}
}

func (w *Worker) forget(id uuid.UUID) {
	w.mu.Lock()
	delete(w.runs, id)
	w.mu.Unlock()
}
