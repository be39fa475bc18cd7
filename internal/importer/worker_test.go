package importer

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/vbehar/ffckmembers/internal/model"
	"github.com/vbehar/ffckmembers/internal/store"
)

// TestWorkerProcessesRun enqueues a source and waits for the background
// goroutine to finish it, then checks the final status and the completion
// notification on the collection address.
func TestWorkerProcessesRun(t *testing.T) {
	notifier := store.NewNotifier()
	changes := notifier.Subscribe(16)
	importer, db, mock := createMockImporter(t, nil)
	defer db.Close()

	worker := NewWorker(importer, notifier, nil, 4)
	worker.Start()

	// header only: nothing to reconcile, no database traffic
	id, err := worker.Enqueue([]byte("CODE ADHERENT;NOM;PRENOM\n"))
	assert.NoError(t, err)

	assert.Eventually(t, func() bool {
		status, ok := worker.Status(id)
		return ok && status.State == RunDone
	}, time.Second, 5*time.Millisecond)

	status, ok := worker.Status(id)
	assert.True(t, ok)
	if assert.NotNil(t, status.Summary) {
		assert.Equal(t, 0, status.Summary.Rows)
	}
	assert.Equal(t, store.Change{Address: model.CollectionAddress}, <-changes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestWorkerFailedRun enqueues a run whose store dies underneath and expects
// the run to end up failed, with the error recorded in its status.
func TestWorkerFailedRun(t *testing.T) {
	importer, db, mock := createMockImporter(t, nil)
	defer db.Close()

	mock.ExpectQuery("SELECT \\* FROM members WHERE code").
		WillReturnError(errors.New("connection lost"))

	worker := NewWorker(importer, nil, nil, 4)
	worker.Start()

	id, err := worker.Enqueue([]byte("CODE ADHERENT;NOM;PRENOM\n000001;arnaud;anna\n"))
	assert.NoError(t, err)

	assert.Eventually(t, func() bool {
		status, ok := worker.Status(id)
		return ok && status.State == RunFailed
	}, time.Second, 5*time.Millisecond)

	status, _ := worker.Status(id)
	assert.Contains(t, status.Error, "connection lost")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestWorkerQueueFull expects Enqueue to fail fast instead of blocking when
// the worker is not draining its queue.
func TestWorkerQueueFull(t *testing.T) {
	importer, db, _ := createMockImporter(t, nil)
	defer db.Close()

	// never started: the queue only drains into nothing
	worker := NewWorker(importer, nil, nil, 1)

	first, err := worker.Enqueue([]byte("CODE ADHERENT\n"))
	assert.NoError(t, err)

	_, err = worker.Enqueue([]byte("CODE ADHERENT\n"))
	assert.ErrorIs(t, err, ErrQueueFull)

	// the rejected run is not tracked, the queued one is
	status, ok := worker.Status(first)
	assert.True(t, ok)
	assert.Equal(t, RunPending, status.State)
}

// TestWorkerEvictsFinishedRuns pushes more runs through the worker than the
// retention cap and expects the oldest finished statuses to be forgotten
// while the recent ones stay pollable.
func TestWorkerEvictsFinishedRuns(t *testing.T) {
	importer, db, _ := createMockImporter(t, nil)
	defer db.Close()

	worker := NewWorker(importer, nil, nil, 1)

	// header only: nothing to reconcile, no database traffic
	ids := make([]uuid.UUID, maxFinishedRuns+1)
	for i := range ids {
		ids[i] = uuid.New()
		worker.process(queuedRun{id: ids[i], data: []byte("CODE ADHERENT;NOM;PRENOM\n")})
	}

	_, ok := worker.Status(ids[0])
	assert.False(t, ok)

	status, ok := worker.Status(ids[len(ids)-1])
	assert.True(t, ok)
	assert.Equal(t, RunDone, status.State)
}

// TestWorkerUnknownRun expects Status to report unknown identifiers.
func TestWorkerUnknownRun(t *testing.T) {
	importer, db, _ := createMockImporter(t, nil)
	defer db.Close()

	worker := NewWorker(importer, nil, nil, 1)
	_, ok := worker.Status(uuid.New())
	assert.False(t, ok)
}
