package sinks

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"roc/internal/domain"
)

func TestMemoryStorePushAndProgress(t *testing.T) {
	store := NewMemoryStore()

	store.Push(domain.ProgressSnapshot{JobID: "job-1", CurrentIteration: 1})
	store.Push(domain.ProgressSnapshot{JobID: "job-1", CurrentIteration: 2})

	snap, ok := store.Progress("job-1")
	assert.True(t, ok)
	assert.Equal(t, 2, snap.CurrentIteration)
}

func TestMemoryStoreProgressMissingJob(t *testing.T) {
	store := NewMemoryStore()

	_, ok := store.Progress("missing")
	assert.False(t, ok)
}

func TestMemoryStoreCommitAndJob(t *testing.T) {
	store := NewMemoryStore()
	job := domain.Job{ID: "job-2", Status: domain.JobCompleted}

	store.Commit(job)

	got, ok := store.Job("job-2")
	assert.True(t, ok)
	assert.Equal(t, domain.JobCompleted, got.Status)
}

func TestMemoryStoreEvictRemovesAllEntries(t *testing.T) {
	store := NewMemoryStore()
	store.Push(domain.ProgressSnapshot{JobID: "job-3"})
	store.Commit(domain.Job{ID: "job-3", Status: domain.JobCompleted})

	assert.Equal(t, 1, store.Len())

	store.Evict("job-3")

	_, progressOk := store.Progress("job-3")
	_, jobOk := store.Job("job-3")
	assert.False(t, progressOk)
	assert.False(t, jobOk)
	assert.Equal(t, 0, store.Len())
}

func TestMemoryStoreTolerateDuplicateAndOutOfOrderWrites(t *testing.T) {
	store := NewMemoryStore()

	store.Push(domain.ProgressSnapshot{JobID: "job-4", CurrentIteration: 5})
	store.Push(domain.ProgressSnapshot{JobID: "job-4", CurrentIteration: 3})
	store.Push(domain.ProgressSnapshot{JobID: "job-4", CurrentIteration: 3})

	snap, ok := store.Progress("job-4")
	assert.True(t, ok)
	assert.Equal(t, 3, snap.CurrentIteration)
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	store := NewMemoryStore()
	done := make(chan struct{})

	go func() {
		for i := 0; i < 100; i++ {
			store.Push(domain.ProgressSnapshot{JobID: "job-5", CurrentIteration: i})
		}
		close(done)
	}()

	for i := 0; i < 100; i++ {
		store.Progress("job-5")
	}
	<-done
}
