package service

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStorePopUnknown(t *testing.T) {
	store := NewJobStore()

	job, err := store.Pop("never-created")
	assert.Nil(t, job)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestJobStorePopExactlyOnce(t *testing.T) {
	store := NewJobStore()
	payload := []byte("%PDF-1.7 test")

	id := store.Create("termsheet.pdf", payload)
	require.NotEmpty(t, id)
	assert.Equal(t, 1, store.Count())

	job, err := store.Pop(id)
	require.NoError(t, err)
	assert.Equal(t, "termsheet.pdf", job.Filename)
	assert.Equal(t, payload, job.Payload)
	assert.Equal(t, 0, store.Count())

	_, err = store.Pop(id)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestJobStoreUniqueIDs(t *testing.T) {
	store := NewJobStore()
	ids := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		ids[store.Create("a.pdf", nil)] = struct{}{}
	}
	assert.Len(t, ids, 1000)
}

func TestJobStoreIndependentInstances(t *testing.T) {
	a := NewJobStore()
	b := NewJobStore()

	id := a.Create("a.pdf", []byte("a"))
	_, err := b.Pop(id)
	assert.ErrorIs(t, err, ErrJobNotFound)

	_, err = a.Pop(id)
	assert.NoError(t, err)
}

func TestJobStoreConcurrentCreate(t *testing.T) {
	store := NewJobStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Create("c.pdf", []byte("x"))
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, store.Count())
}

func TestJobStoreConcurrentPop(t *testing.T) {
	for round := 0; round < 20; round++ {
		store := NewJobStore()
		id := store.Create("race.pdf", []byte("payload"))

		var winners atomic.Int32
		var wg sync.WaitGroup
		start := make(chan struct{})
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				if _, err := store.Pop(id); err == nil {
					winners.Add(1)
				}
			}()
		}
		close(start)
		wg.Wait()

		assert.Equal(t, int32(1), winners.Load())
	}
}
