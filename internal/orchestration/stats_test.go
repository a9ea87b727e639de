package orchestration

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBatchStatsLifecycle(t *testing.T) {
	s := &BatchStats{}
	s.Reset()

	s.TaskStarted()
	s.TaskStarted()
	view := s.View()
	assert.Equal(t, 2, view.Dispatched)
	assert.Equal(t, 2, view.InProgress)

	s.TaskCompleted()
	s.TaskFailed()
	view = s.View()
	assert.Equal(t, 1, view.Completed)
	assert.Equal(t, 1, view.Failed)
	assert.Equal(t, 0, view.InProgress)

	s.Reset()
	view = s.View()
	assert.Equal(t, 0, view.Dispatched)
	assert.Equal(t, 0, view.Completed)
	assert.Equal(t, 0, view.Failed)
}

func TestBatchStatsInProgressNeverNegative(t *testing.T) {
	s := &BatchStats{}
	s.Reset()

	s.TaskCompleted()
	s.TaskFailed()
	assert.Equal(t, 0, s.View().InProgress)
}

func TestBatchStatsTaskAborted(t *testing.T) {
	s := &BatchStats{}
	s.Reset()

	s.TaskAborted()
	view := s.View()
	assert.Equal(t, 1, view.Dispatched)
	assert.Equal(t, 1, view.Failed)
	assert.Equal(t, 0, view.InProgress)
	assert.LessOrEqual(t, view.Completed+view.Failed, view.Dispatched)
}

func TestBatchStatsConcurrentUpdates(t *testing.T) {
	s := &BatchStats{}
	s.Reset()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(fail bool) {
			defer wg.Done()
			s.TaskStarted()
			if fail {
				s.TaskFailed()
			} else {
				s.TaskCompleted()
			}
		}(i%5 == 0)
	}
	wg.Wait()

	view := s.View()
	assert.Equal(t, 50, view.Dispatched)
	assert.Equal(t, 40, view.Completed)
	assert.Equal(t, 10, view.Failed)
	assert.Equal(t, 0, view.InProgress)
}
