package orchestration

import (
	"sync"
	"time"
)

// BatchStats holds the shared batch counters. It is constructed per batch
// run and passed by reference to every task runner; all access goes through
// one mutex. Lifecycle: Reset at batch start, read by the progress monitor,
// mutated by runners, discarded at batch end.
type BatchStats struct {
	mu sync.Mutex

	startTime  time.Time
	dispatched int
	inProgress int
	completed  int
	failed     int
}

// StatsView is a consistent point-in-time copy of the counters.
type StatsView struct {
	Dispatched int
	InProgress int
	Completed  int
	Failed     int
	Elapsed    time.Duration
}

// Reset zeroes all counters and stamps the batch start time.
func (s *BatchStats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startTime = time.Now()
	s.dispatched = 0
	s.inProgress = 0
	s.completed = 0
	s.failed = 0
}

// TaskStarted counts a dispatch: dispatched and in-progress both rise.
func (s *BatchStats) TaskStarted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dispatched++
	s.inProgress++
}

// TaskCompleted records a successful finish.
func (s *BatchStats) TaskCompleted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed++
	if s.inProgress > 0 {
		s.inProgress--
	}
}

// TaskAborted records a task that failed before entering execution, e.g. a
// cancelled wait for the rate limiter or a concurrency slot. Dispatched and
// failed rise together; the task was never in progress.
func (s *BatchStats) TaskAborted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dispatched++
	s.failed++
}

// TaskFailed records a failed finish.
func (s *BatchStats) TaskFailed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed++
	if s.inProgress > 0 {
		s.inProgress--
	}
}

// View returns a copy of the counters.
func (s *BatchStats) View() StatsView {
	s.mu.Lock()
	defer s.mu.Unlock()
	var elapsed time.Duration
	if !s.startTime.IsZero() {
		elapsed = time.Since(s.startTime)
	}
	return StatsView{
		Dispatched: s.dispatched,
		InProgress: s.inProgress,
		Completed:  s.completed,
		Failed:     s.failed,
		Elapsed:    elapsed,
	}
}
