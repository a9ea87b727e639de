package orchestration

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Gate bounds the number of simultaneously in-flight task executions.
type Gate struct {
	sem *semaphore.Weighted
}

// NewGate builds a gate admitting at most maxConcurrent task bodies.
func NewGate(maxConcurrent int) *Gate {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Gate{sem: semaphore.NewWeighted(int64(maxConcurrent))}
}

// Enter blocks until a slot frees or the context is cancelled. Callers must
// pair every successful Enter with exactly one Exit, on all exit paths.
func (g *Gate) Enter(ctx context.Context) error {
	return g.sem.Acquire(ctx, 1)
}

// Exit releases a slot.
func (g *Gate) Exit() {
	g.sem.Release(1)
}
