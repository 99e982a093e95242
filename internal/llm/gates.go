package llm

import (
	"context"
	"sync"
)

// modelGates bounds concurrent in-flight calls per model. Each model gets a
// buffered channel used as a counting semaphore; the map itself is guarded
// separately so acquiring never holds the mutex while blocked.
type modelGates struct {
	mu    sync.Mutex
	limit int
	gates map[string]chan struct{}
}

func newModelGates(limit int) *modelGates {
	return &modelGates{limit: limit, gates: make(map[string]chan struct{})}
}

// acquire blocks until a slot for model frees up or ctx is done. The returned
// func releases the slot and must be called exactly once.
func (g *modelGates) acquire(ctx context.Context, model string) (func(), error) {
	g.mu.Lock()
	gate, ok := g.gates[model]
	if !ok {
		gate = make(chan struct{}, g.limit)
		g.gates[model] = gate
	}
	g.mu.Unlock()

	select {
	case gate <- struct{}{}:
		return func() { <-gate }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// inflight reports the current slot usage for model.
func (g *modelGates) inflight(model string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if gate, ok := g.gates[model]; ok {
		return len(gate)
	}
	return 0
}
