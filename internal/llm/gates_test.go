package llm

import (
	"context"
	"testing"
	"time"
)

func TestGatesLimitPerModel(t *testing.T) {
	g := newModelGates(2)

	rel1, err := g.acquire(context.Background(), "m")
	if err != nil {
		t.Fatalf("acquire 1: %v", err)
	}
	rel2, err := g.acquire(context.Background(), "m")
	if err != nil {
		t.Fatalf("acquire 2: %v", err)
	}
	if got := g.inflight("m"); got != 2 {
		t.Errorf("inflight = %d, want 2", got)
	}

	// Third acquire must block until a slot frees.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := g.acquire(ctx, "m"); err == nil {
		t.Fatal("acquire 3 should have blocked until ctx expiry")
	}

	// Other models are unaffected.
	relOther, err := g.acquire(context.Background(), "other")
	if err != nil {
		t.Fatalf("acquire other model: %v", err)
	}
	relOther()

	rel1()
	rel3, err := g.acquire(context.Background(), "m")
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	rel3()
	rel2()

	if got := g.inflight("m"); got != 0 {
		t.Errorf("inflight after releases = %d, want 0", got)
	}
}
