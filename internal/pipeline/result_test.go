package pipeline

import (
	"fmt"
	"sync"
	"testing"
)

func TestQueueFIFO(t *testing.T) {
	q := NewResultQueue()
	for i := 0; i < 5; i++ {
		q.Push(Result{Text: fmt.Sprintf("r%d", i)})
	}
	out := q.Drain()
	if len(out) != 5 {
		t.Fatalf("drained %d results, want 5", len(out))
	}
	for i, r := range out {
		if r.Text != fmt.Sprintf("r%d", i) {
			t.Fatalf("result %d out of order: %q", i, r.Text)
		}
	}
}

func TestQueueDrainEmpty(t *testing.T) {
	q := NewResultQueue()
	if out := q.Drain(); out != nil {
		t.Fatalf("expected nil drain, got %v", out)
	}
	q.Push(Result{Text: "a"})
	q.Drain()
	if out := q.Drain(); out != nil {
		t.Fatalf("expected nil after full drain, got %v", out)
	}
}

func TestQueueConcurrentPushesLoseNothing(t *testing.T) {
	q := NewResultQueue()
	const producers = 8
	const each = 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < each; i++ {
				q.Push(Result{SessionID: fmt.Sprintf("%d-%d", p, i)})
			}
		}(p)
	}
	wg.Wait()

	out := q.Drain()
	if len(out) != producers*each {
		t.Fatalf("drained %d results, want %d", len(out), producers*each)
	}
	seen := make(map[string]bool, len(out))
	for _, r := range out {
		if seen[r.SessionID] {
			t.Fatalf("duplicate result %s", r.SessionID)
		}
		seen[r.SessionID] = true
	}
}

func TestResultOk(t *testing.T) {
	if !(Result{Text: "hi"}).Ok() {
		t.Fatal("result without error should be ok")
	}
	if (Result{Err: "boom"}).Ok() {
		t.Fatal("result with error should not be ok")
	}
}
