package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// waitForWaiters polls until n goroutines are queued on the connection's
// gate, so tests can line waiters up in a known order.
func waitForWaiters(t *testing.T, g *ConnectionGate, connectionID string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		g.mu.Lock()
		l := g.locks[connectionID]
		queued := 0
		if l != nil {
			queued = len(l.waiters)
		}
		g.mu.Unlock()
		if queued >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d queued waiters", n)
}

func TestGateMutualExclusion(t *testing.T) {
	gate := NewConnectionGate()

	var inside int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := gate.Acquire(context.Background(), "conn-1")
			if err != nil {
				t.Errorf("Acquire failed: %v", err)
				return
			}
			if n := atomic.AddInt32(&inside, 1); n != 1 {
				t.Errorf("expected a single holder, found %d", n)
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			gate.Release(token)
		}()
	}
	wg.Wait()
}

func TestGateGrantsInArrivalOrder(t *testing.T) {
	gate := NewConnectionGate()

	holder, err := gate.Acquire(context.Background(), "conn-1")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 1; i <= 3; i++ {
		waitForWaiters(t, gate, "conn-1", i-1)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token, err := gate.Acquire(context.Background(), "conn-1")
			if err != nil {
				t.Errorf("Acquire failed: %v", err)
				return
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			gate.Release(token)
		}(i)
	}
	waitForWaiters(t, gate, "conn-1", 3)

	gate.Release(holder)
	wg.Wait()

	want := []int{1, 2, 3}
	if len(order) != len(want) {
		t.Fatalf("expected %d grants, got %v", len(want), order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected grant order %v, got %v", want, order)
		}
	}
}

func TestGateAcquireCancelledWhileWaiting(t *testing.T) {
	gate := NewConnectionGate()

	holder, err := gate.Acquire(context.Background(), "conn-1")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := gate.Acquire(ctx, "conn-1")
		errCh <- err
	}()
	waitForWaiters(t, gate, "conn-1", 1)
	cancel()

	if err := <-errCh; err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	// The abandoned slot must not wedge the gate.
	gate.Release(holder)
	token, err := gate.Acquire(context.Background(), "conn-1")
	if err != nil {
		t.Fatalf("gate unusable after cancelled waiter: %v", err)
	}
	gate.Release(token)
}

func TestGateConnectionsAreIndependent(t *testing.T) {
	gate := NewConnectionGate()

	a, err := gate.Acquire(context.Background(), "conn-a")
	if err != nil {
		t.Fatalf("Acquire conn-a failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		b, err := gate.Acquire(context.Background(), "conn-b")
		if err != nil {
			t.Errorf("Acquire conn-b failed: %v", err)
		} else {
			gate.Release(b)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("holding conn-a blocked an acquire on conn-b")
	}
	gate.Release(a)
}
