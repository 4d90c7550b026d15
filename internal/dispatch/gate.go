// internal/dispatch/gate.go
package dispatch

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// ConnectionGate serializes sends per messaging connection: exactly one
// holder at a time per connection id, waiters served in FIFO order so
// concurrent campaigns on the same channel share throughput fairly. Gates
// are created lazily and live for the process lifetime; they hold no
// durable state and are rebuilt empty after a restart.
type ConnectionGate struct {
	mu    sync.Mutex
	locks map[string]*connLock
}

type connLock struct {
	held    bool
	waiters []chan struct{}
}

// Token proves ownership of a connection's gate and must be passed back
// to Release.
type Token struct {
	ID           uuid.UUID
	ConnectionID string
}

func NewConnectionGate() *ConnectionGate {
	return &ConnectionGate{locks: map[string]*connLock{}}
}

// Acquire blocks until the caller holds the gate for connectionID or ctx
// is cancelled. Waiters are granted in arrival order.
func (g *ConnectionGate) Acquire(ctx context.Context, connectionID string) (*Token, error) {
	g.mu.Lock()
	l := g.locks[connectionID]
	if l == nil {
		l = &connLock{}
		g.locks[connectionID] = l
	}
	if !l.held {
		l.held = true
		g.mu.Unlock()
		return &Token{ID: uuid.New(), ConnectionID: connectionID}, nil
	}

	grant := make(chan struct{})
	l.waiters = append(l.waiters, grant)
	g.mu.Unlock()

	select {
	case <-grant:
		return &Token{ID: uuid.New(), ConnectionID: connectionID}, nil
	case <-ctx.Done():
		g.mu.Lock()
		removed := false
		for i, w := range l.waiters {
			if w == grant {
				l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
				removed = true
				break
			}
		}
		if !removed {
			// The grant raced the cancellation; hand the gate straight on.
			g.releaseLocked(l)
		}
		g.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Release hands the gate to the oldest waiter, or frees it.
func (g *ConnectionGate) Release(t *Token) {
	if t == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	l := g.locks[t.ConnectionID]
	if l == nil || !l.held {
		return
	}
	g.releaseLocked(l)
}

// releaseLocked passes ownership to the head of the queue without letting
// the gate go free in between. Caller holds g.mu.
func (g *ConnectionGate) releaseLocked(l *connLock) {
	if len(l.waiters) > 0 {
		grant := l.waiters[0]
		l.waiters = l.waiters[1:]
		close(grant)
		return
	}
	l.held = false
}
