package analysis

import (
	"context"
	"fmt"
	"sync"
)

// SessionGuard grants exclusive run rights for a session. The returned
// release func must be called exactly once.
type SessionGuard interface {
	Acquire(ctx context.Context, sessionID string) (release func(), err error)
}

// LocalGuard serializes runs within one process.
type LocalGuard struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func NewLocalGuard() *LocalGuard {
	return &LocalGuard{running: make(map[string]struct{})}
}

func (g *LocalGuard) Acquire(_ context.Context, sessionID string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.running[sessionID]; ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrRunInProgress)
	}
	g.running[sessionID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.running, sessionID)
			g.mu.Unlock()
		})
	}, nil
}

// Running reports whether a run currently holds sessionID.
func (g *LocalGuard) Running(sessionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.running[sessionID]
	return ok
}

type chainGuard []SessionGuard

// ChainGuards acquires every guard in order and releases them in reverse.
// If one refuses, the ones already held are released.
func ChainGuards(guards ...SessionGuard) SessionGuard {
	return chainGuard(guards)
}

func (c chainGuard) Acquire(ctx context.Context, sessionID string) (func(), error) {
	releases := make([]func(), 0, len(c))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}

	for _, g := range c {
		release, err := g.Acquire(ctx, sessionID)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, release)
	}

	return releaseAll, nil
}
