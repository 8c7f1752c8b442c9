package usecase

import (
	"context"
	"sync"

	"chlumarket/internal/domain"

	"golang.org/x/sync/errgroup"
)

type LifecycleState string

const (
	StateStopped  LifecycleState = "stopped"
	StateStarting LifecycleState = "starting"
	StateStarted  LifecycleState = "started"
	StateStopping LifecycleState = "stopping"
)

type transition struct {
	done chan struct{}
	err  error
}

// Lifecycle starts and stops its components together. Concurrent Start
// calls share one underlying startup; so do concurrent Stop calls.
type Lifecycle struct {
	components []Component

	mu      sync.Mutex
	state   LifecycleState
	pending *transition
}

func NewLifecycle(components ...Component) *Lifecycle {
	return &Lifecycle{components: components, state: StateStopped}
}

func (l *Lifecycle) State() LifecycleState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Lifecycle) Start(ctx context.Context) error {
	return l.transition(ctx, StateStarted, StateStarting, StateStopping, "cannot start while stopping",
		func(c Component, ctx context.Context) error { return c.Start(ctx) },
		func(c Component, ctx context.Context) error { return c.Stop(ctx) })
}

func (l *Lifecycle) Stop(ctx context.Context) error {
	return l.transition(ctx, StateStopped, StateStopping, StateStarting, "cannot stop while starting",
		func(c Component, ctx context.Context) error { return c.Stop(ctx) }, nil)
}

func (l *Lifecycle) transition(
	ctx context.Context,
	target, via, conflicting LifecycleState,
	conflictMsg string,
	step, undo func(Component, context.Context) error,
) error {
	l.mu.Lock()
	switch l.state {
	case target:
		l.mu.Unlock()
		return nil
	case conflicting:
		l.mu.Unlock()
		return domain.NewError(domain.ErrLifecycleConflict, conflictMsg)
	case via:
		t := l.pending
		l.mu.Unlock()
		select {
		case <-t.done:
			return t.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	from := l.state
	t := &transition{done: make(chan struct{})}
	l.state = via
	l.pending = t
	l.mu.Unlock()

	// The shared transition must not be cut short by the first caller's
	// cancellation since later callers wait on it too.
	detached := context.WithoutCancel(ctx)
	done := make([]bool, len(l.components))
	g, gctx := errgroup.WithContext(detached)
	for i, c := range l.components {
		i, c := i, c
		g.Go(func() error {
			if err := step(c, gctx); err != nil {
				return err
			}
			done[i] = true
			return nil
		})
	}
	err := g.Wait()
	if err != nil && undo != nil {
		l.undo(detached, done, undo)
	}

	l.mu.Lock()
	if err != nil {
		l.state = from
		t.err = domain.Upstream(err)
	} else {
		l.state = target
	}
	l.pending = nil
	close(t.done)
	l.mu.Unlock()

	if err != nil {
		log.Errorw("lifecycle transition failed", "target", target, "err", err)
		return t.err
	}
	log.Infow("lifecycle transition complete", "state", target)
	return nil
}

// undo reverses step on the components that completed it before a sibling
// failed, so a failed Start leaves nothing running.
func (l *Lifecycle) undo(ctx context.Context, done []bool, undo func(Component, context.Context) error) {
	var wg sync.WaitGroup
	for i, c := range l.components {
		if !done[i] {
			continue
		}
		wg.Add(1)
		go func(c Component) {
			defer wg.Done()
			if err := undo(c, ctx); err != nil {
				log.Warnw("lifecycle rollback failed", "err", err)
			}
		}(c)
	}
	wg.Wait()
}
