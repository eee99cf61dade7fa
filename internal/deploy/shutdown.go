package deploy

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"sitehost/internal/faults"
	"sitehost/internal/logging"
)

// teardownConcurrency bounds parallel teardowns during shutdown.
const teardownConcurrency = 8

// TeardownAll refuses new deploys and tears down every registered project
// concurrently. Deploys still in flight are waited for and their projects
// torn down afterwards, so a slow deploy cannot hold the others hostage. It
// returns when all resources are released or ctx expires, whichever comes
// first.
func (m *Manager) TeardownAll(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancel()

	if err := m.teardownRegistered(ctx); err != nil {
		return err
	}
	if err := waitGroup(ctx, &m.inflight); err != nil {
		return fmt.Errorf("wait for in-flight deploys: %w", err)
	}
	// Deploys that finished while we waited registered after the first pass.
	if err := m.teardownRegistered(ctx); err != nil {
		return err
	}

	if err := waitGroup(ctx, &m.tunnels); err != nil {
		return fmt.Errorf("wait for tunnel workers: %w", err)
	}
	return ctx.Err()
}

func (m *Manager) teardownRegistered(ctx context.Context) error {
	ids := m.registry.IDs()
	if len(ids) == 0 {
		return nil
	}
	m.logger.Info("tearing down all projects", logging.Int("count", len(ids)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(teardownConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			err := m.teardown(gctx, id, "shutdown")
			if err != nil && !errors.Is(err, faults.ErrNotFound) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

func waitGroup(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
