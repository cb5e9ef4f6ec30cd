package vm

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jbweber/anvil/internal/config"
)

// Ping reports whether endpoint id accepts a connection and answers an
// RPC.
func (c *Controller) Ping(ctx context.Context, id string) bool {
	start := time.Now()
	err := c.withSession(ctx, id, func(_ config.Endpoint, sess session) error {
		_, err := sess.ConnectGetLibVersion()
		return err
	})
	c.metrics.ObserveOperation("ping", start, err)
	if err != nil {
		c.log.V(1).Info("Endpoint is not alive", "endpoint", id, "error", err.Error())
		return false
	}
	return true
}

// PingAll probes every configured endpoint concurrently.
func (c *Controller) PingAll(ctx context.Context) map[string]bool {
	endpoints := c.registry.Endpoints()

	var (
		mu    sync.Mutex
		alive = make(map[string]bool, len(endpoints))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, ep := range endpoints {
		g.Go(func() error {
			ok := c.Ping(gctx, ep.ID)
			mu.Lock()
			alive[ep.ID] = ok
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return alive
}
