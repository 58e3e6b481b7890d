// Package lifecycle sequences startup and shutdown of every background
// component: Publisher, Subscriber, Re-announcer, event pipeline, and TTL
// reaper, plus the self-describing origin object and the process directory.
package lifecycle

import (
	"context"
	"log"
	"os"
	"sync"

	"sapphire-kv/internal/fabric"
	"sapphire-kv/internal/process"
	"sapphire-kv/internal/publisher"
)

// Background is anything lifecycle.Controller runs and waits on.
type Background interface {
	Run(ctx context.Context)
}

// Controller owns the background components of a running fabric and
// sequences Start/Stop/Join exactly as original_source's KVObjectsManager
// does.
type Controller struct {
	reg       *fabric.Registry
	processes *process.Directory
	publisher *publisher.Publisher
	logger    *log.Logger

	components []Background

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs a Controller. components are started in Start and run
// until Stop cancels their context; pub is kept separately so Stop can drain
// unpublish announces for every locally-originated object.
func New(reg *fabric.Registry, processes *process.Directory, pub *publisher.Publisher, logger *log.Logger, components ...Background) *Controller {
	if logger == nil {
		logger = log.New(log.Writer(), "[lifecycle] ", log.LstdFlags)
	}
	return &Controller{
		reg:        reg,
		processes:  processes,
		publisher:  pub,
		logger:     logger,
		components: components,
	}
}

// Start launches every background component and announces the self-describing
// origin object. It is an error to call Start twice.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return fabric.ErrAlreadyStarted
	}
	c.started = true
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	self := c.reg.NewObject("origin", map[string]any{"hostname": hostname})
	self.Notify()

	c.wg.Add(len(c.components))
	for _, comp := range c.components {
		comp := comp
		go func() {
			defer c.wg.Done()
			comp.Run(runCtx)
		}()
	}
	c.logger.Printf("started with %d background component(s)", len(c.components))
	return nil
}

// Stop kills every locally-started process, unpublishes every
// locally-originated object, then signals every background component to
// stop. It does not block until they have fully drained — call Join for
// that.
func (c *Controller) Stop(ctx context.Context) {
	if c.processes != nil {
		c.processes.StopAll()
	}

	for _, o := range c.reg.All() {
		if o.IsOriginator() {
			if err := c.reg.Delete(o.ID()); err != nil {
				c.logger.Printf("unpublish %s failed: %v", o.ID(), err)
			}
		}
	}
	if c.publisher != nil {
		c.publisher.Drain(ctx)
	}

	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Join blocks until every background component has returned.
func (c *Controller) Join() {
	c.wg.Wait()
}
