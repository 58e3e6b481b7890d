// Package process models a managed background task as a fabric.Object in
// the "processes" collection, carrying a "running" attribute peers can
// observe, mirroring original_source/kvprocess.py's KVProcess.
package process

import (
	"context"
	"sync"

	"sapphire-kv/internal/fabric"
)

// Func is the body a Process runs; it must return promptly once ctx is
// canceled.
type Func func(ctx context.Context) error

// Process pairs a locally-originated fabric.Object with a goroutine,
// publishing its running state as the "running" attribute.
type Process struct {
	obj    *fabric.Object
	fn     Func
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// New constructs a Process object in the "processes" collection and
// registers it with dir (may be nil in tests), so the lifecycle controller
// can later find and stop it. It is not started until Start is called.
func New(reg *fabric.Registry, dir *Directory, name string, fn Func) *Process {
	obj := reg.NewObject("processes", map[string]any{
		"name":    name,
		"running": false,
	})
	p := &Process{obj: obj, fn: fn}
	if dir != nil {
		dir.Register(p)
	}
	return p
}

// Object returns the underlying fabric object.
func (p *Process) Object() *fabric.Object { return p.obj }

// Start launches fn in a goroutine, publishing running=true immediately and
// running=false when fn returns.
func (p *Process) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	_ = p.obj.Set("running", true)
	p.obj.Notify()

	go func() {
		defer close(p.done)
		p.err = p.fn(runCtx)
		_ = p.obj.Set("running", false)
		p.obj.Notify()
	}()
}

// Kill requests the process stop by canceling its context. Only the
// originating process may kill it — a replica view of a remote process
// cannot be killed locally.
func (p *Process) Kill() error {
	if !p.obj.IsOriginator() {
		return fabric.ErrNotOriginator
	}
	if p.cancel != nil {
		p.cancel()
	}
	return nil
}

// Join blocks until the process's goroutine returns and reports its error.
func (p *Process) Join() error {
	if p.done != nil {
		<-p.done
	}
	return p.err
}

// IsRunning reports the current value of the "running" attribute.
func (p *Process) IsRunning() bool {
	v, ok := p.obj.Get("running")
	if !ok {
		return false
	}
	running, _ := v.(bool)
	return running
}

// Directory tracks every Process started locally, so the lifecycle
// controller can kill and join all of them on shutdown.
type Directory struct {
	mu  sync.Mutex
	all []*Process
}

// NewDirectory constructs an empty Directory.
func NewDirectory() *Directory {
	return &Directory{}
}

// Register adds p to the directory.
func (d *Directory) Register(p *Process) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.all = append(d.all, p)
}

// All returns every process registered so far.
func (d *Directory) All() []*Process {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Process, len(d.all))
	copy(out, d.all)
	return out
}

// StopAll kills and joins every registered process.
func (d *Directory) StopAll() {
	for _, p := range d.All() {
		_ = p.Kill()
		_ = p.Join()
	}
}
