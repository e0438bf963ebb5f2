package dcrender

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/mokiat/gog/opt"

	"github.com/celer/dcrender/event"
	"github.com/celer/dcrender/gpu"
)

// Acquirer hands out backbuffer indices. gpu.Swapchain
// implements it.
type Acquirer interface {
	// Next starts acquiring the next backbuffer and returns
	// its index. f is signaled once the backbuffer can be
	// written to.
	Next(f gpu.Fence) (int, error)
}

// RenderControl paces frames: it acquires the next backbuffer
// on a worker goroutine while the caller keeps rendering.
//
// It is either ready, with an index safe to render into, or
// acquiring. BeginAcquireNext moves it from ready to acquiring
// and the worker moves it back once the acquisition completes.
type RenderControl struct {
	src   Acquirer
	fence gpu.Fence

	index atomic.Uint32
	ready atomic.Bool

	acquireReq  *event.Event
	shutdownReq *event.Event
	renderReady *event.Event

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewRenderControl acquires the first backbuffer on the
// calling goroutine and then starts the worker. fence is
// used for every acquisition and must be unsignaled.
func NewRenderControl(src Acquirer, fence gpu.Fence) (*RenderControl, error) {
	c := &RenderControl{
		src:         src,
		fence:       fence,
		acquireReq:  event.New(),
		shutdownReq: event.New(),
		renderReady: event.New(),
	}
	idx, err := c.acquire()
	if err != nil {
		c.closeEvents()
		return nil, fmt.Errorf("acquire first backbuffer: %w", err)
	}
	c.index.Store(uint32(idx))
	c.ready.Store(true)

	c.wg.Add(1)
	go c.work(c.acquireReq.Ref(), c.shutdownReq.Ref(), c.renderReady.Ref())
	return c, nil
}

func (c *RenderControl) acquire() (int, error) {
	idx, err := c.src.Next(c.fence)
	if err != nil {
		return -1, err
	}
	if err := c.fence.Wait(); err != nil {
		return -1, err
	}
	if err := c.fence.Reset(); err != nil {
		return -1, err
	}
	Logger().Debug("acquired backbuffer", "index", idx)
	return idx, nil
}

func (c *RenderControl) work(acquireReq, shutdownReq, renderReady *event.Event) {
	defer c.wg.Done()
	for {
		if event.WaitAny(acquireReq, shutdownReq) == 1 {
			return
		}
		idx, err := c.acquire()
		if err != nil {
			fatal("acquire next backbuffer", err)
			return
		}
		c.index.Store(uint32(idx))
		c.ready.Store(true)
		renderReady.Signal()
	}
}

// BeginAcquireNext starts acquiring the next backbuffer.
// It panics if an acquisition is already in flight.
func (c *RenderControl) BeginAcquireNext() {
	if !c.ready.Swap(false) {
		panic("dcrender: BeginAcquireNext while acquiring")
	}
	c.acquireReq.Signal()
}

// CheckReadyNext returns the backbuffer index if it is ready.
// It never blocks.
func (c *RenderControl) CheckReadyNext() opt.T[int] {
	if !c.ready.Load() {
		return opt.Unspecified[int]()
	}
	return opt.V(int(c.index.Load()))
}

// WaitLastRenderCompletion blocks until the backbuffer index
// is ready and returns it.
func (c *RenderControl) WaitLastRenderCompletion() int {
	for !c.ready.Load() {
		c.renderReady.Wait()
	}
	return int(c.index.Load())
}

// Close stops the worker, waiting for an acquisition in flight
// to finish first. Close is idempotent.
func (c *RenderControl) Close() {
	c.closeOnce.Do(func() {
		c.shutdownReq.Signal()
		c.wg.Wait()
		c.closeEvents()
	})
}

func (c *RenderControl) closeEvents() {
	c.acquireReq.Close()
	c.shutdownReq.Close()
	c.renderReady.Close()
}
