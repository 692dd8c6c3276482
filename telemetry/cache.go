package telemetry

import (
	"context"
	"errors"
	"sync"

	"github.com/signalsfoundry/antenna-tracker/internal/logging"
)

// Source produces telemetry messages. Receive follows the Link contract:
// ok=false with a nil error means nothing arrived this cycle.
type Source interface {
	Receive() (Message, bool, error)
}

// Recorder counts pump activity. observability.TrackerCollector satisfies it.
type Recorder interface {
	DatagramReceived()
	DatagramMalformed()
	TransportError()
}

type nopRecorder struct{}

func (nopRecorder) DatagramReceived()  {}
func (nopRecorder) DatagramMalformed() {}
func (nopRecorder) TransportError()    {}

// Cache is a single-slot, newest-wins store fed by a background pump
// goroutine. The pump is the only writer; any number of readers call Get.
//
// Lock ordering: lifecycle is taken before mu, never the other way round.
// lifecycle serializes Start/Stop/Restart and is held across the join so a new
// pump is never spawned while the previous one is still running.
type Cache struct {
	lifecycle sync.Mutex

	mu      sync.RWMutex
	last    *Message
	seq     uint64
	running bool

	done chan struct{}

	src      Source
	log      logging.Logger
	recorder Recorder
}

// CacheOption customises a Cache.
type CacheOption func(*Cache)

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) CacheOption {
	return func(c *Cache) {
		if r != nil {
			c.recorder = r
		}
	}
}

// NewCache builds a stopped cache reading from src.
func NewCache(src Source, log logging.Logger, opts ...CacheOption) *Cache {
	c := &Cache{
		src:      src,
		log:      logging.OrNoop(log).With(logging.String("component", "telemetry_cache")),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start spawns the pump. It is a no-op while a pump is already running.
func (c *Cache) Start() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	c.startLocked()
}

// Stop clears the run flag and waits for the pump to exit. No value is
// written after Stop returns.
func (c *Cache) Stop() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	c.stopLocked()
}

// Restart stops the current pump, if any, and starts a fresh one.
func (c *Cache) Restart() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	c.stopLocked()
	c.startLocked()
}

// Running reports whether the pump is active.
func (c *Cache) Running() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

// Get returns the newest message, or ok=false if nothing has been received
// yet. It never waits on network I/O.
func (c *Cache) Get() (Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.last == nil {
		return Message{}, false
	}
	return *c.last, true
}

func (c *Cache) startLocked() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	prev := c.done
	c.mu.Unlock()

	// A pump that ended on its own (closed link) may still be unwinding.
	if prev != nil {
		<-prev
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.running = true
	c.done = done
	c.mu.Unlock()

	go c.pump(done)
	c.log.Debug(context.Background(), "telemetry pump started")
}

func (c *Cache) stopLocked() {
	c.mu.Lock()
	c.running = false
	done := c.done
	c.mu.Unlock()

	if done == nil {
		return
	}
	<-done

	c.mu.Lock()
	if c.done == done {
		c.done = nil
	}
	c.mu.Unlock()
	c.log.Debug(context.Background(), "telemetry pump stopped")
}

func (c *Cache) pump(done chan struct{}) {
	defer close(done)
	ctx := context.Background()

	for c.Running() {
		msg, ok, err := c.src.Receive()
		if err != nil {
			if errors.Is(err, ErrLinkClosed) {
				c.mu.Lock()
				c.running = false
				c.mu.Unlock()
				c.log.Info(ctx, "telemetry link closed; pump exiting")
				return
			}
			if errors.Is(err, ErrMalformed) {
				c.recorder.DatagramMalformed()
			} else {
				c.recorder.TransportError()
			}
			c.log.Warn(ctx, "dropping telemetry datagram", logging.Err(err))
			continue
		}
		if !ok {
			continue
		}
		c.store(msg)
	}
}

func (c *Cache) store(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.seq++
	msg.Seq = c.seq
	c.last = &msg
	c.recorder.DatagramReceived()
}
