package telemetry

import (
	"net"

	"github.com/signalsfoundry/antenna-tracker/internal/logging"
)

// Receiver ties a Link to a Cache: the socket is bound on construction and a
// pump keeps the newest datagram available through Get.
type Receiver struct {
	link  *Link
	cache *Cache
}

// NewReceiver binds the socket and returns a stopped receiver. A bind failure
// is returned immediately and wraps ErrBind.
func NewReceiver(cfg LinkConfig, log logging.Logger, recorder Recorder) (*Receiver, error) {
	var linkOpts []LinkOption
	var cacheOpts []CacheOption
	if recorder != nil {
		linkOpts = append(linkOpts, WithLinkRecorder(recorder))
		cacheOpts = append(cacheOpts, WithRecorder(recorder))
	}

	link, err := Open(cfg, log, linkOpts...)
	if err != nil {
		return nil, err
	}
	return &Receiver{
		link:  link,
		cache: NewCache(link, log, cacheOpts...),
	}, nil
}

// Start begins ingesting datagrams. Idempotent.
func (r *Receiver) Start() { r.cache.Start() }

// Stop halts ingestion and waits for the pump to exit. The socket stays bound
// so the receiver can be started again.
func (r *Receiver) Stop() { r.cache.Stop() }

// Restart is Stop followed by Start.
func (r *Receiver) Restart() { r.cache.Restart() }

// Get returns the newest telemetry message without blocking.
func (r *Receiver) Get() (Message, bool) { return r.cache.Get() }

// Running reports whether the pump is active.
func (r *Receiver) Running() bool { return r.cache.Running() }

// Addr returns the bound socket address.
func (r *Receiver) Addr() net.Addr { return r.link.Addr() }

// Close closes the socket, which unblocks any in-flight receive, then joins
// the pump. The receiver cannot be restarted afterwards.
func (r *Receiver) Close() error {
	err := r.link.Close()
	r.cache.Stop()
	return err
}
