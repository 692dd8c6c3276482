package telemetry

import (
	"testing"
	"time"
)

func newTestReceiver(t *testing.T, rec Recorder) *Receiver {
	t.Helper()
	r, err := NewReceiver(LinkConfig{Host: "127.0.0.1", ReadTimeout: 20 * time.Millisecond}, nil, rec)
	if err != nil {
		t.Fatalf("NewReceiver: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func lastTime(r *Receiver) any {
	msg, ok := r.Get()
	if !ok {
		return nil
	}
	doc, _ := msg.Data.(map[string]any)
	return doc["last_time"]
}

func TestReceiverReflectsNewestDatagram(t *testing.T) {
	r := newTestReceiver(t, nil)
	if r.Running() {
		t.Fatalf("Running() = true before Start")
	}
	r.Start()

	sendDatagram(t, r.Addr(), []byte(`{"last_time": 1}`))
	waitFor(t, "first datagram", func() bool { return lastTime(r) == float64(1) })

	sendDatagram(t, r.Addr(), []byte(`{"last_time": 2}`))
	waitFor(t, "second datagram", func() bool { return lastTime(r) == float64(2) })
}

func TestReceiverSkipsMalformedDatagrams(t *testing.T) {
	rec := &countingRecorder{}
	r := newTestReceiver(t, rec)
	r.Start()

	sendDatagram(t, r.Addr(), []byte{0xc3, 0x28})
	sendDatagram(t, r.Addr(), []byte(`not json`))
	sendDatagram(t, r.Addr(), []byte(`{"last_time": 7}`))

	waitFor(t, "valid datagram after malformed ones", func() bool { return lastTime(r) == float64(7) })
	if !r.Running() {
		t.Fatalf("Running() = false after malformed datagrams")
	}
	if _, malformed, _ := rec.counts(); malformed != 2 {
		t.Fatalf("malformed = %d, want 2", malformed)
	}
}

func TestReceiverStopAndRestart(t *testing.T) {
	r := newTestReceiver(t, nil)
	r.Start()

	sendDatagram(t, r.Addr(), []byte(`{"last_time": 1}`))
	waitFor(t, "datagram before stop", func() bool { return lastTime(r) == float64(1) })

	r.Stop()
	sendDatagram(t, r.Addr(), []byte(`{"last_time": 2}`))
	time.Sleep(60 * time.Millisecond)
	if got := lastTime(r); got != float64(1) {
		t.Fatalf("last_time = %v after Stop, want 1", got)
	}

	r.Restart()
	// The datagram sent while stopped may still be queued in the socket.
	sendDatagram(t, r.Addr(), []byte(`{"last_time": 3}`))
	waitFor(t, "datagram after restart", func() bool { return lastTime(r) == float64(3) })
}

func TestReceiverCloseUnblocksPump(t *testing.T) {
	r, err := NewReceiver(LinkConfig{Host: "127.0.0.1", ReadTimeout: 10 * time.Second}, nil, nil)
	if err != nil {
		t.Fatalf("NewReceiver: %v", err)
	}
	r.Start()

	done := make(chan struct{})
	go func() {
		_ = r.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Close did not unblock the pump")
	}
	if r.Running() {
		t.Fatalf("Running() = true after Close")
	}
}
