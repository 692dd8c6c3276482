package telemetry

import (
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/signalsfoundry/antenna-tracker/internal/logging"
)

func openTestLink(t *testing.T, timeout time.Duration) *Link {
	t.Helper()
	link, err := Open(LinkConfig{Host: "127.0.0.1", Port: 0, ReadTimeout: timeout}, logging.Noop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = link.Close() })
	return link
}

func sendDatagram(t *testing.T, addr net.Addr, payload []byte) {
	t.Helper()
	conn, err := net.Dial("udp", addr.String())
	if err != nil {
		t.Fatalf("dial %s: %v", addr, err)
	}
	defer conn.Close()
	if _, err := conn.Write(payload); err != nil {
		t.Fatalf("write datagram: %v", err)
	}
}

func TestLinkReceiveDecodesJSON(t *testing.T) {
	link := openTestLink(t, time.Second)
	sendDatagram(t, link.Addr(), []byte(`{"euler":[1.5,2,3],"last_time":1234}`))

	msg, ok, err := link.Receive()
	if err != nil || !ok {
		t.Fatalf("Receive() = ok %v, err %v; want a message", ok, err)
	}
	data, isMap := msg.Data.(map[string]any)
	if !isMap {
		t.Fatalf("Data = %T, want map[string]any", msg.Data)
	}
	if got := data["last_time"]; got != float64(1234) {
		t.Fatalf("last_time = %v, want 1234", got)
	}
	if string(msg.Raw) != `{"euler":[1.5,2,3],"last_time":1234}` {
		t.Fatalf("Raw = %s", msg.Raw)
	}
	if msg.Source == "" {
		t.Fatalf("Source is empty")
	}
}

func TestLinkReceiveMalformed(t *testing.T) {
	link := openTestLink(t, time.Second)

	for _, payload := range [][]byte{
		[]byte(`{"unterminated": `),
		{0xff, 0xfe, 0x7b, 0x7d},
		[]byte(`{} trailing`),
	} {
		sendDatagram(t, link.Addr(), payload)
		_, ok, err := link.Receive()
		if !errors.Is(err, ErrMalformed) {
			t.Fatalf("Receive(%q) error = %v, want ErrMalformed", payload, err)
		}
		if ok {
			t.Fatalf("Receive(%q) ok = true for malformed payload", payload)
		}
	}
}

func TestLinkReceiveTimeoutIsNotAnError(t *testing.T) {
	link := openTestLink(t, 30*time.Millisecond)

	start := time.Now()
	_, ok, err := link.Receive()
	if err != nil || ok {
		t.Fatalf("Receive() = ok %v, err %v; want no data and no error", ok, err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Receive() blocked for %v, want about the read timeout", elapsed)
	}
}

func TestLinkCloseIsIdempotent(t *testing.T) {
	link := openTestLink(t, 30*time.Millisecond)

	if err := link.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := link.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, _, err := link.Receive(); !errors.Is(err, ErrLinkClosed) {
		t.Fatalf("Receive() after Close error = %v, want ErrLinkClosed", err)
	}
}

func TestLinkRebindsImmediately(t *testing.T) {
	first := openTestLink(t, 30*time.Millisecond)
	port := first.Addr().(*net.UDPAddr).Port
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second, err := Open(LinkConfig{Host: "127.0.0.1", Port: port}, nil)
	if err != nil {
		t.Fatalf("re-Open on port %d: %v", port, err)
	}
	defer second.Close()
	if got := second.Addr().(*net.UDPAddr).Port; got != port {
		t.Fatalf("port = %d, want %d", got, port)
	}
}

func TestOpenBindFailure(t *testing.T) {
	_, err := Open(LinkConfig{Host: "127.0.0.1", Port: 70000}, nil)
	if !errors.Is(err, ErrBind) {
		t.Fatalf("Open() error = %v, want ErrBind", err)
	}
}

func TestDecode(t *testing.T) {
	msg, err := Decode([]byte(`[1, "two", null]`), "test")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	arr, ok := msg.Data.([]any)
	if !ok || len(arr) != 3 {
		t.Fatalf("Data = %#v, want a 3-element array", msg.Data)
	}
	if msg.ReceivedAt.IsZero() {
		t.Fatalf("ReceivedAt not set")
	}

	payload := []byte(`{"a":1}`)
	msg, err = Decode(payload, "test")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	payload[0] = 'X'
	if string(msg.Raw) != `{"a":1}` {
		t.Fatalf("Raw aliases the input buffer: %s", msg.Raw)
	}

	if _, err := Decode(nil, "test"); !errors.Is(err, ErrMalformed) {
		t.Fatalf("Decode(nil) error = %v, want ErrMalformed", err)
	}
}

func TestDefaultLinkConfig(t *testing.T) {
	cfg := DefaultLinkConfig()
	if cfg.Port != 31337 {
		t.Fatalf("Port = %d, want 31337", cfg.Port)
	}
	if cfg.MaxDatagramSize != 10240 {
		t.Fatalf("MaxDatagramSize = %d, want 10240", cfg.MaxDatagramSize)
	}
	if got := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)); got != ":31337" {
		t.Fatalf("listen address = %q, want :31337", got)
	}
}
