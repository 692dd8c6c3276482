package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/signalsfoundry/antenna-tracker/internal/logging"
)

var (
	// ErrBind is returned when the telemetry socket cannot be bound.
	ErrBind = errors.New("bind telemetry socket")
	// ErrMalformed marks a datagram that is not UTF-8 encoded JSON.
	ErrMalformed = errors.New("malformed telemetry datagram")
	// ErrLinkClosed is returned by Receive once the link has been closed.
	ErrLinkClosed = errors.New("telemetry link closed")
)

// Wire defaults.
const (
	DefaultPort            = 31337
	DefaultMaxDatagramSize = 10240
	DefaultReadTimeout     = time.Second

	// transportBackoff keeps a persistently failing socket from spinning the pump.
	transportBackoff = 50 * time.Millisecond
)

// LinkConfig controls the telemetry socket.
type LinkConfig struct {
	Host            string
	Port            int
	MaxDatagramSize int
	// ReadTimeout bounds each Receive call and therefore how long a pump
	// takes to notice it has been stopped.
	ReadTimeout time.Duration
}

// DefaultLinkConfig listens on all interfaces on port 31337.
func DefaultLinkConfig() LinkConfig {
	return LinkConfig{
		Port:            DefaultPort,
		MaxDatagramSize: DefaultMaxDatagramSize,
		ReadTimeout:     DefaultReadTimeout,
	}
}

func (c LinkConfig) withDefaults() LinkConfig {
	if c.MaxDatagramSize <= 0 {
		c.MaxDatagramSize = DefaultMaxDatagramSize
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	return c
}

// Message is one decoded telemetry document. Data holds the decoded JSON
// value and must be treated as read-only; Raw holds the original bytes.
type Message struct {
	Data       any
	Raw        json.RawMessage
	Source     string
	ReceivedAt time.Time
	Seq        uint64
}

// Link owns a UDP socket and decodes one datagram per Receive call. Receive
// must only be called from one goroutine at a time.
type Link struct {
	conn      net.PacketConn
	cfg       LinkConfig
	buf       []byte
	log       logging.Logger
	recorder  Recorder
	closeOnce sync.Once
	closeErr  error
}

// LinkOption customises a Link.
type LinkOption func(*Link)

// WithLinkRecorder counts transport errors swallowed by Receive.
func WithLinkRecorder(r Recorder) LinkOption {
	return func(l *Link) { l.recorder = r }
}

// Open binds the telemetry socket with SO_REUSEADDR so that a restarted
// process can rebind the port immediately.
func Open(cfg LinkConfig, log logging.Logger, opts ...LinkOption) (*Link, error) {
	cfg = cfg.withDefaults()
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	lc := net.ListenConfig{Control: reuseAddrControl}
	conn, err := lc.ListenPacket(context.Background(), "udp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrBind, addr, err)
	}

	l := &Link{
		conn:     conn,
		cfg:      cfg,
		buf:      make([]byte, cfg.MaxDatagramSize),
		log:      logging.OrNoop(log).With(logging.String("component", "telemetry_link")),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(l)
	}
	l.log.Info(context.Background(), "telemetry socket bound", logging.String("addr", conn.LocalAddr().String()))
	return l, nil
}

// Addr returns the bound local address.
func (l *Link) Addr() net.Addr { return l.conn.LocalAddr() }

// Receive blocks for at most ReadTimeout waiting for one datagram.
//
// It returns ok=false with a nil error when the read timed out or failed at
// the transport level; both mean "no data this cycle". A payload that is not
// valid UTF-8 JSON yields an error wrapping ErrMalformed. After Close it
// returns ErrLinkClosed.
func (l *Link) Receive() (Message, bool, error) {
	if err := l.conn.SetReadDeadline(time.Now().Add(l.cfg.ReadTimeout)); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return Message{}, false, ErrLinkClosed
		}
		l.transportError(err)
		return Message{}, false, nil
	}

	n, from, err := l.conn.ReadFrom(l.buf)
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			return Message{}, false, ErrLinkClosed
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return Message{}, false, nil
		}
		l.transportError(err)
		return Message{}, false, nil
	}

	source := ""
	if from != nil {
		source = from.String()
	}
	msg, err := Decode(l.buf[:n], source)
	if err != nil {
		return Message{}, false, err
	}
	return msg, true, nil
}

func (l *Link) transportError(err error) {
	l.recorder.TransportError()
	l.log.Debug(context.Background(), "telemetry receive failed", logging.Err(err))
	time.Sleep(transportBackoff)
}

// Close releases the socket. It is safe to call more than once and tolerates
// a socket that is already broken.
func (l *Link) Close() error {
	l.closeOnce.Do(func() {
		if err := l.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			l.closeErr = err
			l.log.Warn(context.Background(), "telemetry socket close failed", logging.Err(err))
		}
	})
	return l.closeErr
}

// Decode turns a raw datagram payload into a Message. The payload is copied.
func Decode(payload []byte, source string) (Message, error) {
	if !utf8.Valid(payload) {
		return Message{}, fmt.Errorf("%w: payload is not valid UTF-8", ErrMalformed)
	}
	raw := make([]byte, len(payload))
	copy(raw, payload)

	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return Message{
		Data:       data,
		Raw:        raw,
		Source:     source,
		ReceivedAt: time.Now(),
	}, nil
}
