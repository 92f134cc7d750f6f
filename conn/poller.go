package conn

import (
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/chrisyee/gearman-go/metrics"
)

// readSlice bounds how long a single ReadAvailable call on one connection
// may wait within a poll wake before moving on to the next connection.
// Keeping it short is what makes a handful of connections pollable in a
// single goroutine without per-connection reader goroutines or epoll.
const readSlice = 20 * time.Millisecond

// ErrorSink is notified when a connection's I/O fails during a poll wake.
// The connection manager implements this to release resources (and, for
// a worker, the job lock) per spec.md section 4.6/4.8.
type ErrorSink interface {
	HandleConnectionError(c *Connection, err error)
}

// Poller multiplexes N connections with a bounded-timeout readiness wait,
// per spec.md section 4.3. One Poller is not safe for concurrent Poll
// calls; independent manager instances should use independent Pollers.
type Poller struct {
	log     hclog.Logger
	metrics *metrics.Sink
}

// NewPoller builds a Poller. A nil logger disables logging; a nil metrics
// sink records to a private, unscraped registry.
func NewPoller(log hclog.Logger, m *metrics.Sink) *Poller {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	if m == nil {
		m = metrics.NoopSink()
	}
	return &Poller{log: log.Named("poller"), metrics: m}
}

// Poll waits up to timeout, driving read/write I/O and dispatching decoded
// frames to each connection's handler, until predicate(anyActivity)
// returns false or the deadline passes. It returns true if it stopped
// because of the predicate or a timeout, and false if every connection in
// conns died during the call (mirroring spec.md section 4.3).
func (p *Poller) Poll(conns []*Connection, sink ErrorSink, predicate func(anyActivity bool) bool, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = time.Millisecond
	}
	deadline := time.Now().Add(timeout)

	for {
		anyActivity := p.pollOnce(conns, sink)

		if !predicate(anyActivity) {
			return true
		}

		if !p.anyAlive(conns) {
			return false
		}

		if time.Now().After(deadline) {
			return true
		}
	}
}

// pollOnce runs one readable/writable pass over every connection: drains
// sockets into decoders, dispatches any fully framed events, and flushes
// pending writes. It is the direct analogue of one "wake" in spec.md
// section 4.3's poller contract.
func (p *Poller) pollOnce(conns []*Connection, sink ErrorSink) bool {
	start := time.Now()
	defer func() { p.metrics.PollWakeDuration.Observe(time.Since(start).Seconds()) }()

	anyActivity := false

	for _, c := range conns {
		if !c.Connected() {
			continue
		}

		n, err := c.ReadAvailable(readSlice)
		if err != nil {
			p.log.Warn("read failed", "addr", c.Addr(), "err", err)
			sink.HandleConnectionError(c, err)
			anyActivity = true
			continue
		}
		if n > 0 {
			anyActivity = true
			if derr := p.dispatchReady(c); derr != nil {
				p.log.Warn("protocol error", "addr", c.Addr(), "err", derr)
				sink.HandleConnectionError(c, derr)
				continue
			}
		}

		if c.Writable() {
			if werr := c.WriteAvailable(); werr != nil {
				p.log.Warn("write failed", "addr", c.Addr(), "err", werr)
				sink.HandleConnectionError(c, werr)
				continue
			}
			anyActivity = true
		}
	}

	return anyActivity
}

// dispatchReady drains every fully decoded event currently buffered on c
// to its handler.
func (p *Poller) dispatchReady(c *Connection) error {
	h := c.Handler()
	for {
		ev, ok, err := c.NextEvent()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if h == nil {
			continue
		}
		if ev.Frame != nil {
			if herr := h.HandleFrame(ev.Frame.Command, ev.Frame.Fields); herr != nil {
				return herr
			}
		}
		if ev.Admin != nil {
			if herr := h.HandleAdmin(*ev.Admin); herr != nil {
				return herr
			}
		}
	}
}

func (p *Poller) anyAlive(conns []*Connection) bool {
	for _, c := range conns {
		if c.Connected() {
			return true
		}
	}
	return false
}
