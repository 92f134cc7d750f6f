// Package manager implements spec.md section 4.8: the base connection
// manager shared by the client, worker, and admin front-ends, plus those
// three front-ends themselves. The base type owns the connection list and
// wires each one to a handler produced by a HandlerFactory capability,
// following design note 9's "composition over class hierarchy" guidance.
package manager

import (
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/chrisyee/gearman-go/conn"
	"github.com/chrisyee/gearman-go/metrics"
	"github.com/chrisyee/gearman-go/types"
)

// Server is one configured Gearman job server endpoint.
type Server struct {
	Host string
	Port string
}

// DefaultPort is the standard Gearman job server port.
const DefaultPort = "4730"

// HandlerFactory builds and installs the protocol state machine for a
// freshly connected *conn.Connection (via conn.SetHandler), performing
// whatever initial sends the front-end requires (CAN_DO registration for
// workers; none for clients and admin).
type HandlerFactory func(c *conn.Connection) error

// HandlerEvents lets a front-end react to a connection dying, e.g. to
// force-release the worker job lock (spec.md section 4.6).
type HandlerEvents interface {
	OnConnectionError(c *conn.Connection, err error)
}

// ConnectionManager is the base type spec.md section 4.8 describes:
// connection_list, attempt_connect, handle_error, poll_connections_until_stopped,
// shutdown. The three front-ends embed it and inject their own factory and
// event sink.
type ConnectionManager struct {
	mu          sync.Mutex
	connections []*conn.Connection

	factory     HandlerFactory
	events      HandlerEvents
	dialTimeout time.Duration

	log     hclog.Logger
	metrics *metrics.Sink
	poller  *conn.Poller
}

// NewConnectionManager builds a manager over the given servers. admin
// marks every connection as speaking the text admin protocol.
func NewConnectionManager(servers []Server, admin bool, factory HandlerFactory, events HandlerEvents, dialTimeout time.Duration, log hclog.Logger, m *metrics.Sink) *ConnectionManager {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	if dialTimeout <= 0 {
		dialTimeout = conn.DefaultDialTimeout
	}
	if m == nil {
		m = metrics.NoopSink()
	}
	conns := make([]*conn.Connection, len(servers))
	for i, s := range servers {
		conns[i] = conn.New(s.Host, s.Port, admin, log)
	}
	return &ConnectionManager{
		connections: conns,
		factory:     factory,
		events:      events,
		dialTimeout: dialTimeout,
		log:         log.Named("manager"),
		metrics:     m,
		poller:      conn.NewPoller(log, m),
	}
}

// Metrics returns the manager's metrics sink (never nil).
func (m *ConnectionManager) Metrics() *metrics.Sink { return m.metrics }

// Connections returns every configured connection, connected or not.
func (m *ConnectionManager) Connections() []*conn.Connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*conn.Connection, len(m.connections))
	copy(out, m.connections)
	return out
}

// AliveConnections returns the subset currently connected.
func (m *ConnectionManager) AliveConnections() []*conn.Connection {
	all := m.Connections()
	out := make([]*conn.Connection, 0, len(all))
	for _, c := range all {
		if c.Connected() {
			out = append(out, c)
		}
	}
	return out
}

// AttemptConnect dials c if not already connected and installs its handler
// via the factory. Returns true if the connection is live on return.
func (m *ConnectionManager) AttemptConnect(c *conn.Connection) (bool, error) {
	if c.Connected() {
		return true, nil
	}
	if err := c.Connect(m.dialTimeout); err != nil {
		m.metrics.ConnectionsFailed.Inc()
		m.log.Warn("connect failed", "addr", c.Addr(), "error", err)
		return false, nil
	}
	m.metrics.ConnectionsEstablished.Inc()
	if err := m.factory(c); err != nil {
		c.Close()
		return false, errors.Wrap(err, "manager: install handler")
	}
	return true, nil
}

// ConnectAll attempts every configured connection and returns how many are
// live afterward.
func (m *ConnectionManager) ConnectAll() int {
	live := 0
	for _, c := range m.Connections() {
		ok, err := m.AttemptConnect(c)
		if err != nil {
			m.log.Error("handler install failed", "addr", c.Addr(), "error", err)
			continue
		}
		if ok {
			live++
		}
	}
	return live
}

// HandleError marks c dead and notifies the front-end's event sink.
func (m *ConnectionManager) HandleError(c *conn.Connection, err error) {
	m.log.Warn("connection error", "addr", c.Addr(), "error", err)
	m.metrics.ConnectionsFailed.Inc()
	if m.events != nil {
		m.events.OnConnectionError(c, err)
	}
	c.Close()
}

// errorSink adapts HandleError to conn.ErrorSink.
type errorSink struct{ m *ConnectionManager }

func (s errorSink) HandleConnectionError(c *conn.Connection, err error) { s.m.HandleError(c, err) }

// PollConnectionsUntilStopped is a thin adapter over the poller (spec.md
// section 4.8).
func (m *ConnectionManager) PollConnectionsUntilStopped(conns []*conn.Connection, predicate func(bool) bool, timeout time.Duration) bool {
	return m.poller.Poll(conns, errorSink{m}, predicate, timeout)
}

// Shutdown closes every connection.
func (m *ConnectionManager) Shutdown() {
	for _, c := range m.Connections() {
		c.Close()
	}
}

// PollUntil is a convenience wrapper: poll repeatedly until done() reports
// true or timeout elapses. Its return value reports whether done() is true
// on return, not whether the deadline was hit -- callers that care about
// the distinction re-check done() themselves.
func PollUntil(m *ConnectionManager, conns []*conn.Connection, timeout time.Duration, done func() bool) bool {
	if done() {
		return true
	}
	m.PollConnectionsUntilStopped(conns, func(anyActivity bool) bool {
		return !done()
	}, timeout)
	return done()
}

// newUnique generates a job's unique id when the caller doesn't supply one.
func newUnique() string {
	return types.NewUniqueID()
}
