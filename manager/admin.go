package manager

import (
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/chrisyee/gearman-go/conn"
	"github.com/chrisyee/gearman-go/handler"
	"github.com/chrisyee/gearman-go/metrics"
	"github.com/chrisyee/gearman-go/types"
	"github.com/chrisyee/gearman-go/wire"
)

// Admin is the single-connection front-end from spec.md section 4.8: a
// multi-server list is accepted for configuration symmetry with Client and
// Worker, but only the first entry is ever used.
type Admin struct {
	*ConnectionManager
	log     hclog.Logger
	handler *handler.Admin
}

// NewAdmin builds an admin front-end. Only servers[0] is used; an empty
// list is a configuration error the caller must avoid (ConnectAll simply
// connects nothing). m may be nil.
func NewAdmin(servers []Server, dialTimeout time.Duration, log hclog.Logger, m *metrics.Sink) *Admin {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	if len(servers) > 1 {
		servers = servers[:1]
	}
	a := &Admin{log: log.Named("admin-manager")}
	factory := func(c *conn.Connection) error {
		a.handler = handler.NewAdmin(c, log)
		return nil
	}
	a.ConnectionManager = NewConnectionManager(servers, true, factory, a, dialTimeout, log, m)
	return a
}

// OnConnectionError implements HandlerEvents: drop the handler reference
// so no call operates on a stale handler. The next call redials through
// ensureConnected, which installs a fresh handler or returns
// ServerUnavailable if the server cannot be reached.
func (a *Admin) OnConnectionError(c *conn.Connection, err error) {
	a.handler = nil
}

// ensureConnected dials the single configured server if needed.
func (a *Admin) ensureConnected() error {
	conns := a.Connections()
	if len(conns) == 0 {
		return types.NewServerUnavailable("no admin server configured")
	}
	ok, err := a.AttemptConnect(conns[0])
	if err != nil {
		return err
	}
	if !ok {
		return types.NewServerUnavailable("could not connect to " + conns[0].Addr())
	}
	return nil
}

func (a *Admin) waitReady(pollTimeout time.Duration) error {
	ready := PollUntil(a.ConnectionManager, a.Connections(), pollTimeout, func() bool {
		return a.handler != nil && a.handler.Ready()
	})
	if !ready {
		return types.NewInvalidAdminClientState("timed out waiting %s for admin response", pollTimeout)
	}
	if err := a.handler.Err(); err != nil {
		a.handler.Reset()
		return err
	}
	return nil
}

// PingServer issues ECHO_REQ and returns the round-trip duration. Fails if
// the echoed payload doesn't match what was sent.
func (a *Admin) PingServer(pollTimeout time.Duration) (time.Duration, error) {
	if err := a.ensureConnected(); err != nil {
		return 0, err
	}
	payload := []byte(types.NewUniqueID())
	start := time.Now()
	if err := a.handler.SendPing(payload); err != nil {
		return 0, err
	}
	a.Metrics().AdminCommandsSent.Inc()
	if err := a.waitReady(pollTimeout); err != nil {
		return 0, err
	}
	elapsed := time.Since(start)
	echoed := a.handler.Echo()
	a.handler.Reset()
	if string(echoed) != string(payload) {
		return elapsed, types.NewInvalidAdminClientState("echo payload mismatch")
	}
	return elapsed, nil
}

// GetVersion issues `version`.
func (a *Admin) GetVersion(pollTimeout time.Duration) (string, error) {
	if err := a.ensureConnected(); err != nil {
		return "", err
	}
	if err := a.handler.SendVersion(); err != nil {
		return "", err
	}
	a.Metrics().AdminCommandsSent.Inc()
	if err := a.waitReady(pollTimeout); err != nil {
		return "", err
	}
	lines := a.handler.Lines()
	a.handler.Reset()
	if len(lines) == 0 {
		return "", nil
	}
	return lines[0], nil
}

// GetStatus issues `status`.
func (a *Admin) GetStatus(pollTimeout time.Duration) ([]wire.StatusLine, error) {
	if err := a.ensureConnected(); err != nil {
		return nil, err
	}
	if err := a.handler.SendStatus(); err != nil {
		return nil, err
	}
	a.Metrics().AdminCommandsSent.Inc()
	if err := a.waitReady(pollTimeout); err != nil {
		return nil, err
	}
	rows := a.handler.StatusResult()
	a.handler.Reset()
	return rows, nil
}

// GetWorkers issues `workers`.
func (a *Admin) GetWorkers(pollTimeout time.Duration) ([]wire.WorkerLine, error) {
	if err := a.ensureConnected(); err != nil {
		return nil, err
	}
	if err := a.handler.SendWorkers(); err != nil {
		return nil, err
	}
	a.Metrics().AdminCommandsSent.Inc()
	if err := a.waitReady(pollTimeout); err != nil {
		return nil, err
	}
	rows := a.handler.WorkersResult()
	a.handler.Reset()
	return rows, nil
}

// SendMaxQueue issues `maxqueue <task> [size]`. size < 0 omits the size
// argument (server default).
func (a *Admin) SendMaxQueue(task string, size int, pollTimeout time.Duration) error {
	if err := a.ensureConnected(); err != nil {
		return err
	}
	if err := a.handler.SendMaxQueue(task, size); err != nil {
		return err
	}
	a.Metrics().AdminCommandsSent.Inc()
	if err := a.waitReady(pollTimeout); err != nil {
		return err
	}
	a.handler.Reset()
	return nil
}

// SendShutdown issues `shutdown` or `shutdown graceful`.
func (a *Admin) SendShutdown(graceful bool, pollTimeout time.Duration) error {
	if err := a.ensureConnected(); err != nil {
		return err
	}
	if err := a.handler.SendShutdown(graceful); err != nil {
		return err
	}
	a.Metrics().AdminCommandsSent.Inc()
	if err := a.waitReady(pollTimeout); err != nil {
		return err
	}
	a.handler.Reset()
	return nil
}
