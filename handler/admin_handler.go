package handler

import (
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/chrisyee/gearman-go/conn"
	"github.com/chrisyee/gearman-go/types"
	"github.com/chrisyee/gearman-go/wire"
)

// adminKind is the shape of response a pending admin command expects, so an
// arriving response can be checked against it before being handed back
// (spec.md section 4.7).
type adminKind int

const (
	adminKindLine adminKind = iota
	adminKindBlock
	adminKindEcho
)

// adminPending tracks the one admin command allowed to be outstanding at a
// time: this package's admin protocol is strictly request/response, unlike
// the pipelined client and worker protocols.
type adminPending struct {
	kind  adminKind
	ready bool
	lines []string
	echo  []byte
	err   error
}

// Admin is the per-connection state machine described in spec.md section
// 4.7: a single connection used exclusively for text admin commands (plus
// ECHO_REQ/ECHO_RES, the one binary exchange admin clients use).
type Admin struct {
	c   *conn.Connection
	log hclog.Logger

	mu      sync.Mutex
	pending *adminPending
}

// NewAdmin builds an admin command handler bound to one connection.
func NewAdmin(c *conn.Connection, log hclog.Logger) *Admin {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	h := &Admin{c: c, log: log.Named("admin-handler")}
	c.SetHandler(h)
	return h
}

func (h *Admin) beginLine(command string) error {
	h.mu.Lock()
	if h.pending != nil {
		h.mu.Unlock()
		return types.NewInvalidAdminClientState("admin command already outstanding")
	}
	h.pending = &adminPending{kind: adminKindLine}
	h.mu.Unlock()

	h.c.ExpectAdminResponse(wire.TerminatorLine)
	h.c.Send(wire.EncodeAdminLine(command))
	return nil
}

func (h *Admin) beginBlock(command string) error {
	h.mu.Lock()
	if h.pending != nil {
		h.mu.Unlock()
		return types.NewInvalidAdminClientState("admin command already outstanding")
	}
	h.pending = &adminPending{kind: adminKindBlock}
	h.mu.Unlock()

	h.c.ExpectAdminResponse(wire.TerminatorBlock)
	h.c.Send(wire.EncodeAdminLine(command))
	return nil
}

// SendPing issues ECHO_REQ; the server echoes payload back verbatim.
func (h *Admin) SendPing(payload []byte) error {
	h.mu.Lock()
	if h.pending != nil {
		h.mu.Unlock()
		return types.NewInvalidAdminClientState("admin command already outstanding")
	}
	h.pending = &adminPending{kind: adminKindEcho}
	h.mu.Unlock()

	frame, err := wire.EncodeFrame(wire.MagicReq, wire.EchoReq, payload)
	if err != nil {
		return errors.Wrap(err, "admin handler: encode echo_req")
	}
	h.c.Send(frame)
	return nil
}

// SendVersion issues the `version` command.
func (h *Admin) SendVersion() error { return h.beginLine("version") }

// SendMaxQueue issues `maxqueue <task> [size]`, the supplemented admin
// command from SPEC_FULL.md's original_source/ review.
func (h *Admin) SendMaxQueue(task string, size int) error {
	if size < 0 {
		return h.beginLine("maxqueue " + task)
	}
	return h.beginLine("maxqueue " + task + " " + itoa(size))
}

// SendShutdown issues `shutdown` or `shutdown graceful`.
func (h *Admin) SendShutdown(graceful bool) error {
	if graceful {
		return h.beginLine("shutdown graceful")
	}
	return h.beginLine("shutdown")
}

// SendStatus issues `status`, a block response.
func (h *Admin) SendStatus() error { return h.beginBlock("status") }

// SendWorkers issues `workers`, a block response.
func (h *Admin) SendWorkers() error { return h.beginBlock("workers") }

// Ready reports whether the outstanding command has resolved.
func (h *Admin) Ready() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pending != nil && h.pending.ready
}

// Err returns the error (if any) the outstanding command resolved with.
func (h *Admin) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pending == nil {
		return nil
	}
	return h.pending.err
}

// Lines returns the raw response lines of a resolved line/block command.
func (h *Admin) Lines() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pending == nil {
		return nil
	}
	return h.pending.lines
}

// Echo returns the resolved ECHO_RES payload.
func (h *Admin) Echo() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pending == nil {
		return nil
	}
	return h.pending.echo
}

// StatusResult parses the resolved `status` block.
func (h *Admin) StatusResult() []wire.StatusLine {
	return wire.ParseStatusBlock(h.Lines())
}

// WorkersResult parses the resolved `workers` block.
func (h *Admin) WorkersResult() []wire.WorkerLine {
	return wire.ParseWorkersBlock(h.Lines())
}

// Reset clears a resolved command so a new one may be sent.
func (h *Admin) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pending = nil
}

// HandleFrame only ever sees ECHO_RES on an admin connection.
func (h *Admin) HandleFrame(cmd wire.CommandType, fields [][]byte) error {
	if cmd != wire.EchoRes {
		h.log.Warn("unexpected binary frame on admin connection", "command", cmd)
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pending == nil || h.pending.kind != adminKindEcho {
		return types.NewInvalidAdminClientState("received ECHO_RES with no outstanding ping")
	}
	h.pending.ready = true
	h.pending.echo = fields[0]
	return nil
}

// HandleAdmin resolves the outstanding line/block command, checking the
// response's shape against what was expected.
func (h *Admin) HandleAdmin(resp wire.AdminResponse) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.pending == nil {
		return types.NewInvalidAdminClientState("received admin response with no outstanding command")
	}

	var wantTerm wire.AdminTerminator
	switch h.pending.kind {
	case adminKindLine:
		wantTerm = wire.TerminatorLine
	case adminKindBlock:
		wantTerm = wire.TerminatorBlock
	default:
		return types.NewInvalidAdminClientState("received text admin response while expecting ECHO_RES")
	}
	if resp.Terminator != wantTerm {
		return types.NewInvalidAdminClientState("admin response shape mismatch")
	}

	h.pending.ready = true
	h.pending.lines = resp.Lines
	return nil
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
