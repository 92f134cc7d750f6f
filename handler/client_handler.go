// Package handler implements the three per-connection protocol state
// machines of spec.md section 4: client, worker, and admin. Each type
// satisfies conn.FrameHandler and is driven exclusively by the poller.
package handler

import (
	"container/list"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/chrisyee/gearman-go/conn"
	"github.com/chrisyee/gearman-go/types"
	"github.com/chrisyee/gearman-go/wire"
)

// Client is the per-connection state machine described in spec.md section
// 4.4: it tracks requests awaiting a server-assigned handle and the
// handle-to-request index those requests move into once JOB_CREATED
// arrives.
type Client struct {
	c     *conn.Connection
	codec types.PayloadCodec
	log   hclog.Logger

	mu       sync.Mutex
	awaiting *list.List // of *types.JobRequest, FIFO
	byHandle map[string]*types.JobRequest

	optionReady   bool
	optionErr     error
	optionPending bool
}

// NewClient builds a client command handler bound to one connection.
func NewClient(c *conn.Connection, codec types.PayloadCodec, log hclog.Logger) *Client {
	if codec == nil {
		codec = types.PassthroughCodec{}
	}
	if log == nil {
		log = hclog.NewNullLogger()
	}
	h := &Client{
		c:        c,
		codec:    codec,
		log:      log.Named("client-handler"),
		awaiting: list.New(),
		byHandle: make(map[string]*types.JobRequest),
	}
	c.SetHandler(h)
	return h
}

// submitCommandFor picks one of the six SUBMIT_JOB* variants from the
// background/priority cross product (spec.md section 4.4).
func submitCommandFor(background bool, priority types.Priority) wire.CommandType {
	switch {
	case priority == types.HighPriority && background:
		return wire.SubmitJobHighBg
	case priority == types.HighPriority:
		return wire.SubmitJobHigh
	case priority == types.LowPriority && background:
		return wire.SubmitJobLowBg
	case priority == types.LowPriority:
		return wire.SubmitJobLow
	case background:
		return wire.SubmitJobBg
	default:
		return wire.SubmitJob
	}
}

// SendJobRequest encodes and sends the right SUBMIT_JOB variant, then
// enqueues req onto the FIFO awaiting a JOB_CREATED handle.
func (h *Client) SendJobRequest(req *types.JobRequest) error {
	cmd := submitCommandFor(req.Background, req.Priority)
	frame, err := wire.EncodeFrame(wire.MagicReq, cmd, []byte(req.Job.Task), []byte(req.Job.Unique), h.codec.Encode(req.Job.Data))
	if err != nil {
		return errors.Wrap(err, "client handler: encode submit")
	}

	h.mu.Lock()
	h.awaiting.PushBack(req)
	h.mu.Unlock()

	h.c.Send(frame)
	return nil
}

// SendGetStatus asks the server for req's current status.
func (h *Client) SendGetStatus(req *types.JobRequest) error {
	frame, err := wire.EncodeFrame(wire.MagicReq, wire.GetStatus, []byte(req.Job.Handle))
	if err != nil {
		return errors.Wrap(err, "client handler: encode get_status")
	}
	h.c.Send(frame)
	return nil
}

// SendOption requests the connection-wide OPTION_REQ/OPTION_RES round trip
// (spec.md section 6, SetOption). The caller polls OptionReady/OptionErr.
func (h *Client) SendOption(name string) error {
	frame, err := wire.EncodeFrame(wire.MagicReq, wire.OptionReq, []byte(name))
	if err != nil {
		return errors.Wrap(err, "client handler: encode option_req")
	}
	h.mu.Lock()
	h.optionReady = false
	h.optionErr = nil
	h.optionPending = true
	h.mu.Unlock()
	h.c.Send(frame)
	return nil
}

// OptionReady reports whether the outstanding SendOption call has a result.
func (h *Client) OptionReady() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.optionReady
}

// OptionErr returns the error (if any) that resolved the outstanding
// SendOption call. Only meaningful once OptionReady is true.
func (h *Client) OptionErr() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.optionErr
}

// HandleAdmin is unused on the client path; the client never enters admin
// text mode.
func (h *Client) HandleAdmin(resp wire.AdminResponse) error { return nil }

// HandleFrame dispatches one decoded server->client frame. The dispatch
// table is built once in init() and validated against the command set
// this handler is expected to support.
func (h *Client) HandleFrame(cmd wire.CommandType, fields [][]byte) error {
	fn, ok := clientDispatch[cmd]
	if !ok {
		h.log.Warn("unhandled command on client connection", "command", cmd)
		return nil
	}
	return fn(h, fields)
}

var clientDispatch map[wire.CommandType]func(*Client, [][]byte) error

func init() {
	clientDispatch = map[wire.CommandType]func(*Client, [][]byte) error{
		wire.JobCreated:    (*Client).recvJobCreated,
		wire.WorkData:      (*Client).recvWorkData,
		wire.WorkWarning:   (*Client).recvWorkWarning,
		wire.WorkStatus:    (*Client).recvWorkStatus,
		wire.WorkComplete:  (*Client).recvWorkComplete,
		wire.WorkFail:      (*Client).recvWorkFail,
		wire.WorkException: (*Client).recvWorkException,
		wire.StatusRes:     (*Client).recvStatusRes,
		wire.OptionRes:     (*Client).recvOptionRes,
		wire.Error:         (*Client).recvError,
	}
	for _, required := range []wire.CommandType{
		wire.JobCreated, wire.WorkData, wire.WorkWarning, wire.WorkStatus,
		wire.WorkComplete, wire.WorkFail, wire.WorkException, wire.StatusRes,
	} {
		if _, ok := clientDispatch[required]; !ok {
			panic(fmt.Sprintf("handler: client dispatch table missing %s", required))
		}
	}
}

func (h *Client) popAwaiting() (*types.JobRequest, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	front := h.awaiting.Front()
	if front == nil {
		return nil, false
	}
	h.awaiting.Remove(front)
	return front.Value.(*types.JobRequest), true
}

func (h *Client) lookupHandle(handle string) (*types.JobRequest, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	req, ok := h.byHandle[handle]
	return req, ok
}

func (h *Client) indexHandle(handle string, req *types.JobRequest) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.byHandle[handle] = req
}

func (h *Client) recvJobCreated(fields [][]byte) error {
	handle := string(fields[0])

	req, ok := h.popAwaiting()
	if !ok {
		return types.NewInvalidClientState("received JOB_CREATED(%s) with no pending requests", handle)
	}
	if req.State() != types.Pending {
		return types.NewInvalidClientState("expected handle %s to be PENDING, got %s", handle, req.State())
	}

	req.SetHandle(handle)
	h.indexHandle(handle, req)
	return nil
}

func (h *Client) requireQueued(handle string) (*types.JobRequest, error) {
	req, ok := h.lookupHandle(handle)
	if !ok {
		return nil, types.NewInvalidClientState("unknown job handle %s", handle)
	}
	if req.State() != types.Queued {
		return nil, types.NewInvalidClientState("expected handle %s to be QUEUED, got %s", handle, req.State())
	}
	return req, nil
}

func (h *Client) recvWorkData(fields [][]byte) error {
	req, err := h.requireQueued(string(fields[0]))
	if err != nil {
		return err
	}
	req.AppendData(h.codec.Decode(fields[1]))
	return nil
}

func (h *Client) recvWorkWarning(fields [][]byte) error {
	req, err := h.requireQueued(string(fields[0]))
	if err != nil {
		return err
	}
	req.AppendWarning(h.codec.Decode(fields[1]))
	return nil
}

func (h *Client) recvWorkStatus(fields [][]byte) error {
	req, err := h.requireQueued(string(fields[0]))
	if err != nil {
		return err
	}
	num, nerr := strconv.ParseFloat(string(fields[1]), 64)
	den, derr := strconv.ParseFloat(string(fields[2]), 64)
	if nerr != nil || derr != nil {
		return types.NewInvalidClientState("malformed WORK_STATUS for handle %s", fields[0])
	}
	req.AppendStatus(types.StatusUpdate{Numerator: num, Denominator: den})
	return nil
}

func (h *Client) recvWorkComplete(fields [][]byte) error {
	req, err := h.requireQueued(string(fields[0]))
	if err != nil {
		return err
	}
	req.SetComplete(h.codec.Decode(fields[1]))
	return nil
}

func (h *Client) recvWorkFail(fields [][]byte) error {
	req, err := h.requireQueued(string(fields[0]))
	if err != nil {
		return err
	}
	req.SetFailed()
	return nil
}

// recvWorkException stores the exception payload but does not change
// state: per spec.md section 9's open question, this implementation
// requires a follow-up WORK_COMPLETE or WORK_FAIL (documented in
// DESIGN.md), matching the teacher lineage's client_handler.py.
func (h *Client) recvWorkException(fields [][]byte) error {
	req, err := h.requireQueued(string(fields[0]))
	if err != nil {
		return err
	}
	req.SetException(h.codec.Decode(fields[1]))
	return nil
}

func (h *Client) recvStatusRes(fields [][]byte) error {
	req, err := h.requireQueued(string(fields[0]))
	if err != nil {
		return err
	}
	num, nerr := strconv.ParseFloat(string(fields[3]), 64)
	den, derr := strconv.ParseFloat(string(fields[4]), 64)
	if nerr != nil || derr != nil {
		return types.NewInvalidClientState("malformed STATUS_RES for handle %s", fields[0])
	}
	req.SetServerStatus(types.ServerStatus{
		Known:        string(fields[1]) == "1",
		Running:      string(fields[2]) == "1",
		Numerator:    num,
		Denominator:  den,
		TimeReceived: time.Now(),
	})
	return nil
}

func (h *Client) recvOptionRes(fields [][]byte) error {
	h.mu.Lock()
	h.optionReady = true
	h.optionErr = nil
	h.optionPending = false
	h.mu.Unlock()
	return nil
}

func (h *Client) recvError(fields [][]byte) error {
	msg := fmt.Sprintf("server error %s: %s", fields[0], fields[1])

	h.mu.Lock()
	pending := h.optionPending
	if pending {
		h.optionReady = true
		h.optionErr = types.NewInvalidClientState(msg)
		h.optionPending = false
	}
	h.mu.Unlock()

	if pending {
		return nil
	}

	h.log.Error("received ERROR with no outstanding operation", "message", msg)
	return types.NewInvalidClientState(msg)
}
