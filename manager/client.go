package manager

import (
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/chrisyee/gearman-go/conn"
	"github.com/chrisyee/gearman-go/handler"
	"github.com/chrisyee/gearman-go/metrics"
	"github.com/chrisyee/gearman-go/types"
)

// Client is the client front-end from spec.md section 4.8: it round-robins
// SUBMIT_JOB across the configured servers and exposes the blocking
// wait-for-terminal-state API.
type Client struct {
	*ConnectionManager
	codec types.PayloadCodec

	mu        sync.Mutex
	rrNext    int
	handlerOf map[*conn.Connection]*handler.Client
	connOf    map[*types.JobRequest]*conn.Connection
}

// NewClient builds a client front-end over the given servers. m may be nil.
func NewClient(servers []Server, codec types.PayloadCodec, dialTimeout time.Duration, log hclog.Logger, m *metrics.Sink) *Client {
	cli := &Client{
		codec:     codec,
		handlerOf: make(map[*conn.Connection]*handler.Client),
		connOf:    make(map[*types.JobRequest]*conn.Connection),
	}
	factory := func(c *conn.Connection) error {
		h := handler.NewClient(c, codec, log)
		cli.mu.Lock()
		cli.handlerOf[c] = h
		cli.mu.Unlock()
		return nil
	}
	cli.ConnectionManager = NewConnectionManager(servers, false, factory, cli, dialTimeout, log, m)
	return cli
}

// OnConnectionError implements HandlerEvents: drop the dead connection's
// handler entry. In-flight requests on that connection simply stop
// progressing (spec.md section 7: "network errors silently disable that
// connection").
func (cli *Client) OnConnectionError(c *conn.Connection, err error) {
	cli.mu.Lock()
	delete(cli.handlerOf, c)
	cli.mu.Unlock()
}

// pickConnection round-robins across live (connecting as needed) servers.
func (cli *Client) pickConnection() (*conn.Connection, *handler.Client, bool) {
	conns := cli.Connections()
	if len(conns) == 0 {
		return nil, nil, false
	}

	cli.mu.Lock()
	start := cli.rrNext
	cli.mu.Unlock()

	for i := 0; i < len(conns); i++ {
		idx := (start + i) % len(conns)
		c := conns[idx]
		if ok, _ := cli.AttemptConnect(c); !ok {
			continue
		}
		cli.mu.Lock()
		cli.rrNext = (idx + 1) % len(conns)
		h := cli.handlerOf[c]
		cli.mu.Unlock()
		if h != nil {
			return c, h, true
		}
	}
	return nil, nil, false
}

// SubmitOptions configures one SubmitJob call.
type SubmitOptions struct {
	Unique            string
	Priority          types.Priority
	Background        bool
	WaitUntilComplete bool
	PollTimeout       time.Duration
}

// SubmitJob sends one SUBMIT_JOB variant and, if opts.WaitUntilComplete is
// set, blocks (bounded by opts.PollTimeout) until the request reaches a
// terminal state.
func (cli *Client) SubmitJob(task string, data []byte, opts SubmitOptions) (*types.JobRequest, error) {
	c, h, ok := cli.pickConnection()
	if !ok {
		return nil, types.NewServerUnavailable("no configured server could be reached")
	}

	unique := opts.Unique
	if unique == "" {
		unique = newUnique()
	}
	req := types.NewJobRequest(task, unique, data, opts.Background, opts.Priority)

	if err := h.SendJobRequest(req); err != nil {
		return nil, err
	}
	cli.mu.Lock()
	cli.connOf[req] = c
	cli.mu.Unlock()
	cli.Metrics().JobsSubmitted.Inc()

	if opts.WaitUntilComplete {
		cli.WaitUntilJobsCompleted([]*types.JobRequest{req}, opts.PollTimeout)
	}
	return req, nil
}

// SubmitMultipleJobs submits every spec and optionally waits for all of
// them to reach a terminal state.
func (cli *Client) SubmitMultipleJobs(tasks []string, datas [][]byte, opts SubmitOptions) ([]*types.JobRequest, error) {
	reqs := make([]*types.JobRequest, 0, len(tasks))
	for i, task := range tasks {
		one := opts
		one.WaitUntilComplete = false
		req, err := cli.SubmitJob(task, datas[i], one)
		if err != nil {
			return reqs, err
		}
		reqs = append(reqs, req)
	}
	if opts.WaitUntilComplete {
		cli.WaitUntilJobsCompleted(reqs, opts.PollTimeout)
	}
	return reqs, nil
}

// WaitUntilJobsAccepted polls until every request has left PENDING (i.e.
// received JOB_CREATED) or pollTimeout elapses.
func (cli *Client) WaitUntilJobsAccepted(reqs []*types.JobRequest, pollTimeout time.Duration) bool {
	return PollUntil(cli.ConnectionManager, cli.AliveConnections(), pollTimeout, func() bool {
		for _, r := range reqs {
			if r.State() == types.Pending {
				return false
			}
		}
		return true
	})
}

// WaitUntilJobsCompleted polls until every request reaches a terminal
// state or pollTimeout elapses.
func (cli *Client) WaitUntilJobsCompleted(reqs []*types.JobRequest, pollTimeout time.Duration) bool {
	return PollUntil(cli.ConnectionManager, cli.AliveConnections(), pollTimeout, func() bool {
		for _, r := range reqs {
			if !r.Terminal() {
				return false
			}
		}
		return true
	})
}

// GetJobStatus issues GET_STATUS for req over the connection it was
// submitted on and waits for STATUS_RES.
func (cli *Client) GetJobStatus(req *types.JobRequest, pollTimeout time.Duration) (*types.ServerStatus, error) {
	cli.mu.Lock()
	c, ok := cli.connOf[req]
	h := cli.handlerOf[c]
	cli.mu.Unlock()
	if !ok || h == nil {
		return nil, types.NewInvalidClientState("no connection on record for this request")
	}

	before := req.ServerStatus()
	if err := h.SendGetStatus(req); err != nil {
		return nil, err
	}
	PollUntil(cli.ConnectionManager, []*conn.Connection{c}, pollTimeout, func() bool {
		return req.ServerStatus() != before
	})
	return req.ServerStatus(), nil
}
