package gearman

import (
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/chrisyee/gearman-go/manager"
	"github.com/chrisyee/gearman-go/metrics"
	"github.com/chrisyee/gearman-go/types"
)

// Client submits jobs to one or more Gearman job servers, round-robining
// SUBMIT_JOB across them (spec.md section 4.8).
type Client struct {
	*manager.Client
}

// ClientOptions configures NewClient. A zero value is a usable default:
// pass-through codec, 5s dial timeout, no logging, no metrics.
type ClientOptions struct {
	Codec       PayloadCodec
	DialTimeout time.Duration
	Log         hclog.Logger
	Metrics     *metrics.Sink
}

// NewClient builds a Client over the given servers.
func NewClient(servers []Server, opts ClientOptions) *Client {
	codec := opts.Codec
	if codec == nil {
		codec = types.PassthroughCodec{}
	}
	dialTimeout := opts.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = DefaultDialTimeout
	}
	return &Client{manager.NewClient(servers, codec, dialTimeout, opts.Log, opts.Metrics)}
}

// SubmitOptions configures one SubmitJob call. SubmitJob itself is
// promoted from the embedded *manager.Client.
type SubmitOptions = manager.SubmitOptions
