package gearman

import (
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/chrisyee/gearman-go/manager"
	"github.com/chrisyee/gearman-go/metrics"
	"github.com/chrisyee/gearman-go/types"
)

// Worker registers task callbacks and runs the IDLE/GRAB_TRY/WORKING/
// SLEEPING grab cycle across one or more connections (spec.md section
// 4.5), sharing a single job lock across all of them (section 4.6).
type Worker struct {
	*manager.Worker
}

// WorkerOptions configures NewWorker. A zero value is a usable default.
type WorkerOptions struct {
	Codec       PayloadCodec
	DialTimeout time.Duration
	Log         hclog.Logger
	Metrics     *metrics.Sink
}

// NewWorker builds a Worker over the given servers.
func NewWorker(servers []Server, opts WorkerOptions) *Worker {
	codec := opts.Codec
	if codec == nil {
		codec = types.PassthroughCodec{}
	}
	dialTimeout := opts.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = DefaultDialTimeout
	}
	return &Worker{manager.NewWorker(servers, codec, dialTimeout, opts.Log, opts.Metrics)}
}

// TaskCallback runs one assigned job to completion (spec.md section 4.5).
type TaskCallback = manager.TaskCallback
