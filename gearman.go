// Package gearman is the public entry point for this Gearman protocol
// client library: application code imports just this package, the way the
// teacher lineage's single `cog` package exposes NewClient/NewWorker.
// Internally the work is split the way KitSutliff-digital_ocean_showcase
// splits internal/wire from internal/server: gearman/wire (codec),
// gearman/conn (socket + poller), gearman/handler (per-connection state
// machines), gearman/manager (connection manager + front-ends).
package gearman

import (
	"time"

	"github.com/chrisyee/gearman-go/manager"
	"github.com/chrisyee/gearman-go/types"
)

// Re-exported data model types so callers only need to import this
// package.
type (
	Job          = types.Job
	JobRequest   = types.JobRequest
	Priority     = types.Priority
	JobState     = types.JobState
	StatusUpdate = types.StatusUpdate
	ServerStatus = types.ServerStatus
	PayloadCodec = types.PayloadCodec
)

// Priority levels (spec.md section 3).
const (
	LowPriority    = types.LowPriority
	NormalPriority = types.NormalPriority
	HighPriority   = types.HighPriority
)

// JobRequest lifecycle states.
const (
	Pending  = types.Pending
	Queued   = types.Queued
	Complete = types.Complete
	Failed   = types.Failed
)

// Re-exported error taxonomy (spec.md section 7).
type (
	ConnectionFailed        = types.ConnectionFailed
	ServerUnavailable       = types.ServerUnavailable
	InvalidClientState      = types.InvalidClientState
	InvalidWorkerState      = types.InvalidWorkerState
	InvalidAdminClientState = types.InvalidAdminClientState
)

// Server is one configured job server endpoint. DefaultPort is 4730 per
// spec.md section 6.
type Server = manager.Server

const DefaultPort = manager.DefaultPort

// NewUniqueID generates a random job unique id or worker client id.
func NewUniqueID() string { return types.NewUniqueID() }

// NewJobException builds an error a worker callback can return to emit
// WORK_EXCEPTION before WORK_FAIL (SPEC_FULL.md supplemented feature).
func NewJobException(msg string, payload []byte) error {
	return types.NewJobException(msg, payload)
}

// DefaultDialTimeout bounds how long connecting to a server may take.
const DefaultDialTimeout = 5 * time.Second
