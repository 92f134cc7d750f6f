// Package types holds the data model shared by the client, worker, and
// admin command handlers: jobs, job requests, and the error taxonomy from
// spec.md section 7. It is intentionally dependency-free of the rest of
// this module so that both the handler and manager layers (and the public
// root package) can depend on it without an import cycle.
package types

import (
	"sync"
	"time"
)

// Priority orders jobs within the server's three queue levels. The numeric
// values mirror the teacher's iota-from-LOW scheme.
type Priority int

const (
	LowPriority Priority = iota - 1
	NormalPriority
	HighPriority
)

func (p Priority) String() string {
	switch p {
	case LowPriority:
		return "LOW"
	case HighPriority:
		return "HIGH"
	default:
		return "NORMAL"
	}
}

// JobState is a JobRequest's position in its PENDING -> QUEUED ->
// {COMPLETE, FAILED} lifecycle (spec.md section 3). States only move
// forward; COMPLETE and FAILED are absorbing.
type JobState int

const (
	Pending JobState = iota
	Queued
	Complete
	Failed
)

func (s JobState) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case Queued:
		return "QUEUED"
	case Complete:
		return "COMPLETE"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// StatusUpdate is one WORK_STATUS sample: numerator/denominator of work
// completed, per spec.md's open question committing to float64.
type StatusUpdate struct {
	Numerator   float64
	Denominator float64
}

// ServerStatus is the result of a GET_STATUS / STATUS_RES round trip.
type ServerStatus struct {
	Known        bool
	Running      bool
	Numerator    float64
	Denominator  float64
	TimeReceived time.Time
}

// Job is the worker-side view of one unit of work: it lives only for the
// duration of the user callback and the subsequent WORK_COMPLETE/WORK_FAIL
// emission (spec.md section 3).
type Job struct {
	Handle string
	Task   string
	Unique string
	Data   []byte

	// Owner is the worker command handler that assigned this job. It is
	// typed as interface{} so this package needn't import package handler;
	// a job callback type-asserts it back to *handler.Worker to send
	// WORK_DATA/WORK_WARNING/WORK_STATUS mid-job. WORK_COMPLETE and
	// WORK_FAIL are sent by the handler itself once the callback returns.
	Owner interface{}
}

// JobRequest is the client-side handle to a submitted job. Caller code
// gets a *JobRequest back from Submit and polls its accessor methods;
// the handler that owns the connection is the only mutator (design note:
// single-owner state, caller interaction via read-only views).
type JobRequest struct {
	Job *Job

	Background bool
	Priority   Priority

	mu             sync.Mutex
	state          JobState
	dataUpdates    [][]byte
	warningUpdates [][]byte
	statusUpdates  []StatusUpdate
	result         []byte
	exception      []byte
	serverStatus   *ServerStatus
}

// NewJobRequest builds a PENDING request for the given job parameters.
func NewJobRequest(task, unique string, data []byte, background bool, priority Priority) *JobRequest {
	return &JobRequest{
		Job:        &Job{Task: task, Unique: unique, Data: data},
		Background: background,
		Priority:   priority,
		state:      Pending,
	}
}

// State returns the request's current lifecycle state.
func (r *JobRequest) State() JobState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Result returns the decoded WORK_COMPLETE payload, if any.
func (r *JobRequest) Result() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result
}

// Exception returns the decoded WORK_EXCEPTION payload, if any. Per
// spec.md section 9's open question, this implementation requires a
// follow-up WORK_COMPLETE/WORK_FAIL after WORK_EXCEPTION, so Exception
// may be set alongside either terminal state (see DESIGN.md).
func (r *JobRequest) Exception() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exception
}

// DataUpdates returns the WORK_DATA payloads received so far, in order.
func (r *JobRequest) DataUpdates() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]byte, len(r.dataUpdates))
	copy(out, r.dataUpdates)
	return out
}

// WarningUpdates returns the WORK_WARNING payloads received so far.
func (r *JobRequest) WarningUpdates() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]byte, len(r.warningUpdates))
	copy(out, r.warningUpdates)
	return out
}

// StatusUpdates returns the WORK_STATUS samples received so far.
func (r *JobRequest) StatusUpdates() []StatusUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]StatusUpdate, len(r.statusUpdates))
	copy(out, r.statusUpdates)
	return out
}

// ServerStatus returns the most recent GET_STATUS response, if any was
// received.
func (r *JobRequest) ServerStatus() *ServerStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.serverStatus
}

// The Set* methods below are called exclusively by the client command
// handler on the polling goroutine; they are the only mutators of a
// JobRequest's state.

func (r *JobRequest) SetHandle(handle string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Job.Handle = handle
	r.state = Queued
}

func (r *JobRequest) AppendData(data []byte)    { r.appendBytes(&r.dataUpdates, data) }
func (r *JobRequest) AppendWarning(data []byte) { r.appendBytes(&r.warningUpdates, data) }

func (r *JobRequest) appendBytes(slice *[][]byte, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	*slice = append(*slice, data)
}

func (r *JobRequest) AppendStatus(u StatusUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statusUpdates = append(r.statusUpdates, u)
}

func (r *JobRequest) SetComplete(result []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.result = result
	r.state = Complete
}

func (r *JobRequest) SetFailed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = Failed
}

func (r *JobRequest) SetException(data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exception = data
}

func (r *JobRequest) SetServerStatus(s ServerStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.serverStatus = &s
}

// Terminal reports whether the request has reached an absorbing state.
func (r *JobRequest) Terminal() bool {
	s := r.State()
	return s == Complete || s == Failed
}
