package handler

import (
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/chrisyee/gearman-go/conn"
	"github.com/chrisyee/gearman-go/types"
	"github.com/chrisyee/gearman-go/wire"
)

// WorkerState is the per-connection grab cycle from spec.md section 4.5:
// IDLE -> GRAB_TRY -> {WORKING, SLEEPING}, with SLEEPING returning to IDLE
// on NOOP and WORKING returning to IDLE once the callback finishes.
type WorkerState int

const (
	WorkerIdle WorkerState = iota
	WorkerGrabTry
	WorkerSleeping
	WorkerWorking
)

func (s WorkerState) String() string {
	switch s {
	case WorkerIdle:
		return "IDLE"
	case WorkerGrabTry:
		return "GRAB_TRY"
	case WorkerSleeping:
		return "SLEEPING"
	case WorkerWorking:
		return "WORKING"
	default:
		return "UNKNOWN"
	}
}

// ability pairs a registered function name with its CAN_DO_TIMEOUT value;
// zero means CAN_DO (no timeout).
type ability struct {
	timeout uint32
}

// JobExecutor runs one assigned job to completion. Implementations may call
// the Worker's SendWorkData/SendWorkWarning/SendWorkStatus methods on the
// owning job's handler (job.Owner.(*Worker)) before returning, to stream
// progress the way the teacher lineage's worker.py callbacks do. An error
// that is (or wraps) a *types.JobException also emits WORK_EXCEPTION before
// WORK_FAIL.
type JobExecutor interface {
	Execute(job *types.Job) (result []byte, err error)
}

// Worker is the per-connection state machine described in spec.md section
// 4.5. All of a logical worker's connections share one *JobLock so at most
// one of them is ever WORKING at a time (section 4.6).
type Worker struct {
	c             *conn.Connection
	lock          *JobLock
	executor      JobExecutor
	codec         types.PayloadCodec
	log           hclog.Logger
	useUniqueGrab bool

	mu        sync.Mutex
	abilities map[string]ability
	clientID  string
	state     WorkerState
}

// NewWorker builds a worker command handler bound to one connection. lock
// is shared across every connection belonging to the same logical worker.
func NewWorker(c *conn.Connection, lock *JobLock, executor JobExecutor, codec types.PayloadCodec, log hclog.Logger) *Worker {
	if codec == nil {
		codec = types.PassthroughCodec{}
	}
	if log == nil {
		log = hclog.NewNullLogger()
	}
	h := &Worker{
		c:             c,
		lock:          lock,
		executor:      executor,
		codec:         codec,
		log:           log.Named("worker-handler"),
		useUniqueGrab: true,
		abilities:     make(map[string]ability),
		state:         WorkerIdle,
	}
	c.SetHandler(h)
	return h
}

// State returns the handler's current grab-cycle state.
func (h *Worker) State() WorkerState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// SetAbilities replaces the registered function set: RESET_ABILITIES
// followed by one CAN_DO or CAN_DO_TIMEOUT per entry, matching the
// teacher lineage's worker.py set_abilities.
func (h *Worker) SetAbilities(abilities map[string]uint32) error {
	reset, err := wire.EncodeFrame(wire.MagicReq, wire.ResetAbilities)
	if err != nil {
		return errors.Wrap(err, "worker handler: encode reset_abilities")
	}
	h.c.Send(reset)

	next := make(map[string]ability, len(abilities))
	for task, timeout := range abilities {
		next[task] = ability{timeout: timeout}
		if timeout == 0 {
			frame, err := wire.EncodeFrame(wire.MagicReq, wire.CanDo, []byte(task))
			if err != nil {
				return errors.Wrapf(err, "worker handler: encode can_do %s", task)
			}
			h.c.Send(frame)
			continue
		}
		frame, err := wire.EncodeCanDoTimeout(task, timeout)
		if err != nil {
			return errors.Wrapf(err, "worker handler: encode can_do_timeout %s", task)
		}
		h.c.Send(frame)
	}

	h.mu.Lock()
	h.abilities = next
	h.mu.Unlock()
	return nil
}

// UnregisterTask drops one ability with CANT_DO.
func (h *Worker) UnregisterTask(task string) error {
	frame, err := wire.EncodeFrame(wire.MagicReq, wire.CantDo, []byte(task))
	if err != nil {
		return errors.Wrap(err, "worker handler: encode cant_do")
	}
	h.mu.Lock()
	delete(h.abilities, task)
	h.mu.Unlock()
	h.c.Send(frame)
	return nil
}

// SetClientID sends SET_CLIENT_ID, used by GET_WORKERS admin output.
func (h *Worker) SetClientID(id string) error {
	frame, err := wire.EncodeFrame(wire.MagicReq, wire.SetClientID, []byte(id))
	if err != nil {
		return errors.Wrap(err, "worker handler: encode set_client_id")
	}
	h.mu.Lock()
	h.clientID = id
	h.mu.Unlock()
	h.c.Send(frame)
	return nil
}

// Kick starts (or restarts) the grab cycle from IDLE. The connection
// manager calls this once per connection after abilities are registered;
// the handler drives every subsequent grab attempt itself as frames arrive.
func (h *Worker) Kick() error {
	return h.attemptGrab()
}

func (h *Worker) attemptGrab() error {
	h.mu.Lock()
	if h.state != WorkerIdle {
		h.mu.Unlock()
		return nil
	}
	h.state = WorkerGrabTry
	useUniq := h.useUniqueGrab
	h.mu.Unlock()

	cmd := wire.GrabJob
	if useUniq {
		cmd = wire.GrabJobUniq
	}
	frame, err := wire.EncodeFrame(wire.MagicReq, cmd)
	if err != nil {
		return errors.Wrap(err, "worker handler: encode grab_job")
	}
	h.c.Send(frame)
	return nil
}

// HandleAdmin is unused on the worker path.
func (h *Worker) HandleAdmin(resp wire.AdminResponse) error { return nil }

// HandleFrame dispatches one decoded server->worker frame.
func (h *Worker) HandleFrame(cmd wire.CommandType, fields [][]byte) error {
	fn, ok := workerDispatch[cmd]
	if !ok {
		h.log.Warn("unhandled command on worker connection", "command", cmd)
		return nil
	}
	return fn(h, fields)
}

var workerDispatch map[wire.CommandType]func(*Worker, [][]byte) error

func init() {
	workerDispatch = map[wire.CommandType]func(*Worker, [][]byte) error{
		wire.NoJob:         (*Worker).recvNoJob,
		wire.JobAssign:     (*Worker).recvJobAssign,
		wire.JobAssignUniq: (*Worker).recvJobAssignUniq,
		wire.Noop:          (*Worker).recvNoop,
		wire.Error:         (*Worker).recvError,
	}
	for _, required := range []wire.CommandType{
		wire.NoJob, wire.JobAssign, wire.JobAssignUniq, wire.Noop,
	} {
		if _, ok := workerDispatch[required]; !ok {
			panic(fmt.Sprintf("handler: worker dispatch table missing %s", required))
		}
	}
}

func (h *Worker) recvNoJob(fields [][]byte) error {
	h.mu.Lock()
	if h.state != WorkerGrabTry {
		state := h.state
		h.mu.Unlock()
		return types.NewInvalidWorkerState("received NO_JOB while %s", state)
	}
	h.state = WorkerSleeping
	h.mu.Unlock()

	frame, err := wire.EncodeFrame(wire.MagicReq, wire.PreSleep)
	if err != nil {
		return errors.Wrap(err, "worker handler: encode pre_sleep")
	}
	h.c.Send(frame)
	return nil
}

func (h *Worker) recvNoop(fields [][]byte) error {
	h.mu.Lock()
	if h.state != WorkerSleeping {
		state := h.state
		h.mu.Unlock()
		return types.NewInvalidWorkerState("received NOOP while %s", state)
	}
	h.state = WorkerIdle
	h.mu.Unlock()
	return h.attemptGrab()
}

func (h *Worker) recvJobAssign(fields [][]byte) error {
	return h.assignJob(string(fields[0]), string(fields[1]), "", fields[2])
}

func (h *Worker) recvJobAssignUniq(fields [][]byte) error {
	return h.assignJob(string(fields[0]), string(fields[1]), string(fields[2]), fields[3])
}

// assignJob implements the WORKING branch of the grab cycle: acquire the
// worker-wide job lock, run the callback synchronously, report the
// outcome, release the lock, and immediately retry a grab (spec.md
// section 4.6's single in-flight job invariant).
func (h *Worker) assignJob(handle, task, unique string, rawData []byte) error {
	h.mu.Lock()
	if h.state != WorkerGrabTry {
		state := h.state
		h.mu.Unlock()
		return types.NewInvalidWorkerState("received JOB_ASSIGN while %s", state)
	}
	h.mu.Unlock()

	if !h.lock.Acquire(h) {
		// Another connection on this worker is already WORKING; decline by
		// returning to sleep rather than executing concurrently.
		h.log.Debug("declining job, worker-wide lock held", "handle", handle)
		h.mu.Lock()
		h.state = WorkerSleeping
		h.mu.Unlock()
		frame, err := wire.EncodeFrame(wire.MagicReq, wire.PreSleep)
		if err != nil {
			return errors.Wrap(err, "worker handler: encode pre_sleep")
		}
		h.c.Send(frame)
		return nil
	}

	h.mu.Lock()
	h.state = WorkerWorking
	h.mu.Unlock()

	job := &types.Job{
		Handle: handle,
		Task:   task,
		Unique: unique,
		Data:   h.codec.Decode(rawData),
		Owner:  h,
	}

	result, err := h.executor.Execute(job)

	var sendErr error
	if err != nil {
		var exc *types.JobException
		if errors.As(err, &exc) {
			if sendErr = h.SendWorkException(handle, exc.Payload); sendErr != nil {
				h.lock.Release(h)
				return sendErr
			}
		}
		sendErr = h.sendWorkFail(handle)
	} else {
		sendErr = h.sendWorkComplete(handle, result)
	}

	h.lock.Release(h)
	h.mu.Lock()
	h.state = WorkerIdle
	h.mu.Unlock()

	if sendErr != nil {
		return sendErr
	}
	return h.attemptGrab()
}

func (h *Worker) recvError(fields [][]byte) error {
	msg := fmt.Sprintf("server error %s: %s", fields[0], fields[1])
	h.log.Error("received ERROR on worker connection", "message", msg)
	return types.NewInvalidWorkerState(msg)
}

// sendWorkComplete, sendWorkFail are the terminal-state send-through
// primitives used by assignJob.
func (h *Worker) sendWorkComplete(handle string, result []byte) error {
	frame, err := wire.EncodeFrame(wire.MagicReq, wire.WorkComplete, []byte(handle), h.codec.Encode(result))
	if err != nil {
		return errors.Wrap(err, "worker handler: encode work_complete")
	}
	h.c.Send(frame)
	return nil
}

func (h *Worker) sendWorkFail(handle string) error {
	frame, err := wire.EncodeFrame(wire.MagicReq, wire.WorkFail, []byte(handle))
	if err != nil {
		return errors.Wrap(err, "worker handler: encode work_fail")
	}
	h.c.Send(frame)
	return nil
}

// SendWorkData, SendWorkWarning, SendWorkStatus, SendWorkException are the
// send-through methods a JobExecutor (or a manager-level TaskCallback)
// calls mid-callback through job.Owner.(*Worker) to stream progress
// (spec.md section 5's "synchronous emission" requirement).

func (h *Worker) SendWorkData(handle string, data []byte) error {
	frame, err := wire.EncodeFrame(wire.MagicReq, wire.WorkData, []byte(handle), h.codec.Encode(data))
	if err != nil {
		return errors.Wrap(err, "worker handler: encode work_data")
	}
	h.c.Send(frame)
	return nil
}

func (h *Worker) SendWorkWarning(handle string, data []byte) error {
	frame, err := wire.EncodeFrame(wire.MagicReq, wire.WorkWarning, []byte(handle), h.codec.Encode(data))
	if err != nil {
		return errors.Wrap(err, "worker handler: encode work_warning")
	}
	h.c.Send(frame)
	return nil
}

func (h *Worker) SendWorkStatus(handle string, numerator, denominator int) error {
	frame, err := wire.EncodeFrame(wire.MagicReq, wire.WorkStatus,
		[]byte(handle), []byte(fmt.Sprintf("%d", numerator)), []byte(fmt.Sprintf("%d", denominator)))
	if err != nil {
		return errors.Wrap(err, "worker handler: encode work_status")
	}
	h.c.Send(frame)
	return nil
}

func (h *Worker) SendWorkException(handle string, payload []byte) error {
	frame, err := wire.EncodeFrame(wire.MagicReq, wire.WorkException, []byte(handle), h.codec.Encode(payload))
	if err != nil {
		return errors.Wrap(err, "worker handler: encode work_exception")
	}
	h.c.Send(frame)
	return nil
}
