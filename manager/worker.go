package manager

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/chrisyee/gearman-go/conn"
	"github.com/chrisyee/gearman-go/handler"
	"github.com/chrisyee/gearman-go/metrics"
	"github.com/chrisyee/gearman-go/types"
)

// TaskCallback runs one assigned job to completion, returning the payload
// for WORK_COMPLETE or an error (optionally a *types.JobException) for
// WORK_FAIL/WORK_EXCEPTION. It may call job.Owner.(*handler.Worker)'s
// SendWorkData/SendWorkWarning/SendWorkStatus methods before returning.
type TaskCallback func(job *types.Job) ([]byte, error)

// Worker is the worker front-end from spec.md section 4.5/4.8: one
// *handler.JobLock is shared across all of this worker's connections so
// at most one is ever WORKING (section 4.6).
type Worker struct {
	*ConnectionManager
	codec types.PayloadCodec
	lock  *handler.JobLock
	log   hclog.Logger

	mu        sync.Mutex
	abilities map[string]uint32
	clientID  string
	handlerOf map[*conn.Connection]*handler.Worker
	callbacks map[string]TaskCallback
}

// NewWorker builds a worker front-end over the given servers. m may be nil.
func NewWorker(servers []Server, codec types.PayloadCodec, dialTimeout time.Duration, log hclog.Logger, m *metrics.Sink) *Worker {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	w := &Worker{
		codec:     codec,
		lock:      handler.NewJobLock(),
		log:       log.Named("worker-manager"),
		abilities: make(map[string]uint32),
		handlerOf: make(map[*conn.Connection]*handler.Worker),
		callbacks: make(map[string]TaskCallback),
	}
	factory := func(c *conn.Connection) error {
		h := handler.NewWorker(c, w.lock, frontendExecutor{w}, codec, log)

		w.mu.Lock()
		w.handlerOf[c] = h
		abilities := make(map[string]uint32, len(w.abilities))
		for k, v := range w.abilities {
			abilities[k] = v
		}
		clientID := w.clientID
		w.mu.Unlock()

		if len(abilities) > 0 {
			if err := h.SetAbilities(abilities); err != nil {
				return err
			}
		}
		if clientID != "" {
			if err := h.SetClientID(clientID); err != nil {
				return err
			}
		}
		return h.Kick()
	}
	w.ConnectionManager = NewConnectionManager(servers, false, factory, w, dialTimeout, log, m)
	return w
}

// frontendExecutor bridges handler.JobExecutor to the callback registry a
// real application populates via RegisterTask.
type frontendExecutor struct{ w *Worker }

func (e frontendExecutor) Execute(job *types.Job) ([]byte, error) {
	e.w.mu.Lock()
	cb := e.w.callbacks[job.Task]
	e.w.mu.Unlock()
	if cb == nil {
		return nil, types.NewInvalidWorkerState("no callback registered for task %s", job.Task)
	}

	result, err := cb(job)
	if err != nil {
		e.w.Metrics().JobsFailed.Inc()
	} else {
		e.w.Metrics().JobsCompleted.Inc()
	}
	return result, err
}

// OnConnectionError implements HandlerEvents: release the job lock if this
// connection's handler held it, and drop its registry entry.
func (w *Worker) OnConnectionError(c *conn.Connection, err error) {
	w.mu.Lock()
	h := w.handlerOf[c]
	delete(w.handlerOf, c)
	w.mu.Unlock()
	if h != nil {
		w.lock.ForceRelease(h)
	}
}

// RegisterTask adds task to the ability set (CAN_DO or CAN_DO_TIMEOUT if
// timeout > 0) and pushes RESET_ABILITIES + re-registration to every live
// connection.
func (w *Worker) RegisterTask(task string, timeout uint32, cb TaskCallback) error {
	w.mu.Lock()
	w.abilities[task] = timeout
	w.callbacks[task] = cb
	abilities := make(map[string]uint32, len(w.abilities))
	for k, v := range w.abilities {
		abilities[k] = v
	}
	handlers := make([]*handler.Worker, 0, len(w.handlerOf))
	for _, h := range w.handlerOf {
		handlers = append(handlers, h)
	}
	w.mu.Unlock()

	for _, h := range handlers {
		if err := h.SetAbilities(abilities); err != nil {
			return err
		}
	}
	return nil
}

// UnregisterTask drops task from the ability set.
func (w *Worker) UnregisterTask(task string) error {
	w.mu.Lock()
	delete(w.abilities, task)
	delete(w.callbacks, task)
	handlers := make([]*handler.Worker, 0, len(w.handlerOf))
	for _, h := range w.handlerOf {
		handlers = append(handlers, h)
	}
	w.mu.Unlock()

	for _, h := range handlers {
		if err := h.UnregisterTask(task); err != nil {
			return err
		}
	}
	return nil
}

// SetClientID applies a SET_CLIENT_ID to every live connection and
// remembers it for connections established afterward.
func (w *Worker) SetClientID(id string) error {
	w.mu.Lock()
	w.clientID = id
	handlers := make([]*handler.Worker, 0, len(w.handlerOf))
	for _, h := range w.handlerOf {
		handlers = append(handlers, h)
	}
	w.mu.Unlock()

	for _, h := range handlers {
		if err := h.SetClientID(id); err != nil {
			return err
		}
	}
	return nil
}

// Work is the worker main loop from spec.md section 4.8: connect to every
// configured server, then repeatedly shuffle the alive connection list and
// poll it until the poll deadline or ctx is canceled. It returns when ctx
// is done or every connection has died and a reconnect attempt still
// leaves none alive.
func (w *Worker) Work(ctx context.Context, pollTimeout time.Duration) error {
	w.ConnectAll()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		conns := w.AliveConnections()
		if len(conns) == 0 {
			w.ConnectAll()
			conns = w.AliveConnections()
			if len(conns) == 0 {
				return types.NewServerUnavailable("no worker connections available")
			}
		}

		shuffled := append([]*conn.Connection(nil), conns...)
		rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		w.PollConnectionsUntilStopped(shuffled, func(anyActivity bool) bool {
			select {
			case <-ctx.Done():
				return false
			default:
				return true
			}
		}, pollTimeout)
	}
}
