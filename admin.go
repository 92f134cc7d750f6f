package gearman

import (
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/chrisyee/gearman-go/manager"
	"github.com/chrisyee/gearman-go/metrics"
)

// Admin issues text administrative commands (status, workers, version,
// maxqueue, shutdown) and ECHO_REQ pings over a single connection to the
// first configured server (spec.md section 4.8).
type Admin struct {
	*manager.Admin
}

// AdminOptions configures NewAdmin. A zero value is a usable default.
type AdminOptions struct {
	DialTimeout time.Duration
	Log         hclog.Logger
	Metrics     *metrics.Sink
}

// NewAdmin builds an Admin over servers[0].
func NewAdmin(servers []Server, opts AdminOptions) *Admin {
	dialTimeout := opts.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = DefaultDialTimeout
	}
	return &Admin{manager.NewAdmin(servers, dialTimeout, opts.Log, opts.Metrics)}
}
