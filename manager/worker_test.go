package manager

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chrisyee/gearman-go/types"
	"github.com/chrisyee/gearman-go/wire"
)

func TestWorkerRegisterAndCompleteOneJob(t *testing.T) {
	done := make(chan struct{})
	srv, stop := startFakeServer(t, func(c net.Conn) {
		defer c.Close()
		r := bufio.NewReader(c)

		cmd, _, err := readFrame(r)
		if err != nil || cmd != wire.ResetAbilities {
			return
		}
		if cmd, _, err = readFrame(r); err != nil || cmd != wire.CanDo {
			return
		}
		if cmd, _, err = readFrame(r); err != nil || cmd != wire.GrabJobUniq {
			return
		}
		writeFrame(c, wire.JobAssignUniq, []byte("H:1"), []byte("reverse"), []byte("u1"), []byte("abc"))

		if cmd, fields, err := readFrame(r); err != nil || cmd != wire.WorkComplete {
			return
		} else if string(fields[1]) != "cba" {
			return
		}
		close(done)
	})
	defer stop()

	w := NewWorker([]Server{srv}, nil, time.Second, nil, nil)
	defer w.Shutdown()

	err := w.RegisterTask("reverse", 0, func(job *types.Job) ([]byte, error) {
		return []byte("cba"), nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	w.Work(ctx, 100*time.Millisecond)

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("server never observed WORK_COMPLETE")
	}
}
