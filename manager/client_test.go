package manager

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrisyee/gearman-go/types"
	"github.com/chrisyee/gearman-go/wire"
)

func TestClientSubmitJobForegroundCompletes(t *testing.T) {
	srv, stop := startFakeServer(t, func(c net.Conn) {
		defer c.Close()
		r := bufio.NewReader(c)
		cmd, fields, err := readFrame(r)
		if err != nil || cmd != wire.SubmitJob {
			return
		}
		handle := "H:test:1"
		writeFrame(c, wire.JobCreated, []byte(handle))
		writeFrame(c, wire.WorkStatus, []byte(handle), []byte("3"), []byte("10"))
		writeFrame(c, wire.WorkComplete, []byte(handle), []byte("reversed:"+string(fields[2])))
	})
	defer stop()

	cli := NewClient([]Server{srv}, nil, time.Second, nil, nil)
	defer cli.Shutdown()

	req, err := cli.SubmitJob("reverse", []byte("abc"), SubmitOptions{
		WaitUntilComplete: true,
		PollTimeout:       2 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, types.Complete, req.State())
	assert.Equal(t, "reversed:abc", string(req.Result()))

	updates := req.StatusUpdates()
	require.Len(t, updates, 1)
	assert.Equal(t, float64(3), updates[0].Numerator)
	assert.Equal(t, float64(10), updates[0].Denominator)
}

func TestClientSubmitJobBackgroundStaysQueued(t *testing.T) {
	srv, stop := startFakeServer(t, func(c net.Conn) {
		defer c.Close()
		r := bufio.NewReader(c)
		cmd, _, err := readFrame(r)
		if err != nil || cmd != wire.SubmitJobBg {
			return
		}
		writeFrame(c, wire.JobCreated, []byte("H:test:2"))
		time.Sleep(200 * time.Millisecond)
	})
	defer stop()

	cli := NewClient([]Server{srv}, nil, time.Second, nil, nil)
	defer cli.Shutdown()

	req, err := cli.SubmitJob("noop", []byte("x"), SubmitOptions{Background: true})
	require.NoError(t, err)
	cli.WaitUntilJobsAccepted([]*types.JobRequest{req}, 2*time.Second)
	assert.Equal(t, types.Queued, req.State())
}

func TestClientSubmitJobNoServerFails(t *testing.T) {
	cli := NewClient([]Server{{Host: "127.0.0.1", Port: "1"}}, nil, 50*time.Millisecond, nil, nil)
	defer cli.Shutdown()

	_, err := cli.SubmitJob("reverse", []byte("abc"), SubmitOptions{})
	assert.IsType(t, &types.ServerUnavailable{}, err)
}
