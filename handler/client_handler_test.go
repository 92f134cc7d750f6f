package handler

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrisyee/gearman-go/types"
	"github.com/chrisyee/gearman-go/wire"
)

func serverSendFrame(t *testing.T, peer net.Conn, cmd wire.CommandType, fields ...[]byte) {
	t.Helper()
	frame, err := wire.EncodeFrame(wire.MagicRes, cmd, fields...)
	require.NoError(t, err)
	_, err = peer.Write(frame)
	require.NoError(t, err)
}

func TestClientJobLifecycleCompletes(t *testing.T) {
	c, peer := dialPair(t, false)
	defer c.Close()
	defer peer.Close()

	h := NewClient(c, nil, nil)

	req := types.NewJobRequest("reverse", "", []byte("abc"), false, types.NormalPriority)
	require.NoError(t, h.SendJobRequest(req))
	drainWrite(t, c)

	serverSendFrame(t, peer, wire.JobCreated, []byte("H:1"))
	pumpRead(t, c)
	require.NoError(t, dispatchAll(t, c, h))
	assert.Equal(t, types.Queued, req.State())

	serverSendFrame(t, peer, wire.WorkComplete, []byte("H:1"), []byte("cba"))
	pumpRead(t, c)
	require.NoError(t, dispatchAll(t, c, h))
	assert.Equal(t, types.Complete, req.State())
	assert.Equal(t, "cba", string(req.Result()))
}

func TestClientRejectsJobCreatedWithNoPending(t *testing.T) {
	c, peer := dialPair(t, false)
	defer c.Close()
	defer peer.Close()

	h := NewClient(c, nil, nil)

	serverSendFrame(t, peer, wire.JobCreated, []byte("H:1"))
	pumpRead(t, c)
	err := dispatchAll(t, c, h)
	assert.IsType(t, &types.InvalidClientState{}, err)
}

func TestClientRejectsWorkCompleteBeforeQueued(t *testing.T) {
	c, peer := dialPair(t, false)
	defer c.Close()
	defer peer.Close()

	h := NewClient(c, nil, nil)

	serverSendFrame(t, peer, wire.WorkComplete, []byte("H:1"), []byte("x"))
	pumpRead(t, c)
	err := dispatchAll(t, c, h)
	assert.IsType(t, &types.InvalidClientState{}, err)
}

func TestClientOptionRoundTrip(t *testing.T) {
	c, peer := dialPair(t, false)
	defer c.Close()
	defer peer.Close()

	h := NewClient(c, nil, nil)

	require.NoError(t, h.SendOption("exceptions"))
	drainWrite(t, c)
	assert.False(t, h.OptionReady(), "expected option not yet ready")

	serverSendFrame(t, peer, wire.OptionRes, []byte("exceptions"))
	pumpRead(t, c)
	require.NoError(t, dispatchAll(t, c, h))
	assert.True(t, h.OptionReady())
	assert.NoError(t, h.OptionErr())
}

func TestClientOptionErrorResolvesPending(t *testing.T) {
	c, peer := dialPair(t, false)
	defer c.Close()
	defer peer.Close()

	h := NewClient(c, nil, nil)

	require.NoError(t, h.SendOption("bogus"))
	drainWrite(t, c)

	serverSendFrame(t, peer, wire.Error, []byte("1"), []byte("unknown option"))
	pumpRead(t, c)
	require.NoError(t, dispatchAll(t, c, h))
	assert.True(t, h.OptionReady(), "expected option to resolve via ERROR")
	assert.Error(t, h.OptionErr())
}

func TestClientErrorWithNoPendingOptionIsRejected(t *testing.T) {
	c, peer := dialPair(t, false)
	defer c.Close()
	defer peer.Close()

	h := NewClient(c, nil, nil)

	serverSendFrame(t, peer, wire.Error, []byte("1"), []byte("boom"))
	pumpRead(t, c)
	err := dispatchAll(t, c, h)
	assert.IsType(t, &types.InvalidClientState{}, err)
}

func TestClientSubmitCommandSelection(t *testing.T) {
	cases := []struct {
		background bool
		priority   types.Priority
		want       wire.CommandType
	}{
		{false, types.NormalPriority, wire.SubmitJob},
		{true, types.NormalPriority, wire.SubmitJobBg},
		{false, types.HighPriority, wire.SubmitJobHigh},
		{true, types.HighPriority, wire.SubmitJobHighBg},
		{false, types.LowPriority, wire.SubmitJobLow},
		{true, types.LowPriority, wire.SubmitJobLowBg},
	}
	for _, tc := range cases {
		got := submitCommandFor(tc.background, tc.priority)
		assert.Equalf(t, tc.want, got, "background=%v priority=%v", tc.background, tc.priority)
	}
}

func TestClientWorkExceptionThenFailIsAccepted(t *testing.T) {
	c, peer := dialPair(t, false)
	defer c.Close()
	defer peer.Close()

	h := NewClient(c, nil, nil)
	req := types.NewJobRequest("task", "", nil, false, types.NormalPriority)
	require.NoError(t, h.SendJobRequest(req))
	drainWrite(t, c)

	serverSendFrame(t, peer, wire.JobCreated, []byte("H:1"))
	pumpRead(t, c)
	require.NoError(t, dispatchAll(t, c, h))

	serverSendFrame(t, peer, wire.WorkException, []byte("H:1"), []byte("oops"))
	pumpRead(t, c)
	require.NoError(t, dispatchAll(t, c, h))
	assert.Equal(t, types.Queued, req.State(), "WORK_EXCEPTION alone should not change state")
	assert.Equal(t, "oops", string(req.Exception()))

	serverSendFrame(t, peer, wire.WorkFail, []byte("H:1"))
	pumpRead(t, c)
	require.NoError(t, dispatchAll(t, c, h))
	assert.Equal(t, types.Failed, req.State(), "expected FAILED after follow-up WORK_FAIL")
}
