package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrisyee/gearman-go/types"
	"github.com/chrisyee/gearman-go/wire"
)

func TestAdminStatusRoundTrip(t *testing.T) {
	c, peer := dialPair(t, true)
	defer c.Close()
	defer peer.Close()

	h := NewAdmin(c, nil)
	require.NoError(t, h.SendStatus())
	drainWrite(t, c)

	buf := make([]byte, 4096)
	n, err := peer.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "status\n", string(buf[:n]))

	_, err = peer.Write([]byte("reverse\t3\t1\t2\n.\n"))
	require.NoError(t, err)
	pumpRead(t, c)
	require.NoError(t, dispatchAll(t, c, h))
	assert.True(t, h.Ready(), "expected status response ready")

	rows := h.StatusResult()
	require.Len(t, rows, 1)
	assert.Equal(t, "reverse", rows[0].Task)
	assert.Equal(t, 3, rows[0].Total)
}

func TestAdminRejectsSecondCommandWhilePending(t *testing.T) {
	c, peer := dialPair(t, true)
	defer c.Close()
	defer peer.Close()

	h := NewAdmin(c, nil)
	require.NoError(t, h.SendVersion())
	assert.Error(t, h.SendVersion(), "expected second outstanding command to be rejected")
}

func TestAdminPingEcho(t *testing.T) {
	c, peer := dialPair(t, true)
	defer c.Close()
	defer peer.Close()

	h := NewAdmin(c, nil)
	require.NoError(t, h.SendPing([]byte("hello")))
	drainWrite(t, c)

	frame, err := wire.EncodeFrame(wire.MagicRes, wire.EchoRes, []byte("hello"))
	require.NoError(t, err)
	_, err = peer.Write(frame)
	require.NoError(t, err)
	pumpRead(t, c)
	require.NoError(t, dispatchAll(t, c, h))
	assert.True(t, h.Ready(), "expected ping ready")
	assert.Equal(t, "hello", string(h.Echo()))
}

func TestAdminShapeMismatchIsRejected(t *testing.T) {
	c, peer := dialPair(t, true)
	defer c.Close()
	defer peer.Close()

	h := NewAdmin(c, nil)
	require.NoError(t, h.SendStatus())
	drainWrite(t, c)

	// An ECHO_RES frame arrives while a text block was expected.
	frame, err := wire.EncodeFrame(wire.MagicRes, wire.EchoRes, []byte("unexpected"))
	require.NoError(t, err)
	_, err = peer.Write(frame)
	require.NoError(t, err)
	pumpRead(t, c)
	dispatchErr := dispatchAll(t, c, h)
	assert.IsType(t, &types.InvalidAdminClientState{}, dispatchErr)
}

func TestAdminMaxQueueAndShutdownCommands(t *testing.T) {
	c, peer := dialPair(t, true)
	defer c.Close()
	defer peer.Close()

	h := NewAdmin(c, nil)
	require.NoError(t, h.SendMaxQueue("reverse", 100))
	drainWrite(t, c)

	buf := make([]byte, 4096)
	n, err := peer.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "maxqueue reverse 100\n", string(buf[:n]))

	_, err = peer.Write([]byte("OK\n"))
	require.NoError(t, err)
	pumpRead(t, c)
	require.NoError(t, dispatchAll(t, c, h))
	h.Reset()

	require.NoError(t, h.SendShutdown(true))
	drainWrite(t, c)
	n, err = peer.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "shutdown graceful\n", string(buf[:n]))
}
