package conn

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrisyee/gearman-go/wire"
)

// attach wires a pre-established net.Conn (e.g. one half of a net.Pipe)
// directly into a Connection, bypassing Connect's real dialing so tests
// don't need a listening socket.
func attach(c *Connection, nc net.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.netConn = nc
	c.connected = true
}

func TestConnectionSendAndWriteAvailable(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	c := New("h", "1", false, nil)
	attach(c, client)

	frame, err := wire.EncodeFrame(wire.MagicReq, wire.CanDo, []byte("reverse"))
	require.NoError(t, err)
	c.Send(frame)
	assert.True(t, c.Writable())

	done := make(chan struct{})
	var got []byte
	go func() {
		buf := make([]byte, len(frame))
		n, _ := server.Read(buf)
		got = buf[:n]
		close(done)
	}()

	require.NoError(t, c.WriteAvailable())
	<-done
	assert.Equal(t, frame, got)
	assert.False(t, c.Writable())
}

func TestConnectionReadAvailableFeedsDecoder(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	c := New("h", "1", false, nil)
	attach(c, client)

	frame, err := wire.EncodeFrame(wire.MagicRes, wire.NoJob)
	require.NoError(t, err)

	go func() {
		_, _ = server.Write(frame)
	}()

	n, err := c.ReadAvailable(200 * time.Millisecond)
	require.NoError(t, err)
	require.Greater(t, n, 0)

	ev, ok, err := c.NextEvent()
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, ev.Frame)
	assert.Equal(t, wire.NoJob, ev.Frame.Command)
}

func TestConnectionReadAvailableTimesOutWithoutData(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	c := New("h", "1", false, nil)
	attach(c, client)

	n, err := c.ReadAvailable(10 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestConnectionCloseIsIdempotent(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()

	c := New("h", "1", false, nil)
	attach(c, client)

	require.NoError(t, c.Close())
	assert.False(t, c.Connected())
	require.NoError(t, c.Close())
}
