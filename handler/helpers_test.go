package handler

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chrisyee/gearman-go/conn"
)

// dialPair starts a loopback listener and returns a connected
// *conn.Connection (our side, driven only through its public API) paired
// with the raw net.Conn the test can read/write as the server peer.
func dialPair(t *testing.T, admin bool) (*conn.Connection, net.Conn) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	peerCh := make(chan net.Conn, 1)
	errCh := make(chan error, 1)
	go func() {
		peer, err := ln.Accept()
		if err != nil {
			errCh <- err
			return
		}
		peerCh <- peer
	}()

	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	c := conn.New("127.0.0.1", strconv.Itoa(port), admin, nil)
	require.NoError(t, c.Connect(time.Second))

	select {
	case peer := <-peerCh:
		return c, peer
	case err := <-errCh:
		t.Fatalf("accept: %v", err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for accept")
	}
	return nil, nil
}

// drainWrite pushes c's outbound buffer through the socket so the peer can
// read it.
func drainWrite(t *testing.T, c *conn.Connection) {
	t.Helper()
	require.NoError(t, c.WriteAvailable())
}

// pumpRead reads whatever the peer has sent and feeds it to c's decoder.
func pumpRead(t *testing.T, c *conn.Connection) {
	t.Helper()
	_, err := c.ReadAvailable(200 * time.Millisecond)
	require.NoError(t, err)
}

// dispatchAll drains every fully decoded event off c and hands it to h,
// the same job the poller does in production.
func dispatchAll(t *testing.T, c *conn.Connection, h conn.FrameHandler) error {
	t.Helper()
	for {
		ev, ok, err := c.NextEvent()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		switch {
		case ev.Frame != nil:
			if err := h.HandleFrame(ev.Frame.Command, ev.Frame.Fields); err != nil {
				return err
			}
		case ev.Admin != nil:
			if err := h.HandleAdmin(*ev.Admin); err != nil {
				return err
			}
		}
	}
}
