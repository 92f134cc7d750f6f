package manager

import (
	"bytes"
	"encoding/binary"
	"io"
	"net"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chrisyee/gearman-go/wire"
)

// readFrame hand-decodes one binary frame off r, for fake-server test code
// that cannot reach into the unexported parts of package wire's Decoder.
func readFrame(r io.Reader) (wire.CommandType, [][]byte, error) {
	header := make([]byte, 12)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, err
	}
	cmd := wire.CommandType(binary.BigEndian.Uint32(header[4:8]))
	length := binary.BigEndian.Uint32(header[8:12])
	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return 0, nil, err
		}
	}
	if cmd == wire.CanDoTimeout {
		idx := bytes.IndexByte(payload, 0)
		return cmd, [][]byte{payload[:idx], payload[idx+1:]}, nil
	}
	if len(payload) == 0 {
		return cmd, nil, nil
	}
	return cmd, bytes.Split(payload, []byte{0}), nil
}

// writeFrame sends one server->client/worker binary frame, for fake-server
// test code.
func writeFrame(w io.Writer, cmd wire.CommandType, fields ...[]byte) error {
	frame, err := wire.EncodeFrame(wire.MagicRes, cmd, fields...)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

// startFakeServer runs accept(conn) in its own goroutine for every inbound
// connection, standing in for a real Gearman job server.
func startFakeServer(t *testing.T, accept func(net.Conn)) (Server, func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go accept(c)
		}
	}()
	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return Server{Host: "127.0.0.1", Port: strconv.Itoa(port)}, func() { ln.Close() }
}
