package wire

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name   string
		magic  Magic
		cmd    CommandType
		fields [][]byte
	}{
		{"can_do", MagicReq, CanDo, [][]byte{[]byte("reverse")}},
		{"reset_abilities", MagicReq, ResetAbilities, nil},
		{"submit_job", MagicReq, SubmitJob, [][]byte{[]byte("reverse"), []byte("uniq-1"), []byte("abc")}},
		{"submit_job_embedded_nul_in_data", MagicReq, SubmitJob, [][]byte{[]byte("reverse"), []byte("uniq-2"), {0x00, 0x01, 0x00, 0xff}}},
		{"job_assign", MagicRes, JobAssign, [][]byte{[]byte("H:host:1"), []byte("reverse"), []byte("payload")}},
		{"work_status", MagicReq, WorkStatus, [][]byte{[]byte("H:host:2"), []byte("3"), []byte("10")}},
		{"error", MagicRes, Error, [][]byte{[]byte("4"), []byte("unknown task")}},
		{"echo_req_with_nul", MagicReq, EchoReq, [][]byte{{0x00, 'p', 'i', 'n', 'g'}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			encoded, err := EncodeFrame(tc.magic, tc.cmd, tc.fields...)
			require.NoError(t, err)

			frame, consumed, ok, err := decodeFrameHeader(encoded)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, len(encoded), consumed)
			assert.Equal(t, tc.magic, frame.Magic)
			assert.Equal(t, tc.cmd, frame.Command)
			if len(tc.fields) == 0 {
				assert.Empty(t, frame.Fields)
			} else {
				assert.Equal(t, tc.fields, frame.Fields)
			}
		})
	}
}

func TestDecodeFrameHeaderIncomplete(t *testing.T) {
	encoded, err := EncodeFrame(MagicReq, SubmitJob, []byte("f"), []byte("u"), []byte("data"))
	require.NoError(t, err)

	for n := 0; n < len(encoded); n++ {
		_, _, ok, err := decodeFrameHeader(encoded[:n])
		require.NoError(t, err)
		assert.False(t, ok, "expected incomplete at %d/%d bytes", n, len(encoded))
	}

	_, consumed, ok, err := decodeFrameHeader(encoded)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, len(encoded), consumed)
}

func TestDecodeFrameHeaderBadMagic(t *testing.T) {
	bad := append([]byte{0x00, 'X', 'X', 'X'}, make([]byte, 8)...)
	_, _, _, err := decodeFrameHeader(bad)
	require.Error(t, err)
	var perr *ProtocolError
	assert.ErrorAs(t, err, &perr)
}

func TestDecodeFrameHeaderUnknownCommand(t *testing.T) {
	f, err := assembleFrame(MagicReq, CommandType(9999), nil)
	require.NoError(t, err)
	_, _, _, err = decodeFrameHeader(f)
	require.Error(t, err)
}

func TestDecoderFeedsAcrossPartialReads(t *testing.T) {
	encoded, err := EncodeFrame(MagicRes, WorkComplete, []byte("H:1"), []byte("done"))
	require.NoError(t, err)

	d := NewDecoder(false)
	for i := 0; i < len(encoded); i++ {
		d.Feed(encoded[i : i+1])
		ev, ok, err := d.Next()
		require.NoError(t, err)
		if i < len(encoded)-1 {
			assert.False(t, ok)
			continue
		}
		require.True(t, ok)
		require.NotNil(t, ev.Frame)
		assert.Equal(t, WorkComplete, ev.Frame.Command)
		assert.Equal(t, []byte("H:1"), ev.Frame.Fields[0])
		assert.Equal(t, []byte("done"), ev.Frame.Fields[1])
	}
}

func TestRandomizedRoundTripLastFieldEmbeddedNul(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		n := rng.Intn(64)
		data := make([]byte, n)
		rng.Read(data)

		encoded, err := EncodeFrame(MagicRes, WorkData, []byte("H:x"), data)
		require.NoError(t, err)

		frame, _, ok, err := decodeFrameHeader(encoded)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, data, frame.Fields[1])
	}
}

func TestCanDoTimeoutRoundTrip(t *testing.T) {
	encoded, err := EncodeCanDoTimeout("slowjob", 42)
	require.NoError(t, err)

	frame, consumed, ok, err := decodeFrameHeader(encoded)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, len(encoded), consumed)
	assert.Equal(t, CanDoTimeout, frame.Command)
	assert.Equal(t, []byte("slowjob"), frame.Fields[0])
}

func TestAdminLineAndBlockDecoding(t *testing.T) {
	d := NewDecoder(true)
	d.ExpectAdminResponse(TerminatorLine)
	d.Feed([]byte("OK\n"))
	ev, ok, err := d.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, ev.Admin)
	assert.Equal(t, []string{"OK"}, ev.Admin.Lines)

	d.ExpectAdminResponse(TerminatorBlock)
	d.Feed([]byte("reverse\t0\t0\t1\n"))
	_, ok, err = d.Next()
	require.NoError(t, err)
	assert.False(t, ok)

	d.Feed([]byte(".\n"))
	ev, ok, err = d.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, ev.Admin)
	assert.Equal(t, []string{"reverse\t0\t0\t1"}, ev.Admin.Lines)
}

func TestParseStatusAndWorkersBlocks(t *testing.T) {
	status := ParseStatusBlock([]string{"reverse\t2\t1\t3", "malformed"})
	require.Len(t, status, 1)
	assert.Equal(t, StatusLine{Task: "reverse", Total: 2, Running: 1, AvailableWorkers: 3}, status[0])

	workers := ParseWorkersBlock([]string{"4 127.0.0.1 worker-1 : reverse echo", "4 127.0.0.1 worker-2 :"})
	require.Len(t, workers, 2)
	assert.Equal(t, []string{"reverse", "echo"}, workers[0].Abilities)
	assert.Empty(t, workers[1].Abilities)
}
