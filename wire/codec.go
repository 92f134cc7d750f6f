package wire

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

// MaxPayloadLen bounds a single frame's payload. A larger declared length
// is treated as a protocol violation rather than an allocation hazard.
const MaxPayloadLen = 64 * 1024 * 1024

const frameHeaderLen = 4 + 4 + 4 // magic + command + length

// Frame is one decoded binary packet.
type Frame struct {
	Magic   Magic
	Command CommandType
	Fields  [][]byte
}

// ProtocolError reports a malformed frame: bad magic, unknown command code,
// or an over-long payload. Per spec.md Error Handling Design, the
// connection that produced one must be closed.
type ProtocolError struct {
	msg string
}

func (e *ProtocolError) Error() string { return "gearman: protocol error: " + e.msg }

func newProtocolError(format string, args ...interface{}) error {
	return errors.Wrapf(&ProtocolError{msg: errors.Errorf(format, args...).Error()}, "wire")
}

// EncodeFrame renders a command and its fields as a binary frame. fields
// must match the command's registered schema length (CanDoTimeout is
// special-cased via EncodeCanDoTimeout). The last field may contain NULs;
// earlier fields must not (the codec cannot safely delimit them if they do).
func EncodeFrame(magic Magic, cmd CommandType, fields ...[]byte) ([]byte, error) {
	schema, ok := fieldSchema[cmd]
	if !ok {
		return nil, errors.Errorf("wire: no field schema registered for %s", cmd)
	}
	if len(fields) != len(schema) {
		return nil, errors.Errorf("wire: %s expects %d fields, got %d", cmd, len(schema), len(fields))
	}
	for i, f := range fields[:max(0, len(fields)-1)] {
		if bytes.IndexByte(f, 0) >= 0 {
			return nil, errors.Errorf("wire: %s field %s may not contain embedded NUL", cmd, schema[i])
		}
	}

	payload := bytes.Join(fields, []byte{0})
	return assembleFrame(magic, cmd, payload)
}

func assembleFrame(magic Magic, cmd CommandType, payload []byte) ([]byte, error) {
	mb, ok := magicBytes[magic]
	if !ok {
		return nil, errors.Errorf("wire: unknown magic %d", magic)
	}
	if len(payload) > MaxPayloadLen {
		return nil, errors.Errorf("wire: payload of %d bytes exceeds max %d", len(payload), MaxPayloadLen)
	}

	buf := make([]byte, 0, frameHeaderLen+len(payload))
	buf = append(buf, mb[:]...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(cmd))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(payload)))
	buf = append(buf, payload...)
	return buf, nil
}

// EncodeCanDoTimeout encodes CAN_DO_TIMEOUT, whose second field is a raw
// 4-byte big-endian timeout in seconds rather than a NUL-terminated field.
func EncodeCanDoTimeout(funcName string, timeoutSeconds uint32) ([]byte, error) {
	payload := append([]byte(funcName), 0)
	payload = binary.BigEndian.AppendUint32(payload, timeoutSeconds)
	return assembleFrame(MagicReq, CanDoTimeout, payload)
}

// DecodeCanDoTimeout splits a CAN_DO_TIMEOUT payload back into its parts.
func DecodeCanDoTimeout(payload []byte) (funcName string, timeoutSeconds uint32, err error) {
	idx := bytes.IndexByte(payload, 0)
	if idx < 0 || len(payload) != idx+5 {
		return "", 0, newProtocolError("malformed CAN_DO_TIMEOUT payload")
	}
	funcName = string(payload[:idx])
	timeoutSeconds = binary.BigEndian.Uint32(payload[idx+1:])
	return funcName, timeoutSeconds, nil
}

// decodeFrameHeader attempts to parse one frame from buf. It returns
// ok=false when buf does not yet contain a complete frame (caller should
// read more bytes); consumed is only meaningful when ok is true or err is
// non-nil (a protocol error always consumes nothing further -- the caller
// must close the connection).
func decodeFrameHeader(buf []byte) (frame Frame, consumed int, ok bool, err error) {
	if len(buf) < frameHeaderLen {
		return Frame{}, 0, false, nil
	}

	var magicKey [4]byte
	copy(magicKey[:], buf[:4])
	magic, known := bytesToMagic[magicKey]
	if !known {
		return Frame{}, 0, false, newProtocolError("bad magic %v", buf[:4])
	}

	cmd := CommandType(binary.BigEndian.Uint32(buf[4:8]))
	length := binary.BigEndian.Uint32(buf[8:12])
	if length > MaxPayloadLen {
		return Frame{}, 0, false, newProtocolError("payload length %d exceeds max", length)
	}

	total := frameHeaderLen + int(length)
	if len(buf) < total {
		return Frame{}, 0, false, nil
	}

	payload := buf[frameHeaderLen:total]

	if cmd == CanDoTimeout {
		funcName, timeout, derr := DecodeCanDoTimeout(payload)
		if derr != nil {
			return Frame{}, 0, false, derr
		}
		var tbuf [4]byte
		binary.BigEndian.PutUint32(tbuf[:], timeout)
		return Frame{Magic: magic, Command: cmd, Fields: [][]byte{[]byte(funcName), tbuf[:]}}, total, true, nil
	}

	schema, known := fieldSchema[cmd]
	if !known {
		return Frame{}, 0, false, newProtocolError("unknown command code %d", cmd)
	}

	var fields [][]byte
	if len(schema) == 0 {
		if len(payload) != 0 {
			return Frame{}, 0, false, newProtocolError("%s expects no payload, got %d bytes", cmd, len(payload))
		}
	} else {
		fields = bytes.SplitN(payload, []byte{0}, len(schema))
		if len(fields) != len(schema) {
			return Frame{}, 0, false, newProtocolError("%s expects %d fields, got %d", cmd, len(schema), len(fields))
		}
	}

	return Frame{Magic: magic, Command: cmd, Fields: fields}, total, true, nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
