package wire

import "bytes"

// Event is one decoded unit handed back by Decoder.Next: either a binary
// Frame or a completed AdminResponse. Exactly one of the two is non-nil
// when ok is true.
type Event struct {
	Frame *Frame
	Admin *AdminResponse
}

// AdminResponse is a fully accumulated text admin response.
type AdminResponse struct {
	Terminator AdminTerminator
	Lines      []string
}

// Decoder incrementally frames a byte stream into Frames and, when the
// connection is in admin mode, AdminResponses. It retains unconsumed bytes
// across Feed calls so partial reads are transparent to callers, matching
// spec.md's "leftover bytes remain for the next read" contract.
type Decoder struct {
	buf   bytes.Buffer
	admin bool

	pendingTerminator AdminTerminator
	pendingLines      []string
}

// NewDecoder builds a Decoder. admin marks the connection as one that
// speaks the text admin protocol in addition to ECHO_REQ/ECHO_RES binary
// frames (spec.md section 4.1: "this shares the transport with binary
// packets but is disjoint at the protocol level").
func NewDecoder(admin bool) *Decoder {
	return &Decoder{admin: admin}
}

// Feed appends freshly read bytes to the decoder's internal buffer.
func (d *Decoder) Feed(b []byte) {
	d.buf.Write(b)
}

// ExpectAdminResponse tells the decoder what shape the next admin text
// response will take. Must be called by the admin command handler before
// sending a text command, so it is in place before the reply can arrive.
func (d *Decoder) ExpectAdminResponse(term AdminTerminator) {
	d.pendingTerminator = term
	d.pendingLines = nil
}

// Next pulls the next fully buffered unit out of the decoder, or returns
// ok=false if more bytes are needed. err is non-nil only for a protocol
// violation, in which case the connection must be closed (spec.md section
// 4.1 "Failure").
func (d *Decoder) Next() (ev Event, ok bool, err error) {
	raw := d.buf.Bytes()

	if d.admin && d.pendingTerminator != TerminatorNone && !looksLikeBinaryFrame(raw) {
		return d.nextAdmin(raw)
	}

	frame, consumed, frameOK, ferr := decodeFrameHeader(raw)
	if ferr != nil {
		return Event{}, false, ferr
	}
	if !frameOK {
		return Event{}, false, nil
	}
	d.buf.Next(consumed)
	return Event{Frame: &frame}, true, nil
}

func (d *Decoder) nextAdmin(raw []byte) (Event, bool, error) {
	switch d.pendingTerminator {
	case TerminatorLine:
		line, consumed, lineOK := decodeAdminLine(raw)
		if !lineOK {
			return Event{}, false, nil
		}
		d.buf.Next(consumed)
		term := d.pendingTerminator
		d.pendingTerminator = TerminatorNone
		return Event{Admin: &AdminResponse{Terminator: term, Lines: []string{line}}}, true, nil
	case TerminatorBlock:
		lines, consumed, blockOK := decodeAdminBlock(raw, d.pendingLines)
		if !blockOK {
			d.pendingLines = lines
			d.buf.Next(consumed)
			return Event{}, false, nil
		}
		d.buf.Next(consumed)
		term := d.pendingTerminator
		d.pendingTerminator = TerminatorNone
		d.pendingLines = nil
		return Event{Admin: &AdminResponse{Terminator: term, Lines: lines}}, true, nil
	default:
		return Event{}, false, nil
	}
}

// looksLikeBinaryFrame reports whether raw begins with a REQ/RES magic, so
// an admin connection awaiting a text response can still recognize an
// interleaved ECHO_RES frame (the only binary exchange admin clients use).
func looksLikeBinaryFrame(raw []byte) bool {
	if len(raw) < 4 {
		return false
	}
	var key [4]byte
	copy(key[:], raw[:4])
	_, known := bytesToMagic[key]
	return known
}
