package types

// PayloadCodec is the application-level encode/decode hook spec.md
// declares out of scope for this library's policy: job payloads pass
// through this before being written to the wire and after being read off
// it. The default is byte identity.
type PayloadCodec interface {
	Encode(data []byte) []byte
	Decode(data []byte) []byte
}

// PassthroughCodec is the zero-value default: bytes in, same bytes out.
type PassthroughCodec struct{}

func (PassthroughCodec) Encode(data []byte) []byte { return data }
func (PassthroughCodec) Decode(data []byte) []byte { return data }
