package msgpack

import (
	"github.com/hashicorp/go-msgpack/v2/codec"
)

// Encoder implements taskkit.Encoder over msgpack. It ignores group and
// name: a single wire format serves every handler, which keeps this
// reference implementation usable without per-handler schema
// registration. Callers needing per-handler wire variation (versioned
// payloads, a different codec for one noisy handler) implement their own
// taskkit.Encoder instead.
type Encoder struct {
	handle *codec.MsgpackHandle
}

// New returns a ready-to-use Encoder.
func New() *Encoder {
	h := &codec.MsgpackHandle{}
	h.RawToString = true
	return &Encoder{handle: h}
}

func (e *Encoder) Encode(_, _ string, v any) ([]byte, error) {
	return e.marshal(v)
}

func (e *Encoder) Decode(_, _ string, data []byte, out any) error {
	return e.unmarshal(data, out)
}

func (e *Encoder) EncodeResult(_, _ string, v any) ([]byte, error) {
	return e.marshal(v)
}

func (e *Encoder) DecodeResult(_, _ string, data []byte, out any) error {
	return e.unmarshal(data, out)
}

func (e *Encoder) marshal(v any) ([]byte, error) {
	var buf []byte
	enc := codec.NewEncoderBytes(&buf, e.handle)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf, nil
}

func (e *Encoder) unmarshal(data []byte, out any) error {
	dec := codec.NewDecoderBytes(data, e.handle)
	return dec.Decode(out)
}
