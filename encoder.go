package taskkit

// Encoder is the pluggable serializer for task payloads and results.
// Implementations must round-trip losslessly: Decode(Encode(v)) must
// reconstruct v for every legal v.
//
// Encode/Decode operate on task.Task.Data; EncodeResult/DecodeResult
// operate on result.Result.Encoded. group and name are passed through so
// an Encoder may vary its wire format per handler if desired (most
// implementations ignore them).
type Encoder interface {
	Encode(group, name string, v any) ([]byte, error)
	Decode(group, name string, data []byte, out any) error
	EncodeResult(group, name string, v any) ([]byte, error)
	DecodeResult(group, name string, data []byte, out any) error
}
