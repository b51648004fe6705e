package msgpack

import (
	"reflect"
	"testing"
)

type samplePayload struct {
	Name  string
	Count int
	Tags  []string
}

func TestEncoderRoundTrip(t *testing.T) {
	enc := New()
	in := samplePayload{Name: "widget", Count: 3, Tags: []string{"a", "b"}}

	data, err := enc.Encode("group", "name", &in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var out samplePayload
	if err := enc.Decode("group", "name", data, &out); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(out, in) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestEncoderResultRoundTrip(t *testing.T) {
	enc := New()
	data, err := enc.EncodeResult("group", "name", 42)
	if err != nil {
		t.Fatalf("EncodeResult: %v", err)
	}
	var out int
	if err := enc.DecodeResult("group", "name", data, &out); err != nil {
		t.Fatalf("DecodeResult: %v", err)
	}
	if out != 42 {
		t.Fatalf("got %d, want 42", out)
	}
}
