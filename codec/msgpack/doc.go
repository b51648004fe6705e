// Package msgpack provides a taskkit.Encoder backed by
// github.com/hashicorp/go-msgpack/v2, the wire codec hashicorp's own
// task-processing and RPC tooling uses. It is the reference Encoder
// implementation: compact, schema-free, and works with any value the
// codec package can handle (structs, maps, slices of those).
package msgpack
