// Package event defines the Controller message shapes delivered over a
// Backend's pub/sub channel.
//
// Event is a discriminated variant with exactly three shapes: Shutdown,
// Pause, Resume. A nil/empty Groups means "all groups".
package event
