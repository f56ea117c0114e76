// Package transform defines the per-frame pixel transform capability used by
// the pipe loop, a static registry of in-process transforms selected by name,
// and a gRPC client for transforms hosted in another process.
package transform
