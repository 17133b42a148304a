// Package protocol owns the instruction wire contract.
//
// Ownership boundary:
// - opcode table identity
// - error kinds and their numeric codes
// - fixed payload layouts and the little-endian cursor that reads them
// - account references supplied with an invocation
//
// Handlers live in internal/controller; framing of whole invocations lives in
// protocol/frame and batch framing in protocol/batch.
package protocol
