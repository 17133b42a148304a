// Package controller is the instruction dispatcher for the protocol controller.
//
// Process decodes the opcode byte, checks the handler's account, initialization,
// authority and pause requirements, then runs the handler against the state
// passed in. Handlers mutate only that state and the collaborators; the caller
// owns the all-or-nothing boundary (see internal/host).
//
// Opcode 255 carries an atomic batch. The whole frame is validated first, then
// sub-operations run in order against their own account windows and the batch
// stops at the first failure with a *protocol.BatchError.
package controller
