package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInstructionData        = errors.New("protocol: invalid instruction data")
	ErrInsufficientAccounts          = errors.New("protocol: insufficient accounts")
	ErrParameterValidationFailed     = errors.New("protocol: parameter validation failed")
	ErrCoordinationOperationMismatch = errors.New("protocol: coordination operation mismatch")
	ErrInsufficientCollateralization = errors.New("protocol: insufficient collateralization")
	ErrYieldHarvestingFailed         = errors.New("protocol: yield harvesting failed")
	ErrProtocolPaused                = errors.New("protocol: protocol paused")
	ErrUnauthorized                  = errors.New("protocol: unauthorized")
	ErrAlreadyInitialized            = errors.New("protocol: already initialized")
	ErrNotInitialized                = errors.New("protocol: not initialized")
)

// Stable numeric codes surfaced in receipts.
const (
	CodeOK                            uint32 = 0
	CodeInvalidInstructionData        uint32 = 1
	CodeInsufficientAccounts          uint32 = 2
	CodeAlreadyInitialized            uint32 = 3
	CodeNotInitialized                uint32 = 4
	CodeUnauthorized                  uint32 = 5
	CodeParameterValidationFailed     uint32 = 6000
	CodeCoordinationOperationMismatch uint32 = 6001
	CodeInsufficientCollateralization uint32 = 6002
	CodeYieldHarvestingFailed         uint32 = 6003
	CodeProtocolPaused                uint32 = 6004
	CodeUnknown                       uint32 = 0xFFFF_FFFF
)

var kindCodes = []struct {
	err  error
	code uint32
}{
	{ErrInvalidInstructionData, CodeInvalidInstructionData},
	{ErrInsufficientAccounts, CodeInsufficientAccounts},
	{ErrAlreadyInitialized, CodeAlreadyInitialized},
	{ErrNotInitialized, CodeNotInitialized},
	{ErrUnauthorized, CodeUnauthorized},
	{ErrParameterValidationFailed, CodeParameterValidationFailed},
	{ErrCoordinationOperationMismatch, CodeCoordinationOperationMismatch},
	{ErrInsufficientCollateralization, CodeInsufficientCollateralization},
	{ErrYieldHarvestingFailed, CodeYieldHarvestingFailed},
	{ErrProtocolPaused, CodeProtocolPaused},
}

// Code maps err to its receipt code. Collaborator failures surface their own
// opaque code unchanged.
func Code(err error) uint32 {
	if err == nil {
		return CodeOK
	}
	var collab *CollaboratorError
	if errors.As(err, &collab) {
		return collab.Code
	}
	for _, kc := range kindCodes {
		if errors.Is(err, kc.err) {
			return kc.code
		}
	}
	return CodeUnknown
}

// CollaboratorError reports a failed call into an external port.
type CollaboratorError struct {
	Port string
	Op   string
	Code uint32
	Err  error
}

func (e *CollaboratorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol: collaborator %s.%s failed (code %d): %v", e.Port, e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("protocol: collaborator %s.%s failed (code %d)", e.Port, e.Op, e.Code)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}

// BatchError identifies the sub-operation that aborted a batch.
type BatchError struct {
	Index  int
	Opcode Opcode
	Err    error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("protocol: batch sub-operation %d (%s) failed: %v", e.Index, e.Opcode, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInstructionData, fmt.Sprintf(format, args...))
}

func badParam(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrParameterValidationFailed, fmt.Sprintf(format, args...))
}

// Coder is implemented by collaborator errors that carry their own numeric code.
type Coder interface {
	Code() uint32
}

// Collaborator wraps a port failure. A nil err stays nil.
func Collaborator(port, op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *CollaboratorError
	if errors.As(err, &existing) {
		return err
	}
	code := CodeUnknown
	var coder Coder
	if errors.As(err, &coder) {
		code = coder.Code()
	}
	return &CollaboratorError{Port: port, Op: op, Code: code, Err: err}
}
