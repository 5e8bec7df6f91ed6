package model

import (
	"errors"
	"fmt"
)

// ErrorCode classifies every error the scheduling core can return.
type ErrorCode string

const (
	ErrNotFound        ErrorCode = "NOT_FOUND"
	ErrLimitExceeded   ErrorCode = "LIMIT_EXCEEDED"
	ErrInvalidState    ErrorCode = "INVALID_STATE"
	ErrInvalidParam    ErrorCode = "INVALID_PARAMETER"
	ErrOutOfMemory     ErrorCode = "OUT_OF_MEMORY"
	ErrAccessDenied    ErrorCode = "ACCESS_DENIED"
	ErrCPUUnavailable  ErrorCode = "CPU_UNAVAILABLE"
	ErrInternal        ErrorCode = "INTERNAL_ERROR"
)

// KernelError is a structured error returned by table and scheduler
// operations. None are silently swallowed; internal inconsistency is
// not represented here, it halts the affected CPU instead.
type KernelError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e *KernelError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is makes errors.Is match on the code, so callers can compare against
// a bare &KernelError{Code: ...}.
func (e *KernelError) Is(target error) bool {
	var ke *KernelError
	if errors.As(target, &ke) {
		return ke.Code == e.Code
	}
	return false
}

// CodeOf extracts the ErrorCode from err, or ErrInternal if err is not
// a KernelError.
func CodeOf(err error) ErrorCode {
	var ke *KernelError
	if errors.As(err, &ke) {
		return ke.Code
	}
	return ErrInternal
}

// ErrProcessNotFound reports an unknown PID.
func ErrProcessNotFound(pid PID) *KernelError {
	return &KernelError{Code: ErrNotFound, Message: fmt.Sprintf("process %s not found", pid)}
}

// ErrThreadNotFound reports an unknown TID.
func ErrThreadNotFound(tid TID) *KernelError {
	return &KernelError{Code: ErrNotFound, Message: fmt.Sprintf("thread %s not found", tid)}
}

// ErrProcessLimit reports that the global process cap was reached.
func ErrProcessLimit(limit int) *KernelError {
	return &KernelError{Code: ErrLimitExceeded, Message: fmt.Sprintf("process limit %d exceeded", limit)}
}

// ErrThreadLimit reports that the global thread cap was reached.
func ErrThreadLimit(limit int) *KernelError {
	return &KernelError{Code: ErrLimitExceeded, Message: fmt.Sprintf("thread limit %d exceeded", limit)}
}

// ErrInvalidPriority reports a priority outside the defined range.
func ErrInvalidPriority(p Priority) *KernelError {
	return &KernelError{Code: ErrInvalidParam, Message: fmt.Sprintf("priority %d outside range %d..%d", int(p), int(PrioritySystem), int(PriorityIdle))}
}

// ErrInvalidStackSize reports an out-of-bounds stack request.
func ErrInvalidStackSize(size int64) *KernelError {
	return &KernelError{Code: ErrInvalidParam, Message: fmt.Sprintf("invalid stack size %d", size)}
}

// ErrInvalidAffinity reports a mask permitting no CPU.
func ErrInvalidAffinity(mask Affinity) *KernelError {
	return &KernelError{Code: ErrInvalidParam, Message: fmt.Sprintf("affinity mask %#x permits no CPU", uint64(mask))}
}

// ErrCPUDown reports an operation against an offline, halted, or
// out-of-range CPU.
func ErrCPUDown(cpu CPUID) *KernelError {
	return &KernelError{Code: ErrCPUUnavailable, Message: fmt.Sprintf("cpu %d is not available", int(cpu))}
}

// ErrStackExhausted reports stack allocation failure.
func ErrStackExhausted(size int64) *KernelError {
	return &KernelError{Code: ErrOutOfMemory, Message: fmt.Sprintf("cannot allocate %d byte stack", size)}
}

// ErrDenied reports a cross-process permission violation.
func ErrDenied(caller, target PID) *KernelError {
	return &KernelError{Code: ErrAccessDenied, Message: fmt.Sprintf("process %s may not operate on %s", caller, target)}
}

// InvalidStateError is returned when a lifecycle transition is not allowed.
type InvalidStateError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid %s state transition: %s → %s (entity %s)", e.Entity, e.From, e.To, e.ID)
}

// Kernel wraps an InvalidStateError as a KernelError for the API surface.
func (e *InvalidStateError) Kernel() *KernelError {
	return &KernelError{Code: ErrInvalidState, Message: e.Error()}
}
