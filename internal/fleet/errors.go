package fleet

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors.
var (
	// ErrFleetAlreadyExists is matched by FleetExistsError.
	ErrFleetAlreadyExists = errors.New("fleet already exists")

	// ErrBackendUnavailable marks repeated transient API or network failures.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrOperationTimeout marks a wait cut short by its deadline.
	ErrOperationTimeout = errors.New("operation timed out")

	// ErrNodeNotFound is returned by providers deleting a missing node.
	ErrNodeNotFound = errors.New("node not found")

	// ErrInvalidQuantity rejects start quantities outside 1..MaxFleetSize.
	ErrInvalidQuantity = errors.New("invalid node quantity")

	// ErrInvalidTransition rejects a backward or skipped lifecycle move.
	ErrInvalidTransition = errors.New("invalid node state transition")
)

// FleetExistsError rejects start when running nodes already exist.
type FleetExistsError struct {
	Names []string
}

func (e *FleetExistsError) Error() string {
	return fmt.Sprintf("fleet already exists with %d running nodes: %s", len(e.Names), strings.Join(e.Names, ", "))
}

// Is makes errors.Is(err, ErrFleetAlreadyExists) match.
func (e *FleetExistsError) Is(target error) bool {
	return target == ErrFleetAlreadyExists
}

// OperationError is a backend operation that finished with an error payload.
type OperationError struct {
	ID      string
	Message string
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("operation %s failed: %s", e.ID, e.Message)
}

// ProvisionError is a per-node creation failure.
type ProvisionError struct {
	Name  string
	Cause error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("failed to provision %s: %v", e.Name, e.Cause)
}

func (e *ProvisionError) Unwrap() error { return e.Cause }

// ReadinessTimeout is a node that never showed its readiness sentinel.
// It is a warning: the node is left running.
type ReadinessTimeout struct {
	Name     string
	Attempts int
	Cause    error
}

func (e *ReadinessTimeout) Error() string {
	if e.Attempts == 0 && e.Cause != nil {
		return fmt.Sprintf("%s did not complete setup in a reasonable time: %v", e.Name, e.Cause)
	}
	return fmt.Sprintf("%s did not complete setup in a reasonable time (%d attempts)", e.Name, e.Attempts)
}

func (e *ReadinessTimeout) Unwrap() error { return e.Cause }

// TerminateError is a per-node deletion failure.
type TerminateError struct {
	Name  string
	Cause error
}

func (e *TerminateError) Error() string {
	return fmt.Sprintf("failed to terminate %s: %v", e.Name, e.Cause)
}

func (e *TerminateError) Unwrap() error { return e.Cause }

// IsWarning reports whether a node error leaves the fleet operation
// successful.
func IsWarning(err error) bool {
	var rt *ReadinessTimeout
	return errors.As(err, &rt)
}
