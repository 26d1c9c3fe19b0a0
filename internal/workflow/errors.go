package workflow

import "errors"

var (
	// ErrUnknownWorkflow means the requested name is not in the static
	// definition set. Returned synchronously, before any execution record
	// is created.
	ErrUnknownWorkflow = errors.New("unknown workflow")

	// ErrExecutionNotFound means the execution id does not resolve.
	ErrExecutionNotFound = errors.New("workflow execution not found")

	// ErrDeviceNotFound means the target device does not exist.
	ErrDeviceNotFound = errors.New("device not found")
)
