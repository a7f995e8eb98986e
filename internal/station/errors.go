package station

import (
	"errors"
	"fmt"
)

// ErrUnauthorized marks an HTTP 401 from the upper computer. The
// coordinator clears its token and retries once on this error.
var ErrUnauthorized = errors.New("station: authorization expired")

// Server-side code values with dedicated handling.
const (
	codeOK               = 200
	CodeResourceShortage = 1200
)

// APIError is a non-success code field in a station response envelope.
type APIError struct {
	Endpoint string
	Code     int
	Msg      string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("station %s: code %d: %s", e.Endpoint, e.Code, e.Msg)
}

// NotReadyError reports a resource shortage (code 1200) from start_task
// or check_task_resource. It is a typed "not ready", not a crash.
type NotReadyError struct {
	TaskID    int64
	Msg       string
	PromptMsg string
}

func (e *NotReadyError) Error() string {
	if e.PromptMsg != "" {
		return fmt.Sprintf("task %d not ready: %s (%s)", e.TaskID, e.Msg, e.PromptMsg)
	}
	return fmt.Sprintf("task %d not ready: %s", e.TaskID, e.Msg)
}

// DuplicateTaskError is the 409 returned by add_task when the task name
// is already taken.
type DuplicateTaskError struct {
	TaskName string
}

func (e *DuplicateTaskError) Error() string {
	return fmt.Sprintf("task name %q already exists on the station; rename the task and resubmit", e.TaskName)
}
