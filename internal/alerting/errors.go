package alerting

import "errors"

// ErrNotFound means the alert id does not resolve to a stored alert.
var ErrNotFound = errors.New("alert not found")
