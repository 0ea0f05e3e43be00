package dialog

import (
	"errors"
	"fmt"
)

// ErrEmptyMessage rejects requests with no message text before any
// session state is touched.
var ErrEmptyMessage = errors.New("dialog: message text is empty")

// UpstreamError marks a persistence or completion failure the dialog
// could not recover from. The user still receives an apology reply;
// the error rides along for the caller's logging and alerting.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("dialog: %s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

const apologyReply = "Sorry, something went wrong on my end. Nothing was lost — please try that again."
