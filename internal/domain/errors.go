package domain

import "fmt"

// PersistenceError indicates the message store failed during a read,
// write, or clear. The session stays usable; the caller may retry.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ResponderError indicates the remote respond call itself failed
// (transport error, timeout, malformed reply).
type ResponderError struct {
	Err error
}

func (e *ResponderError) Error() string {
	return fmt.Sprintf("responder: %v", e.Err)
}

func (e *ResponderError) Unwrap() error { return e.Err }

// ResponderRejected indicates the remote call completed at the
// transport level but reported an unsuccessful outcome. Reason is
// user-facing text explaining the failure.
type ResponderRejected struct {
	Reason string
}

func (e *ResponderRejected) Error() string {
	return fmt.Sprintf("responder rejected: %s", e.Reason)
}
