package providers

import "errors"

var (
	// ErrLinkInProgress is returned when a flow is started while another runs.
	ErrLinkInProgress = errors.New("providers: link already in progress")

	// ErrNoPendingLink is returned for a callback with no matching flow.
	ErrNoPendingLink = errors.New("providers: no pending link")

	// ErrStateMismatch is returned when the OAuth state does not match the
	// token issued for the flow.
	ErrStateMismatch = errors.New("providers: state mismatch")
)
