package translator

import "errors"

var (
	// ErrMissingNodeID is returned when a payload carries no nodeId.
	ErrMissingNodeID = errors.New("Missing node_id. node_id is required on all API calls.") //nolint:staticcheck // returned verbatim to Tana

	// ErrInvalidRequest is returned for payloads that cannot be parsed or
	// carry out-of-range values.
	ErrInvalidRequest = errors.New("invalid request")
)
