package eventstream

import "errors"

// ErrNilRecordEvent indicates a nil record event payload was provided to a publisher.
var ErrNilRecordEvent = errors.New("nil record event")
