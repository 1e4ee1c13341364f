package relay

import (
	"errors"
)

var (
	ErrTickInProgress       = errors.New("relay: tick already in progress")
	ErrReprocessUnsupported = errors.New("relay: store cannot select failed messages")
	ErrAlreadyStarted       = errors.New("relay: already started")
)
