package group

import "errors"

// Sentinel errors for group operations.
//
// These errors can be checked using errors.Is() for specific handling:
//
//	if errors.Is(err, group.ErrServiceNotSupported) {
//	    // Surface a 4xx to the caller rather than retrying
//	}
var (
	// ErrGroupNotFound indicates no group exists with the given ID or slug.
	ErrGroupNotFound = errors.New("group: not found")

	// ErrGroupExists indicates a group with the same slug already exists.
	ErrGroupExists = errors.New("group: already exists")

	// ErrInvalidGroup indicates the group definition failed validation.
	ErrInvalidGroup = errors.New("group: invalid definition")

	// ErrServiceNotSupported indicates no resolved member supports the
	// requested service. This is a user-visible error, distinct from
	// connectivity failures: it is not retried and not swallowed.
	ErrServiceNotSupported = errors.New("group: service not supported by any member")
)
