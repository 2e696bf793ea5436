package chat

import "errors"

var (
	// ErrNotFound is returned when a chat id does not exist.
	ErrNotFound = errors.New("chat not found")

	// ErrPermissionDenied is returned when a chat exists but is owned by a
	// different user. Every mutating or history-reading operation that
	// crosses a trust boundary checks ownership first.
	ErrPermissionDenied = errors.New("chat not owned by user")

	// ErrInvalidRole is returned for message roles outside {user, assistant}.
	ErrInvalidRole = errors.New("invalid message role")

	// ErrStorage wraps durable-store failures (id collisions, write errors).
	ErrStorage = errors.New("storage failure")
)
