package errors

import (
	"errors"
	"fmt"
)

var (
	ErrWorkerPanic         = fmt.Errorf("worker panic")
	ErrEmptyWords          = fmt.Errorf("no words have been found")
	ErrSessionClosed       = fmt.Errorf("session closed")
	ErrConnectionClosed    = fmt.Errorf("connection closed")
	ErrSlowConsumer        = fmt.Errorf("connection buffer full")
	ErrRegistryUnavailable = fmt.Errorf("presence registry unavailable")
	ErrForbidden           = fmt.Errorf("moderator authorization required")
	ErrNoEmail             = fmt.Errorf("no email provided")
	ErrInvalidEmail        = fmt.Errorf("invalid email")
	ErrPersistFailed       = fmt.Errorf("message persistence failed")
	ErrFetchFailed         = fmt.Errorf("message history unavailable")
	ErrNotMember           = fmt.Errorf("not a member of room")
	ErrInvalidToken        = fmt.Errorf("invalid token")
	ErrUnknownCommand      = fmt.Errorf("unknown command")
	ErrMalformedFrame      = fmt.Errorf("malformed frame")
	ErrInvalidConfig       = fmt.Errorf("invalid configuration")
)

// codes maps the errors reported to clients onto their wire token.
// The first match wins.
var codes = []struct {
	target error
	code   string
}{
	{ErrNoEmail, "no_email"},
	{ErrInvalidEmail, "invalid_email"},
	{ErrPersistFailed, "persist_failed"},
	{ErrFetchFailed, "fetch_failed"},
	{ErrRegistryUnavailable, "service_unavailable"},
}

// Code returns the wire token of err, or "" when err is not meant to reach a client.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.target) {
			return c.code
		}
	}
	return ""
}

func Is(err, target error) bool { return errors.Is(err, target) }

func Join(errs ...error) error { return errors.Join(errs...) }
