// Package errors defines the machine-readable failure kinds reported by the
// matching, room and relationship operations, and maps them to transports.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Kind is the machine-readable error category surfaced to callers.
type Kind string

const (
	KindAlreadyInRoom     Kind = "already_in_room"
	KindNotFound          Kind = "not_found"
	KindUnauthorized      Kind = "unauthorized"
	KindAlreadyFriends    Kind = "already_friends"
	KindRequestPending    Kind = "request_pending"
	KindNotFriends        Kind = "not_friends"
	KindRoomClosed        Kind = "room_closed"
	KindInvalidPair       Kind = "invalid_pair"
	KindInvalidTransition Kind = "invalid_transition"
	KindInvalidArgument   Kind = "invalid_argument"
	KindTransient         Kind = "transient"
	KindInternal          Kind = "internal"
)

// Error carries a Kind plus an optional wrapped cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Msg != "":
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrRoomClosed) match any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Msg == "" && t.Err == nil
}

// Sentinels for errors.Is comparisons.
var (
	ErrAlreadyInRoom     = &Error{Kind: KindAlreadyInRoom}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrUnauthorized      = &Error{Kind: KindUnauthorized}
	ErrAlreadyFriends    = &Error{Kind: KindAlreadyFriends}
	ErrRequestPending    = &Error{Kind: KindRequestPending}
	ErrNotFriends        = &Error{Kind: KindNotFriends}
	ErrRoomClosed        = &Error{Kind: KindRoomClosed}
	ErrInvalidPair       = &Error{Kind: KindInvalidPair}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrInvalidArgument   = &Error{Kind: KindInvalidArgument}
	ErrTransient         = &Error{Kind: KindTransient}
)

// New creates an error of the given kind.
func New(kind Kind, msg string) error { return &Error{Kind: kind, Msg: msg} }

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying error.
func Wrap(kind Kind, msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func NotFound(msg string) error        { return New(KindNotFound, msg) }
func Unauthorized(msg string) error    { return New(KindUnauthorized, msg) }
func InvalidArgument(msg string) error { return New(KindInvalidArgument, msg) }

// KindOf reports the kind of err. Unclassified errors are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Classify(err).(*Error).Kind
}

// IsRetryable reports whether the caller may safely retry with backoff.
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransient
}

// Classify converts storage and network errors into a kinded error.
// Already-kinded errors are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}

	var netErr net.Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, redis.Nil):
		return &Error{Kind: KindNotFound, Msg: "record not found", Err: err}
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, gorm.ErrInvalidTransaction),
		errors.Is(err, redis.ErrClosed),
		errors.As(err, &netErr):
		return &Error{Kind: KindTransient, Err: err}
	case errors.Is(err, context.Canceled):
		return &Error{Kind: KindTransient, Msg: "request was canceled", Err: err}
	default:
		return &Error{Kind: KindInternal, Err: err}
	}
}

// HTTPStatus maps an error kind to the HTTP status used by the API.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusForbidden
	case KindAlreadyInRoom, KindAlreadyFriends, KindRequestPending, KindNotFriends, KindInvalidTransition:
		return http.StatusConflict
	case KindRoomClosed:
		return http.StatusGone
	case KindInvalidPair, KindInvalidArgument:
		return http.StatusBadRequest
	case KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
