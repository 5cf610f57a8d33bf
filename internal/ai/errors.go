package ai

import (
	"errors"
	"fmt"
)

// ErrCallFailed matches every failure returned by Client.Complete.
var ErrCallFailed = errors.New("llm call failed")

type Kind int

const (
	KindTimeout Kind = iota
	KindTransport
	KindStatus
	KindMalformed
	KindEmpty
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindTransport:
		return "transport"
	case KindStatus:
		return "bad status"
	case KindMalformed:
		return "malformed response"
	case KindEmpty:
		return "empty response"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error describes why a completion produced no text.
type Error struct {
	Kind   Kind
	Status int // set for KindStatus
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindStatus && e.Err != nil:
		return fmt.Sprintf("llm: http %d: %v", e.Status, e.Err)
	case e.Kind == KindStatus:
		return fmt.Sprintf("llm: http %d", e.Status)
	case e.Err != nil:
		return fmt.Sprintf("llm: %s: %v", e.Kind, e.Err)
	default:
		return "llm: " + e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrCallFailed }

// StatusCode lets the rate limiter recognise overload responses.
func (e *Error) StatusCode() int { return e.Status }
