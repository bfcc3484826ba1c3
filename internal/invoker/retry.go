package invoker

import (
	"context"
	"errors"
	"net"
	"syscall"
	"time"
)

// FailureKind classifies a failed round trip for the retry policy.
type FailureKind int

const (
	FailureOther FailureKind = iota
	// FailureConnReset covers aborted, reset, and address-in-use connections.
	FailureConnReset
	// FailureAddrNotAvail means the local side ran out of ephemeral ports.
	FailureAddrNotAvail
	FailureConnRefused
	FailureTimeout
	FailureCanceled
)

func (k FailureKind) String() string {
	switch k {
	case FailureConnReset:
		return "conn_reset"
	case FailureAddrNotAvail:
		return "addr_not_avail"
	case FailureConnRefused:
		return "conn_refused"
	case FailureTimeout:
		return "timeout"
	case FailureCanceled:
		return "canceled"
	default:
		return "other"
	}
}

// RetryRule bounds how often a failure kind is retried and how long to wait
// before each retry.
type RetryRule struct {
	MaxRetries int
	Backoff    time.Duration
}

// RetryPolicy maps failure kinds to their rule. Kinds without an entry are
// never retried.
type RetryPolicy map[FailureKind]RetryRule

// DefaultRetryPolicy retries reset connections three times immediately and
// exhausted local addresses three times with a two second pause.
func DefaultRetryPolicy() RetryPolicy {
	return NewRetryPolicy(3, 2*time.Second)
}

// NewRetryPolicy builds the standard policy with a custom bound and
// address-exhaustion backoff.
func NewRetryPolicy(maxRetries int, addrNotAvailBackoff time.Duration) RetryPolicy {
	return RetryPolicy{
		FailureConnReset:    {MaxRetries: maxRetries},
		FailureAddrNotAvail: {MaxRetries: maxRetries, Backoff: addrNotAvailBackoff},
	}
}

// rule reports the rule for kind and whether the kind is retryable at all.
func (p RetryPolicy) rule(kind FailureKind) (RetryRule, bool) {
	r, ok := p[kind]
	return r, ok
}

// classify maps a transport error to its failure kind.
func classify(err error) FailureKind {
	switch {
	case err == nil:
		return FailureOther
	case errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EADDRINUSE):
		return FailureConnReset
	case errors.Is(err, syscall.EADDRNOTAVAIL):
		return FailureAddrNotAvail
	case errors.Is(err, syscall.ECONNREFUSED):
		return FailureConnRefused
	case errors.Is(err, context.Canceled):
		return FailureCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTimeout
	}
	return FailureOther
}
