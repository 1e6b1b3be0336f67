package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/adshao/go-binance/v2/common"
)

// Kind classifies a failed exchange call.
type Kind int

const (
	// KindThrottled means the exchange refused for rate reasons; retry
	// after a computed delay.
	KindThrottled Kind = iota
	// KindRemoteRejected is a non-retryable business rejection
	// (insufficient funds, invalid quantity/symbol, bad signature).
	KindRemoteRejected
	// KindTransient is a network or server hiccup; retry with backoff.
	KindTransient
	// KindStaleState means local state disagrees with the exchange;
	// resolved by the next reconciliation pass.
	KindStaleState
	// KindFatal is an unrecoverable auth/config failure.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindThrottled:
		return "throttled"
	case KindRemoteRejected:
		return "remote_rejected"
	case KindTransient:
		return "transient"
	case KindStaleState:
		return "stale_state"
	case KindFatal:
		return "fatal"
	}
	return "unknown"
}

// Error is a classified gateway failure.
type Error struct {
	Kind Kind
	Code int64 // exchange error code, 0 for local/network failures
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("gateway %s: %s (code %d): %v", e.Op, e.Kind, e.Code, e.Err)
	}
	return fmt.Sprintf("gateway %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the classified kind; unclassified errors count as
// transient so callers back off rather than crash.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindTransient
}

// CodeOf returns the exchange error code, or 0.
func CodeOf(err error) int64 {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code
	}
	return 0
}

// Binance futures error codes the classifier knows about.
const (
	codeInternalError      = -1001
	codeTooManyRequests    = -1003
	codeIPBanned           = -1015
	codeInvalidQuantity    = -1013
	codeTimestampOutOfSync = -1021
	codeTooMuchPrecision   = -1111
	codeInvalidSymbol      = -1121
	codeInsufficientFunds  = -2010
	codeOrderRejected      = -2011
	codeKeyPermission      = -2013
	codeBadSignature       = -2014
	codeKeyIPRestricted    = -2015
	CodeNotionalTooSmall   = -4164
)

var codeKinds = map[int64]Kind{
	codeInternalError:      KindTransient,
	codeTooManyRequests:    KindThrottled,
	codeIPBanned:           KindThrottled,
	codeInvalidQuantity:    KindRemoteRejected,
	codeTimestampOutOfSync: KindStaleState,
	codeTooMuchPrecision:   KindRemoteRejected,
	codeInvalidSymbol:      KindRemoteRejected,
	codeInsufficientFunds:  KindRemoteRejected,
	codeOrderRejected:      KindRemoteRejected,
	codeKeyPermission:      KindFatal,
	codeBadSignature:       KindRemoteRejected,
	codeKeyIPRestricted:    KindFatal,
	CodeNotionalTooSmall:   KindRemoteRejected,
}

// classify wraps an exchange call failure as a typed Error. API errors
// outside the table are surfaced as RemoteRejected so they are never
// retried automatically.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTransient, Op: op, Err: err}
	}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		kind, ok := codeKinds[apiErr.Code]
		if !ok {
			kind = KindRemoteRejected
		}
		return &Error{Kind: kind, Code: apiErr.Code, Op: op, Err: err}
	}
	return &Error{Kind: KindTransient, Op: op, Err: err}
}
