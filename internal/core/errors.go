package core

import (
	"errors"
	"fmt"
)

// Kind classifies pipeline errors so commands can map them to exit codes
// and callers can decide whether to retry.
type Kind int

const (
	KindInternal    Kind = iota // unexpected failure, exit 1
	KindConfig                  // missing/invalid configuration, exit 2
	KindAuth                    // login failed or session could not be refreshed, exit 3
	KindUpstream                // publisher site / LLM / object store unavailable after retries, exit 4
	KindTransient               // retryable condition, not expected to escape a retry loop
	KindData                    // malformed input (unparseable PDF/HTML, bad model output)
	KindConflict                // duplicate work detected (already downloaded, already notified)
	KindNotFound                // requested entity does not exist
	KindRateLimited             // explicit 429 from an upstream
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindAuth:
		return "auth"
	case KindUpstream:
		return "upstream"
	case KindTransient:
		return "transient"
	case KindData:
		return "data"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

// Error carries a Kind alongside a wrapped cause.
type Error struct {
	K   Kind
	Msg string
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Msg != "" {
			return e.Msg + ": " + e.Err.Error()
		}
		return e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a kinded error. The last argument may be an error to wrap.
func E(k Kind, format string, args ...any) error {
	var cause error
	if n := len(args); n > 0 {
		if err, ok := args[n-1].(error); ok && format != "" && !containsVerb(format, n) {
			cause = err
			args = args[:n-1]
		}
	}
	msg := fmt.Sprintf(format, args...)
	return &Error{K: k, Msg: msg, Err: cause}
}

// containsVerb reports whether format consumes all n args itself.
func containsVerb(format string, n int) bool {
	verbs := 0
	for i := 0; i < len(format)-1; i++ {
		if format[i] == '%' {
			if format[i+1] == '%' {
				i++
				continue
			}
			verbs++
		}
	}
	return verbs >= n
}

// Wrap attaches a kind and message to err. Returns nil when err is nil.
func Wrap(k Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{K: k, Msg: msg, Err: err}
}

// KindOf extracts the Kind from err, walking the wrap chain.
// Unclassified errors report KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.K
	}
	return KindInternal
}

// ExitCode maps an error to the process exit code contract:
// 0 success, 2 config error, 3 auth failure, 4 upstream unavailable,
// 1 anything else.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch KindOf(err) {
	case KindConfig:
		return 2
	case KindAuth:
		return 3
	case KindUpstream, KindRateLimited:
		return 4
	default:
		return 1
	}
}

// IsRetryable reports whether err is worth another attempt inside a
// backoff loop. Auth, config and data errors never are.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindTransient, KindUpstream, KindRateLimited:
		return true
	}
	return false
}
