package analysis

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// UpstreamError is a classified failure from the analysis service.
// Transient marks overload-class failures the engine may retry;
// everything else is terminal for the cycle. RetryAfter carries the
// server-suggested delay when one was given (0 = none).
type UpstreamError struct {
	Status     int
	Msg        string
	Transient  bool
	RetryAfter time.Duration
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upstream analysis error (status %d): %s", e.Status, e.Msg)
	}
	return "upstream analysis error: " + e.Msg
}

// IsTransient reports whether the engine should retry after err.
// A typed UpstreamError is authoritative; for opaque errors from
// collaborators we cannot change, the error text is inspected for
// known overload signals.
func IsTransient(err error) bool {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Transient
	}
	text := strings.ToLower(err.Error())
	for _, marker := range []string{
		"rate limit", "rate-limit", "too many requests",
		"overloaded", "overload", "try again", "429", "503",
	} {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// retryAfterText matches delay hints embedded in error text, e.g.
// "retry after 12s" or "retry-after: 30".
var retryAfterText = regexp.MustCompile(`retry[- ]after:?\s*(\d+)\s*(s|sec|seconds)?`)

// RetryAfterHint extracts the server-suggested backoff from err,
// capped at max. Returns 0 when the error carries no usable hint.
func RetryAfterHint(err error, max time.Duration) time.Duration {
	var d time.Duration

	var ue *UpstreamError
	if errors.As(err, &ue) && ue.RetryAfter > 0 {
		d = ue.RetryAfter
	} else if m := retryAfterText.FindStringSubmatch(strings.ToLower(err.Error())); m != nil {
		if secs, perr := strconv.Atoi(m[1]); perr == nil {
			d = time.Duration(secs) * time.Second
		}
	}

	if d > max {
		return max
	}
	return d
}
