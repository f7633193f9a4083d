package domain

import (
	"fmt"
	"time"
)

// Status tracks the lifecycle of one subscriber record within a cycle:
//
//	idle → in_progress → {complete | error}
//
// complete is only ever written after a verified successful delivery;
// error is reachable from in_progress or directly from idle. No
// transition leaves a record at complete with data from a failed cycle.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusInProgress Status = "in_progress"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// ErrorCategory classifies a terminal failure for reporting.
type ErrorCategory string

const (
	CategoryAnalysisFailed ErrorCategory = "analysis-failed"
	CategoryDeliveryFailed ErrorCategory = "delivery-failed"
	CategoryUpstreamError  ErrorCategory = "upstream-error"
	CategoryTimeout        ErrorCategory = "timeout"
	CategoryUnknown        ErrorCategory = "unknown"
)

// ErrorContext is the structured failure description handed to the
// status reporter.
type ErrorContext struct {
	Ticker   string
	TenantID string
	At       time.Time
	Category ErrorCategory
	Phase    string // free text, e.g. "data-fetch", "write"
	Err      error
}

// Message renders the human-readable error text written to the
// subscriber's primary record. The reporter truncates it to the
// destination's field limit.
func (e ErrorContext) Message() string {
	detail := ""
	if e.Err != nil {
		detail = ": " + e.Err.Error()
	}
	phase := e.Phase
	if phase == "" {
		phase = "unspecified"
	}
	return fmt.Sprintf("[%s] %s failed (%s, phase=%s)%s",
		e.At.UTC().Format(time.RFC3339), e.Ticker, e.Category, phase, detail)
}
