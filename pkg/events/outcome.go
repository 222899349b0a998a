package events

import "fmt"

// OutcomeKind classifies the result of handling one event message.
type OutcomeKind int

const (
	// OutcomeSuccess: the message was handled (including deliberate
	// no-ops) and must be deleted from the queue.
	OutcomeSuccess OutcomeKind = iota

	// OutcomeRetry: a precondition is not met yet. The message is left
	// on the queue for redelivery after the visibility timeout.
	OutcomeRetry

	// OutcomeFatal: the message failed sender validation or is otherwise
	// untrusted or unprocessable. It is logged and deleted, never retried.
	OutcomeFatal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetry:
		return "retry"
	case OutcomeFatal:
		return "fatal"
	}
	return "unknown"
}

// Outcome is the first-class result value returned by event handlers.
// Retry-vs-fatal-vs-success decisions belong to the handler; acting on
// them (deleting or keeping the message) belongs to the worker pool.
type Outcome struct {
	Kind   OutcomeKind
	Reason string
}

// Success returns a successful outcome.
func Success() Outcome {
	return Outcome{Kind: OutcomeSuccess}
}

// Retryf returns a retry outcome with a formatted reason.
func Retryf(format string, args ...any) Outcome {
	return Outcome{Kind: OutcomeRetry, Reason: fmt.Sprintf(format, args...)}
}

// Fatalf returns a fatal outcome with a formatted reason.
func Fatalf(format string, args ...any) Outcome {
	return Outcome{Kind: OutcomeFatal, Reason: fmt.Sprintf(format, args...)}
}
