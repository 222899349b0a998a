/*
Package handlers implements the event handlers driving the session
lifecycle state machine.

Every handler follows the same shape: validate the message sender,
load the affected records, decide, and return an outcome. Success
consumes the message, Retry leaves it for redelivery when a remote
precondition is not met yet, and Fatal consumes it without effect for
untrusted or malformed messages. Handlers never block waiting for
remote state; convergence is re-checked on redelivery, bounded by
per-session retry counters whose exhaustion moves the session to the
terminal ERROR state.
*/
package handlers
