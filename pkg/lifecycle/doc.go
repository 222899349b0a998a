/*
Package lifecycle implements the session and host orchestration actions
behind the event handlers: resuming, stopping, deleting and erroring
sessions, issuing remote commands to hosts, evaluating schedules, and
enforcing broker-side permissions.

The Manager mutates local state and delegates remote work to the broker
and compute clients. It never blocks on remote state convergence; each
action publishes the follow-up validation events that confirm
completion asynchronously.
*/
package lifecycle
