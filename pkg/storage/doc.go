/*
Package storage persists controller state in an embedded BoltDB database.

Records are stored as JSON values in per-entity buckets. Composite keys
group related records: sessions under owner#session_id, permissions
under session_id#actor, counters under session_id#counter_type, and
software stacks under base_os#stack_id. Missing records surface as
ErrNotFound so callers can distinguish absence from storage failures.

Retry counters are the one read-modify-write path; IncrementCounter runs
inside a single update transaction so concurrent increments never lose
an attempt.
*/
package storage
