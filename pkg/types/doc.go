/*
Package types defines the core data structures used throughout deskhive.

This package contains the domain model of the virtual desktop controller:
sessions, the servers backing them, session permissions, software stacks,
schedules, retry counters and remote command records. These types are used
by all other packages for persistence, event payloads and lifecycle logic.

# Core Types

  - Session: one user's virtual desktop, keyed by (owner, session id)
  - Server: the compute instance hosting a session, keyed by instance id
  - SessionPermission: a grant of session access to another actor, with
    denormalized session fields kept in sync by the permission projection
  - SessionCounter: a persisted bounded-retry counter per (session, purpose)
  - RemoteCommand: an in-flight remote-execution command on a host
  - SoftwareStack: a machine image definition sessions launch from
  - Schedule: per-day automatic resume/stop windows

# Session Lifecycle

Sessions move through

	PROVISIONING -> CREATING -> INITIALIZING -> READY
	READY <-> {STOPPING -> STOPPED | STOPPED_IDLE, RESUMING}
	-> DELETING -> DELETED

with ERROR reachable from any non-terminal state. DELETED is terminal:
no handler transitions a deleted session again. Hibernated servers feed
back into RESUMING.

All types serialize as JSON for storage and event snapshots.
*/
package types
