/*
Package notifier turns store mutations into change events.

It wraps storage.Store and publishes DB_ENTRY_CREATED, DB_ENTRY_UPDATED
and DB_ENTRY_DELETED events for watched tables, carrying old and new
record snapshots in the event detail. Handlers consume these events to
keep denormalized session permission fields in sync and to push
permission changes to the broker.
*/
package notifier
