/*
Package events defines the controller event model: the message envelope,
the closed set of event types, the handler outcome taxonomy, and the
dispatcher that routes deliveries to registered handlers.

Handlers return an Outcome value instead of signalling through errors:
Success deletes the message, Retry leaves it for redelivery, and Fatal
deletes it without reprocessing. The worker pool is the only place that
acts on outcomes.
*/
package events
