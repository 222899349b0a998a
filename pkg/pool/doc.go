/*
Package pool runs the worker pool that consumes the event queue.

The Controller sizes the pool against queue depth: it holds
ceil(depth/messagesPerWorker) workers clamped to the configured
[min, max] range, re-evaluated on a fixed interval. Each worker long-
polls the queue, routes messages through the dispatcher and acts on the
returned outcome: successful and fatal messages are deleted, retrying
messages stay for redelivery and block the rest of their ordering group
within the batch.
*/
package pool
