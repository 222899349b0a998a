/*
Package queue provides the FIFO event queue the controller consumes.

The Queue interface models at-least-once FIFO delivery with per-group
ordering: messages sharing a group id are delivered in send order with
at most one in flight at a time, while distinct groups move
independently. MemQueue is the in-process implementation used for
single-node deployments and tests.
*/
package queue
