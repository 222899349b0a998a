/*
Package log provides structured logging for deskhive built on zerolog.

A single global logger is initialized once at process start via Init and
shared by all components. Child loggers carry a component field so log
lines can be filtered per subsystem, and event handlers attach the queue
message id so every line produced while handling one message correlates.

Console output (with timestamps) is the default; JSON output is available
for log aggregation pipelines.
*/
package log
