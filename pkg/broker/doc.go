/*
Package broker is the client for the remote desktop session broker.

The broker owns the remote side of every session: it starts and deletes
remote sessions on desktop hosts, reports their state, hands out
connection data, and enforces per-actor access. All calls are accepted
asynchronously by the broker, so the controller treats success as
"request accepted" and confirms state changes by polling
DescribeSessions.

HTTPClient is the production implementation; transient failures are
retried with exponential backoff.
*/
package broker
