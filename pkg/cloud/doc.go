/*
Package cloud abstracts the compute provider hosting virtual desktops.

Compute covers instance lifecycle (start, stop, hibernate, terminate),
tagging and image lookup. Commands covers remote script execution on
hosts, used to resume desktop servers in place and to sample CPU
utilization for idle detection.

FakeCompute and FakeCommands are in-memory implementations for
single-node development mode and tests; production deployments plug in
a provider-specific adapter.
*/
package cloud
