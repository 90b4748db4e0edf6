// Package progress carries per-item progress of a scrape batch. The scheduler
// emits one event per collected item; a non-blocking Hub batches them and fans
// them out to sinks (log lines, the terminal bar, the status endpoint,
// Prometheus gauges). Progress is observational only and never affects
// scheduling or results.
package progress
