// Package queue provides a generic bounded FIFO queue connecting one producer
// to many consumers.
//
// The queue is the backpressure primitive of the ingestion pipeline:
//   - Push is non-blocking and reports false when the queue is at capacity,
//     so producers drop rather than stall
//   - Pop blocks with a caller-supplied timeout so consumers can observe
//     stop signals promptly even when idle
//   - Done/Join give exactly-once handoff accounting: Join returns only after
//     every pushed item has been popped and marked done
//
// Statistics are always collected for observability. Prometheus metrics can be
// optionally enabled via WithMetrics().
package queue
