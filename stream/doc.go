// Package stream implements the ingestion client for the Nexus event bus.
//
// A Client owns one producer goroutine that drains a bus subscription into a
// bounded queue and a pool of consumer goroutines that invoke a caller
// handler. The queue is the only structure shared between them.
//
// Delivery contract: at-most-once, lossy under load. When the queue is full
// the producer drops the event and records a warning; there is no blocking
// producer mode and no replay. Stop drains every buffered event before
// returning, so only events not yet pulled from the subscription at the
// moment of signalling are lost.
package stream
