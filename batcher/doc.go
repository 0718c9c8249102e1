// Package batcher accumulates items and releases them as ordered batches,
// flushing when a size threshold is reached or a time interval elapses,
// whichever comes first.
//
// A batch is owned by the Batcher until flush; at flush the buffer is swapped
// out atomically and ownership transfers to the handler, which runs outside
// the lock so slow handlers never stall Add.
package batcher
