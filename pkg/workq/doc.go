// Package workq implements a bounded pool of worker goroutines executing
// tagged units of work in submission order, with cooperative shutdown.
//
// It is a direct translation of the original daemon's workq.c: a FIFO of
// work items guarded by one mutex/condvar, N long-lived workers popping
// from the front, and a Quiesce that flips a shutdown latch, wakes every
// worker, and waits for them all to exit. Submission is non-blocking;
// once Quiesce has been called, Submit always returns ErrDisabled.
package workq
