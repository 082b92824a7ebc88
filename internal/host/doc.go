// Package host owns the polling loop that sits between a platform engine and
// the registered channels.
//
// The polling goroutine is the only one allowed to call the engine:
//   - Deliver hands an inbound message to the registry. Polling goroutine only.
//   - Submit may be called from anywhere; it queues a Deliver.
//   - Tick drains queued channel tasks, flushes the engine and polls its
//     event sources. Run calls Tick on an interval with the OS thread locked.
//
// Handlers run on a bounded worker pool and post their replies back through
// the queue. Shutdown stops intake, waits for in-flight handlers, runs one
// last drain and reports still-open response handles as leaked.
package host
