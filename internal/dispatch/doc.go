// Package dispatch moves work between the polling goroutine and the worker pool.
//
// Two pieces cooperate:
//   - Pool runs channel handler bodies on a bounded set of goroutines. Submitting
//     never blocks the caller; tasks wait for a free slot in their own goroutine.
//   - Queue is a multi-producer, single-consumer FIFO owned by the polling
//     goroutine. Workers push finished replies onto it and the host drains it
//     once per tick.
//
// Ordering:
//   - Tasks submitted to the Pool start in no particular order and finish in
//     any order.
//   - Queue preserves push order, but since workers push as they finish,
//     replies to messages on the same channel are NOT delivered in arrival order.
//     Consumers that need ordering must sequence on their own.
//
// Cancellation:
//   - Work already submitted is never cancelled. Close stops intake and waits
//     for submitted work, bounded by the caller's context.
//
// Error handling:
//   - A panicking task is recovered and logged; the pool keeps running.
package dispatch
