// Package reactive is a small fine-grained, dependency-tracking engine.
//
// # Model
//
// A Cell holds a value. A computation (Effect or Memo) records every cell it
// reads while running and re-runs when any of them is written. Computations and
// cleanup hooks belong to the owner that was active when they were created; a
// Root is an owner detached from any parent whose lifetime is controlled solely
// by the dispose function handed to it. Disposing an owner disposes everything it
// owns, runs its cleanup hooks in reverse registration order and unsubscribes
// its computations, so no recomputation can happen afterwards.
//
// # Threading
//
// A Runtime is not safe for concurrent use. All reads, writes and disposals must
// happen on the goroutine that owns the runtime (the engine's queue goroutine).
package reactive
