// Package eventloop provides a single goroutine, JavaScript-style event
// loop for Go, featuring timers, animation frames, promises, and microtask
// scheduling. It is the host that the incremental renderer schedules on.
//
// # Architecture
//
// A [Loop] owns a queue of tasks ([Loop.Submit]), a queue of microtasks
// ([Loop.QueueMicrotask]), a timer heap ([Loop.SetTimeout]) and a batch of
// pending animation frame callbacks ([Loop.RequestAnimationFrame]). All
// callbacks run on the goroutine that called [Loop.Run].
//
// [Promise] provides Promise/A+ style chaining, with reactions scheduled as
// microtasks via the [Scheduler] interface, which [Loop] implements.
// [AbortController] and [AbortSignal] model cooperative cancellation.
//
// # Thread Safety
//
//   - Scheduling methods are safe to call from any goroutine
//   - Callbacks never run concurrently with each other
//   - [Promise] resolve and reject functions may be called from any
//     goroutine, reactions still run on the loop
//
// # Execution Model
//
// Task priority ordering within each tick:
//  1. Timer callbacks (earliest deadline first)
//  2. Animation frame callbacks, once per frame interval (see
//     [WithFrameInterval]), all pending callbacks sharing one timestamp
//  3. Tasks, up to a fixed budget per tick
//  4. Microtasks (also drained after each callback when strict ordering is
//     enabled)
//
// # Usage
//
//	loop, err := eventloop.New(
//	    eventloop.WithStrictMicrotaskOrdering(true),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	loop.Submit(func() {
//	    loop.SetTimeout(func() {
//	        fmt.Println("Hello after 100ms")
//	        loop.Close()
//	    }, 100*time.Millisecond)
//	})
//
//	if err := loop.Run(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
//
// # Error Types
//
//   - [AbortError]: the default reason for [AbortController.Abort]
//   - [PanicError]: wraps recovered panics, from callbacks and [Loop.Promisify]
package eventloop
