// Package async implements group-labelled tracking of asynchronous
// operations (timers, animation frames, promises, proxied callbacks), so
// that an owner can cancel many in-flight operations with one call.
//
// Cancellation is group based: [Async.ClearAll] accepts a [Selector], such
// as [Label] or [Pattern], matched against the names of registered groups.
// Cancelled operations never run. Their owners are notified with a
// [*CancelledError], which matches [ErrCancelled].
package async
