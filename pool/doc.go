// Package pool provides a bounded, generic object pool driven by a Manager.
//
// The Manager supplies the two operations the pool cannot know about:
//   - Create: produce a new object when no idle one is available
//   - Recycle: decide whether a returned or idle object may be reused
//
// The pool itself owns queueing, the maximum size, wait/create/recycle
// timeouts and idle eviction. Objects that fail Recycle are discarded and,
// when they implement io.Closer, closed.
package pool
