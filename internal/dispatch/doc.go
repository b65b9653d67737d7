// Package dispatch provides the deferred task queue behind kvstore's
// asynchronous update delivery.
//
// This package is internal to kvstore. The store schedules one task per
// Save, and the queue runs those tasks later on a single worker goroutine,
// in the order they were enqueued.
//
// The main components are:
//
//   - [Queue]: Unbounded FIFO task queue drained by one goroutine
//
// Users of the kvstore library should not need to interact with this
// package directly. Use kvstore.NewAsyncScheduler instead.
package dispatch
