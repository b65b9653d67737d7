// Package kvstore provides a minimal in-process key-value store with
// change notification.
//
// Callers save string values under comparable keys, read them back, and
// subscribe to be told when a key's value changes or the key is removed.
// Everything lives in memory and in one process: there is no persistence
// and no network surface.
//
// # Quick Start
//
// Create a store, subscribe to a key, and write to it:
//
//	store, _ := kvstore.New[string]()
//	defer store.Close()
//
//	unsubscribe := store.Subscribe("user_id_1",
//	    func(v string) { fmt.Println("updated:", v) },
//	    kvstore.OnRemove(func() { fmt.Println("removed") }),
//	)
//
//	store.Save("user_id_1", "samuel jackson")   // "updated: ..." arrives later
//	store.Remove("user_id_1", nil)              // "removed" prints before Remove returns
//	unsubscribe()
//
// # Notification Model
//
// Reads and writes are synchronous: a value is visible to [Store.Get] as
// soon as [Store.Save] returns. Update notifications are not. Each Save
// hands a delivery task, carrying the saved value, to the store's
// [Scheduler]; subscribers are called when that task runs. This keeps
// subscriber code from re-entering the store in the middle of a write, and
// lets a subscriber registered right after a Save still receive it.
//
// Deliveries for the same key run in the order of the saves that caused
// them. Nothing is promised across different keys.
//
// Removal is different: [Store.Remove] calls every remove callback for the
// key, then its own onComplete argument, before it returns.
//
// # Schedulers
//
// The deferral step is pluggable through [WithScheduler]:
//
//   - [AsyncScheduler]: the default; a background goroutine draining an
//     unbounded FIFO queue
//   - [ManualScheduler]: tasks run only when the caller drains them, for
//     deterministic tests
//   - [SchedulerFunc]: adapt any function, e.g. an event loop's post method
//
// [Store.Flush] waits for outstanding deliveries when the scheduler
// supports it.
//
// # Subscriptions
//
// Go functions cannot be compared, so a subscription's identity is a
// [Token]. Each [Store.Subscribe] call mints a new token unless one is
// supplied with [WithToken]; re-subscribing a key with an existing token
// replaces that subscription's callbacks in place.
//
// # Observability
//
// Recovered subscriber panics are logged through zap ([WithLogger]).
// Prometheus counters and gauges are available through [WithMetrics].
package kvstore
