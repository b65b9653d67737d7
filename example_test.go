package kvstore_test

import (
	"fmt"

	"github.com/jpalmerr/kvstore"
)

func ExampleStore() {
	sched := kvstore.NewManualScheduler()
	store, _ := kvstore.New[string](kvstore.WithScheduler(sched))

	store.Save("user_id_1", "samuel jackson")

	unsubscribe := store.Subscribe("user_id_1",
		func(v string) { fmt.Println("updated:", v) },
		kvstore.OnRemove(func() { fmt.Println("cleanup") }),
	)
	defer unsubscribe()

	store.Save("user_id_1", "samuel l jackson")
	sched.Drain()

	store.Remove("user_id_1", func() { fmt.Println("removed") })

	_, ok := store.Get("user_id_1")
	fmt.Println("present:", ok)

	// Output:
	// updated: samuel jackson
	// updated: samuel l jackson
	// cleanup
	// removed
	// present: false
}
