package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jpalmerr/kvstore"
	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	store, err := kvstore.New[string](
		kvstore.WithName("users"),
		kvstore.WithLogger(logger),
	)
	if err != nil {
		logger.Fatal("failed to create store", zap.Error(err))
	}
	defer store.Close()

	// a profile view that re-renders whenever the user changes
	unsubscribe := store.Subscribe("user", func(v string) {
		fmt.Printf("  [profile] rendering %q\n", v)
	}, kvstore.OnRemove(func() {
		fmt.Println("  [profile] user signed out, clearing view")
	}))

	// an audit log that only cares about changes
	store.Subscribe("user", func(v string) {
		fmt.Printf("  [audit]   user changed to %q\n", v)
	})

	// a broken widget; its panic is logged and the others still run
	store.Subscribe("user", func(string) {
		panic("widget exploded")
	})

	fmt.Println("save user")
	store.Save("user", "samuel jackson")

	// the write is visible straight away, the notifications are not
	v, _ := store.Get("user")
	fmt.Printf("get user = %q (notifications pending)\n", v)

	flush(store)

	fmt.Println("save user again")
	store.Save("user", "samuel l jackson")
	flush(store)

	fmt.Println("profile unsubscribes")
	unsubscribe()

	fmt.Println("remove user")
	store.Remove("user", func() {
		fmt.Println("  [main]    remove complete")
	})

	_, ok := store.Get("user")
	fmt.Printf("user present after remove: %t\n", ok)
}

// flush waits for pending notifications so the output stays readable.
func flush(store *kvstore.Store[string]) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := store.Flush(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "flush failed: %v\n", err)
	}
}
