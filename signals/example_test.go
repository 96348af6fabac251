package signals_test

import (
	"context"
	"fmt"

	"github.com/ygrebnov/threading/signals"
)

type stage string

const (
	stageFetched stage = "fetched"
	stageParsed  stage = "parsed"
)

func (stage) Values() []stage { return []stage{stageFetched, stageParsed} }

// ExampleRouter shows a producer handing off to a consumer through named signals.
func ExampleRouter() {
	r, _ := signals.NewRouter[stage]()
	defer r.Close()

	ctx := context.Background()
	done := r.WaitAsync(ctx, stageParsed)

	go func() {
		_ = r.Wait(ctx, stageFetched)
		fmt.Println("parsing")
		_ = r.Release(stageParsed)
	}()

	fmt.Println("fetched")
	_ = r.Release(stageFetched)
	_, _ = done.Await()
	fmt.Println("done")
	// Output:
	// fetched
	// parsing
	// done
}

// ExampleSignal shows a signal with a bounded count.
func ExampleSignal() {
	s, _ := signals.NewSignal(0, 2)
	defer s.Close()

	fmt.Println(s.Release(2))
	fmt.Println(s.Release(1) != nil)
	fmt.Println(s.TryWait(), s.Count())
	// Output:
	// <nil>
	// true
	// true 1
}
