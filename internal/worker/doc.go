// Package worker launches and supervises long-lived goroutines.
//
// A Group starts one goroutine per task without ever blocking the caller,
// while retaining what a bare "go" statement throws away: a shared
// cancellation context, a live-task count, and a way to wait for every
// task to return.
//
// # Basic Usage
//
//	g := worker.NewGroup(ctx)
//	for i := range n {
//	    g.Go(func(ctx context.Context) {
//	        // run until ctx is cancelled or the work ends
//	    })
//	}
//
//	g.Wait()  // block until every task has returned
//	g.Stop()  // or cancel all tasks and then wait
//
// # Shutdown
//
// Stop cancels the group's context and waits. Go returns false once the
// group is stopping or its parent context is done; the task is not run.
package worker
