// Package coordinator fans out simulated clients and times their handshakes.
//
// A Coordinator launches one client.Session per requested client without
// waiting for any of them, collects their completion signals on a shared
// channel, and reports how long it took from the first launch until the
// last client was introduced.
//
// Sessions that fail before introduction report on a second channel, so a
// run ends as soon as every session has either been introduced or failed
// (ErrIncomplete) instead of waiting forever. An optional Timeout bounds
// the wait (ErrTimeout). A client count of zero is rejected (ErrNoClients).
//
// Sessions keep draining after Run returns. Wait blocks until they have all
// ended; Shutdown cancels them.
//
// # 使用例
//
//	cfg := coordinator.DefaultConfig()
//	cfg.Target = "127.0.0.1:8080"
//	cfg.Clients = 500
//
//	c := coordinator.New(cfg)
//	result, err := c.Run(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.Report())
//	c.Shutdown()
package coordinator
