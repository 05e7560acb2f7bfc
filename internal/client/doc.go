// Package client simulates one collaborator connecting to a document server.
//
// A Session owns a single WebSocket connection for its whole life. It waits
// out a short start jitter, dials the document endpoint, sends the fixed
// auth message, waits for the two introduction messages, reports a single
// Completion, and then drains every further server message until the peer
// closes the stream or an error occurs.
//
// # Basic Usage
//
//	target, _ := docproto.TargetURL("ws", "127.0.0.1:8080")
//	completions := make(chan client.Completion, 1)
//
//	s := client.NewSession(0, target, client.DefaultConfig())
//	go func() {
//	    if err := s.Run(ctx, completions); err != nil {
//	        logger.Error(s.Label(), "%v", err)
//	    }
//	}()
//	c := <-completions
//
// # Errors
//
// Failures before introduction are returned as *Failure, which names the
// stage (connect, auth, intro, signal) and wraps one of the stage sentinels
// (ErrConnect, ErrAuth, ErrIntro, ErrSignal). A session that fails never
// sends a Completion. Once introduced, Run returns nil when the drain ends.
//
// # Cancellation
//
// Cancelling ctx aborts the jitter wait or the dial, and closes an open
// connection so a blocked read returns.
package client
