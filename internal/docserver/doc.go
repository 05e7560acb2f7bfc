// Package docserver is a stub document collaboration server.
//
// It speaks just enough of the document WebSocket protocol to exercise the
// load generator: it requires a docId query parameter, expects an "auth"
// message first, answers with an authResult and a doc introduction, then
// optionally streams updates. Failure modes (rejected auth, truncated
// introduction, early close) are configurable so client behavior can be
// tested end to end.
//
// # Basic Usage
//
//	srv := docserver.New(docserver.DefaultConfig())
//	ts := httptest.NewServer(srv.Handler())
//	defer ts.Close()
//	defer srv.Close()
//
// or standalone:
//
//	srv := docserver.New(cfg)
//	err := srv.ListenAndServe(ctx, ":8080")
package docserver
