// Package uordb assembles the UOR content store into a runnable MCP
// server: a storage backend selected by URL, the cross-namespace
// resolver, and the JSON-RPC gateway bound to an HTTP listener.
//
// Minimal embedding:
//
//	srv, err := uordb.NewServer(uordb.Config{Store: "mem://", Listen: ":8090"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	go srv.Start()
package uordb
