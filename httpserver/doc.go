// Package httpserver provides the inbound HTTP plumbing of the analytics proxy.
//
// The proxy does not authenticate its own callers; this package only carries
// the cross-cutting pieces every handler shares:
//
//   - RequestID assigns or propagates an X-Request-ID per request
//   - AccessLog logs method, path, status and duration through a Printf-style Logger
//   - Recover turns handler panics into 500 responses
//   - NewTLSConfig, ConfigureServer and NewServer set up the listener
//
// # Quick Start
//
//	handler := httpserver.Chain(router,
//	    httpserver.RequestID(),
//	    httpserver.AccessLog(logger, httpserver.WithExemptPaths("/healthz", "/metrics")),
//	    httpserver.Recover(logger),
//	)
//	server, err := httpserver.NewServer(":8080", handler, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(server.ListenAndServe())
package httpserver
