// Package server assembles the terminal service.
//
// This package orchestrates all components:
//   - HTTP routing with Gin framework
//   - Middleware stack (recovery, tracing, metrics, CORS, rate limiting)
//   - Session registry with its launcher, policy, spawn breaker and reaper
//   - Optional command audit log
//
// Server Lifecycle:
//  1. Load configuration from environment/flags
//  2. Initialize logger, metrics and tracer
//  3. Load the command policy and open the audit log
//  4. Create the session registry
//  5. Setup HTTP routes and middleware
//  6. Serve until the context is cancelled
//  7. Drain HTTP, destroy sessions, close resources
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	srv, err := server.NewServer(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server
