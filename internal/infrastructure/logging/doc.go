// Package logging provides structured logging using uber/zap.
//
// Two encodings are available:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Components take a *zap.Logger (usually Named after the component) rather
// than this wrapper; the wrapper owns configuration, the runtime level, and
// flushing on shutdown.
//
// Example Usage:
//
//	log, err := logging.New(logging.Config{Level: cfg.Logging.Level, Development: cfg.Logging.Development})
//	defer log.Close()
//	reg := registry.NewManager(rcfg, registry.WithLogger(log.Named("registry")))
package logging
