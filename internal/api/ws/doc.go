// Package ws provides the streaming bridge between a websocket connection
// and one existing terminal session.
//
// A connection names its session with the sessionId query parameter. The
// bridge never creates sessions; a missing or unknown id is answered with an
// error envelope and the connection is closed. Closing the connection leaves
// the session running so it can be reattached.
//
// Message Types (Client → Server):
//   - command: {command} input for the session
//   - resize: {cols, rows} terminal size
//   - ping: keep-alive, answered with pong
//
// Message Types (Server → Client):
//   - ready: {sessionId, currentDir} sent once after binding
//   - output: {data} shell output
//   - error: {data} shell stderr, rejections and protocol errors
//   - clear: screen clear request
//   - exit: {code} the shell exited; the connection closes after it
//   - pong: reply to ping
//
// Example Usage:
//
//	handler := ws.NewHandler(registry, ws.WithOrigins(origins), ws.WithLogger(logger))
//	router.GET("/api/terminal/ws", handler.HandleConnection)
package ws
