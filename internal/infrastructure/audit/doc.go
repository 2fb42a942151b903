// Package audit keeps a durable log of every command line submitted to a
// terminal session, accepted or not.
//
// Records live in a SQLite database through gorm. The Store implements
// session.Recorder, so it is handed to the registry and receives one record
// per submitted command with its outcome (executed, rejected, builtin,
// failed).
package audit
