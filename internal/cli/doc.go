// Package cli implements termctl, the operator command line for the terminal
// service. Commands are built with cobra; REST calls go through a resty
// client on a retrying transport, and attach speaks the stream protocol
// directly.
package cli
