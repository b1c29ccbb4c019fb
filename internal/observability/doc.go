// Package observability builds the process logger and the HTTP request
// logging middleware.
//
// Every log line emitted while serving a request carries the request ID set
// by chi's RequestID middleware.
package observability
