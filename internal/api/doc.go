// Package api handles incoming HTTP requests, routing, request validation,
// and response formatting. It is the command surface of the report service:
// clients start report tasks, poll their status and manage the documents
// kept per subject.
package api
