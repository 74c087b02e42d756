// Package task runs report generation in the background. It holds the
// completion pipeline (Executor), the façade used by the command surface
// (Service), the in-process job queue and worker pool, and the sweeper that
// fails tasks no worker will finish.
package task
