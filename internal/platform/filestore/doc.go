// Package filestore implements store.TaskStore on a single local JSON file.
// It is the default backend for single-process deployments.
package filestore
