// Package store defines interfaces for data persistence operations.
// These interfaces abstract the underlying data storage mechanism from
// the task and knowledge services, so that the same invariants hold for
// the local JSON file backend and for PostgreSQL.
package store
