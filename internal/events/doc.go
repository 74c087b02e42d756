// Package events carries task progress through the system without coupling
// the component that produces a progress line to the one that records it.
//
// The primary components are:
// - ProgressEvent: one progress message for one task
// - EventHandler: interface for components that consume events
// - EventEmitter: interface for components that publish events
// - InMemoryEventEmitter: synchronous fan-out to registered handlers
package events
