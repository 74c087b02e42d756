// Package queue runs report jobs through Redis with asynq. Dispatcher
// enqueues one asynq task per report request and Worker executes them.
package queue
