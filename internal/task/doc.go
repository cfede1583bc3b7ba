// Package task implements the asynchronous task engine: the task model
// and its state machine, the admission/dispatch queue with concurrency
// and failure thresholds, the executor pool, and durable task snapshots
// used for crash recovery.
package task
