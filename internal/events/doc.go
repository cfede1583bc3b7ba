// Package events decouples services that request background work from
// the task engine that performs it. Services emit TaskRequestEvents;
// a handler owned by the composition root turns them into queued tasks.
package events
