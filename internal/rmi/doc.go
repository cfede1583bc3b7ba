// Package rmi is the remote invocation bridge: it lets task bodies
// issue fire-and-forget calls to remote agents over a message bus and
// routes the eventual correlated reply (or a watchdog timeout) back to
// the owning task. Every invocation resolves exactly once.
package rmi
