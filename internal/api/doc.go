// Package api contains the HTTP handlers, request/response models, and
// error mapping for the server's REST surface.
package api
