// Package postgres implements the persistence interfaces on
// PostgreSQL: the task snapshot store the engine recovers from, and the
// repository store backing the content-management surface.
package postgres
