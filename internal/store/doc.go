// Package store provides abstractions shared by all persistence
// implementations: the DBTX database handle, transaction helpers, and
// the sentinel errors stores translate low-level failures into.
package store
