// Package service implements the application's business logic,
// coordinating repository persistence, background task submission, and
// consumer agent notification.
package service
