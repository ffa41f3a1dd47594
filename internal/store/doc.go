// Package store defines interfaces for persistence dependencies (prospect
// repositories, run history, blob storage and notifications).
// Implementations live in other packages; this package must not import
// database drivers or concrete clients.
package store
