// Package testutil provides shared test helper utilities.
package testutil

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }
