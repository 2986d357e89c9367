//go:build !cgo

package store

// The sqlite driver needs cgo; without it no sqlite error can reach us.
func sqliteConstraintCode(error) (string, bool) { return "", false }
