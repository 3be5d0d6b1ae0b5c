// Package invariant provides debug-build assertions for the card set.
//
// Checks are compiled in only with the cardsetdebug build tag:
//
//	go test -tags cardsetdebug ./...
//
// Release builds assume the invariants hold given a valid configuration,
// so Check is a no-op and Enabled is false.
package invariant
