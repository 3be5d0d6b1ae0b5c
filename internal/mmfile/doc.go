// Package mmfile provides anonymous memory mappings for arena segments.
//
// Segment memory obtained here lives outside the Go heap: the garbage
// collector neither scans nor moves it, and it is returned to the operating
// system by the cleanup function rather than by collection. Mappings hold
// only plain words, never Go pointers.
package mmfile

// PageSize is the granularity mappings are rounded up to.
const PageSize = 4096

// roundUp rounds size to a whole number of pages.
func roundUp(size int) int {
	return (size + PageSize - 1) &^ (PageSize - 1)
}
