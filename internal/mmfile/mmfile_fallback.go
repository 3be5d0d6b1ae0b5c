//go:build !unix

package mmfile

// MapAnon allocates size bytes on the Go heap when anonymous mappings are not
// available. Heap allocations of this size are at least word aligned.
func MapAnon(size int) ([]byte, func() error, error) {
	if size <= 0 {
		return []byte{}, func() error { return nil }, nil
	}
	data := make([]byte, roundUp(size))
	return data[:size], func() error { return nil }, nil
}
