//go:build !cgo

package normalize

import "fmt"

// newLibpostal is the non-cgo stub: libpostal requires cgo, so a
// build without it always reports NormaliserUnavailable and the
// caller (New, or NewStrict when the fallback is allowed) falls back
// to the Fallback normaliser.
func newLibpostal() (Normalizer, error) {
	return nil, fmt.Errorf("libpostal normaliser requires a cgo build")
}
