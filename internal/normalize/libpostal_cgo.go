//go:build cgo

package normalize

/*
#cgo pkg-config: libpostal
#include <libpostal/libpostal.h>
#include <stdlib.h>
*/
import "C"

import (
	"fmt"
	"sync"
	"unsafe"

	expand "github.com/openvenues/gopostal/expand"
)

// libpostalMu serialises every call into libpostal, mirroring
// alysonripley-gopostal/neardupe/neardupe.go — libpostal's C API is
// not documented as reentrant across calls that touch its shared
// classifier state, so every Normalizer method takes this lock.
var libpostalMu sync.Mutex

var (
	libpostalOnce sync.Once
	libpostalOK   bool
)

func initLibpostal() bool {
	libpostalOnce.Do(func() {
		libpostalOK = bool(C.libpostal_setup()) && bool(C.libpostal_setup_language_classifier())
	})
	return libpostalOK
}

// Libpostal is the cgo-backed Normalizer, grounded on the teacher's
// internal/external/libpostal.go (expand.ExpandAddressOptions) for
// Expand, and on alysonripley-gopostal's neardupe.go for the
// near-dupe-hash C binding, which the canonical openvenues/gopostal
// Go API does not expose.
type Libpostal struct {
	hashOptions C.libpostal_near_dupe_hash_options_t
}

// newLibpostal initialises libpostal once per process (spec §6: "init
// is called once per process") and returns an error if the shared
// data directory (~2GB) failed to load, so callers can fall back.
func newLibpostal() (Normalizer, error) {
	if !initLibpostal() {
		return nil, fmt.Errorf("libpostal_setup failed (is the ~2GB data directory installed?)")
	}
	return &Libpostal{
		hashOptions: C.libpostal_get_near_dupe_hash_default_options(),
	}, nil
}

// Expand returns libpostal's canonical expansions of s.
func (l *Libpostal) Expand(s string) []string {
	libpostalMu.Lock()
	defer libpostalMu.Unlock()

	opts := expand.GetDefaultExpansionOptions()
	return expand.ExpandAddressOptions(s, opts)
}

// NearDupeHashes binds libpostal_near_dupe_hashes directly, since it
// has no wrapper in the canonical gopostal Go package.
func (l *Libpostal) NearDupeHashes(fields []Field) []string {
	if len(fields) == 0 {
		return nil
	}

	libpostalMu.Lock()
	defer libpostalMu.Unlock()

	n := len(fields)
	cLabels := make([]*C.char, n)
	cValues := make([]*C.char, n)
	for i, f := range fields {
		cLabels[i] = C.CString(f.Label)
		cValues[i] = C.CString(f.Value)
		defer C.free(unsafe.Pointer(cLabels[i]))
		defer C.free(unsafe.Pointer(cValues[i]))
	}

	var numHashes C.size_t
	cHashes := C.libpostal_near_dupe_hashes(
		C.size_t(n),
		(**C.char)(unsafe.Pointer(&cLabels[0])),
		(**C.char)(unsafe.Pointer(&cValues[0])),
		l.hashOptions,
		&numHashes,
	)
	if cHashes == nil {
		return nil
	}
	defer C.free(unsafe.Pointer(cHashes))

	return cStringArrayToSlice(cHashes, numHashes)
}

func cStringArrayToSlice(arr **C.char, size C.size_t) []string {
	out := make([]string, int(size))
	ptr := (*[1 << 28]*C.char)(unsafe.Pointer(arr))
	for i := 0; i < int(size); i++ {
		out[i] = C.GoString(ptr[i])
	}
	return out
}
