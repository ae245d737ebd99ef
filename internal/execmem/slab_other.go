//go:build !linux

package execmem

// The slab provider needs memfd_create to map an arena twice.
type arena struct{}

func newSlab(Options) (Provider, error) {
	return nil, ErrUnsupported
}
