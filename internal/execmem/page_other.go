//go:build !unix

package execmem

func newPage(Options) (Provider, error) {
	return nil, ErrUnsupported
}
