package schema

import "sync"

var (
	sharedOnce    sync.Once
	sharedCatalog *Catalog
)

// Shared returns the process-wide catalog. The first call fixes the source
// and options; later calls return the same catalog and ignore their
// arguments.
func Shared(src Source, opts ...Option) *Catalog {
	sharedOnce.Do(func() {
		sharedCatalog = NewCatalog(src, opts...)
	})
	return sharedCatalog
}
