package reclaim

import "unsafe"

// uintptrOf gives a stable sort/comparison key for a pointer without
// otherwise touching unsafe — used only to order the protected-set scan and
// never to synthesize a pointer back from an integer.
func uintptrOf[T any](p *T) uintptr {
	return uintptr(unsafe.Pointer(p))
}
