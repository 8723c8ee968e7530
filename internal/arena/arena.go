// Package arena provides index-based node arenas for the selection and
// resolution trees. Nodes reference children by index, so a whole tree is
// released by dropping its arena; there is no per-node bookkeeping and no
// possibility of reference cycles.
package arena

// Ref is an index into an Arena. The zero arena has no valid Refs.
type Ref int32

// Nil is the absent-node sentinel.
const Nil Ref = -1

// Arena is a bump allocator over a slice. It is owned by a single request
// (or a single cached parse) and requires no synchronization for writes;
// once a tree is complete it may be shared for concurrent reads.
type Arena[T any] struct {
	nodes []T
}

// New returns an arena with room for n nodes before reallocation.
func New[T any](n int) *Arena[T] {
	return &Arena[T]{nodes: make([]T, 0, n)}
}

// Alloc appends v and returns its Ref.
func (a *Arena[T]) Alloc(v T) Ref {
	a.nodes = append(a.nodes, v)
	return Ref(len(a.nodes) - 1)
}

// At returns the node for r. The pointer stays valid until the next Alloc.
func (a *Arena[T]) At(r Ref) *T {
	return &a.nodes[r]
}

// Len reports the number of allocated nodes.
func (a *Arena[T]) Len() int {
	return len(a.nodes)
}
