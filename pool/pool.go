// Package pool provides a generic object pool whose objects are freed by a
// finalizer once the garbage collector drops them.
package pool

import (
	"runtime"
	"sync"
)

// ReuseMemory disables recycling when false: Put becomes a no-op and the
// finalizers free everything.
var ReuseMemory = true

type Pool[T any] struct {
	sync.Pool
	ResetFunc func(*T)
}

// NewPool returns a pool backed by allocFunc. allocFunc may return nil (for
// example when the underlying C allocation fails); Get then returns nil too.
func NewPool[T any](
	allocFunc func() *T,
	resetFunc func(*T),
	freeFunc func(*T),
) *Pool[T] {
	return &Pool[T]{
		Pool: sync.Pool{
			New: func() any {
				v := allocFunc()
				if v == nil {
					return (*T)(nil)
				}
				runtime.SetFinalizer(v, func(v *T) {
					freeFunc(v)
				})
				return v
			},
		},
		ResetFunc: resetFunc,
	}
}

func (p *Pool[T]) Get() *T {
	v, _ := p.Pool.Get().(*T)
	return v
}

func (p *Pool[T]) Put(items ...*T) {
	if !ReuseMemory {
		return
	}
	for _, item := range items {
		if item == nil {
			continue
		}
		p.ResetFunc(item)
		p.Pool.Put(item)
	}
}
