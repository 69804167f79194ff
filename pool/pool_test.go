package pool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type item struct {
	Value int
}

func TestPoolGetPut(t *testing.T) {
	allocs := 0
	p := NewPool(
		func() *item { allocs++; return &item{} },
		func(v *item) { v.Value = 0 },
		func(v *item) {},
	)

	v := p.Get()
	require.NotNil(t, v)
	v.Value = 42
	p.Put(v)

	v = p.Get()
	require.NotNil(t, v)
	require.Zero(t, v.Value)
	require.GreaterOrEqual(t, allocs, 1)
}

func TestPoolAllocationFailure(t *testing.T) {
	p := NewPool(
		func() *item { return nil },
		func(v *item) {},
		func(v *item) {},
	)
	require.Nil(t, p.Get())
	require.NotPanics(t, func() { p.Put(nil) })
}
