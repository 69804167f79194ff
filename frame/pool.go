// Package frame holds the pool of astiav.Frame holders shared by the shader
// filter and the transcoder.
package frame

import (
	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/avplacebo/pool"
)

// Pool recycles frame holders; Get returns nil when libav fails to allocate one.
var Pool = pool.NewPool(
	astiav.AllocFrame,
	func(f *astiav.Frame) { f.Unref() },
	func(f *astiav.Frame) { f.Free() },
)

// Get is a shorthand for Pool.Get.
func Get() *astiav.Frame {
	return Pool.Get()
}

// Put unreferences the frames and hands them back to Pool.
func Put(frames ...*astiav.Frame) {
	Pool.Put(frames...)
}
