// Package tensor implements the aligned N-D tensor layer: owning
// allocations aligned for DMA to an accelerator, zero-copy views, and a
// bounded pool keyed by (shape, dtype). No example repo in the corpus ships a
// generic aligned-tensor type — onnxruntime_go's own ort.Tensor is specific
// to the ONNX C API boundary and lives one layer up, in internal/inference —
// so this package is built on unsafe/stdlib rather than a third-party
// tensor library; zero-fill and element-wise comparison are plain loops
// over the logical rows, skipping the inner-dimension padding.
package tensor

import (
	"fmt"
	"unsafe"

	"voxstream/internal/errs"
)

// Dtype is the numeric element type of a Tensor.
type Dtype int

const (
	F16 Dtype = iota
	F32
	F64
	I32
)

func (d Dtype) ElemSize() int {
	switch d {
	case F16:
		return 2
	case F32, I32:
		return 4
	case F64:
		return 8
	default:
		return 0
	}
}

const (
	alignment  = 64 // bytes, DMA-friendly
	innerTile  = 16 // elements; innermost stride is padded to a multiple of this
)

// Tensor is a rectangular N-D array with row-major strides (element counts,
// not bytes). A view shares storage with its source and must not outlive it;
// Go's GC makes that safe to violate without corrupting memory, but callers
// should still respect the source's lifetime for correctness.
type Tensor struct {
	shape   []int
	strides []int
	dtype   Dtype
	storage []byte // raw backing store; always owned by the root allocation
	offset  int    // element offset into storage
	owns    bool   // true only for the tensor returned by alloc()
}

// Shape returns a copy of the tensor's shape.
func (t *Tensor) Shape() []int {
	out := make([]int, len(t.shape))
	copy(out, t.shape)
	return out
}

func (t *Tensor) Dtype() Dtype { return t.dtype }

// ElementCount returns the product of the shape dimensions (not counting
// inner-dimension padding).
func (t *Tensor) ElementCount() int {
	n := 1
	for _, s := range t.shape {
		n *= s
	}
	return n
}

// Owns reports whether this tensor deallocates its storage on drop (it never
// explicitly frees in Go; this just documents root-vs-view status).
func (t *Tensor) Owns() bool { return t.owns }

func computeStrides(shape []int) []int {
	n := len(shape)
	strides := make([]int, n)
	if n == 0 {
		return strides
	}
	// Innermost dimension is padded up to a multiple of innerTile elements.
	innerSize := shape[n-1]
	paddedInner := ((innerSize + innerTile - 1) / innerTile) * innerTile
	strides[n-1] = 1
	acc := paddedInner
	for i := n - 2; i >= 0; i-- {
		strides[i] = acc
		acc *= shape[i]
	}
	return strides
}

// paddedElementCount returns how many elements must be backed by storage,
// accounting for the innermost-dimension padding baked into strides.
func paddedElementCount(shape, strides []int) int {
	if len(shape) == 0 {
		return 0
	}
	return shape[0] * strides[0]
}

// Alloc returns a new owning tensor with 64-byte aligned storage and the
// innermost stride padded to a multiple of 16 elements. Falls back to a
// plain (possibly unaligned) allocation of the same padded size and strides
// on alignment failure rather than
// bubbling errs.ErrAllocFailed to the caller's caller — callers that need
// the strict guarantee can check Aligned().
func Alloc(shape []int, dtype Dtype) (*Tensor, error) {
	for _, s := range shape {
		if s <= 0 {
			return nil, fmt.Errorf("tensor: shape dimension must be positive, got %v", shape)
		}
	}
	strides := computeStrides(shape)
	count := paddedElementCount(shape, strides)
	elemSize := dtype.ElemSize()

	storage, err := alignedBytes(count*elemSize, alignment)
	if err != nil {
		// Fall back to the plain allocator; still zero-valued by Go.
		storage = make([]byte, count*elemSize)
	}

	return &Tensor{
		shape:   append([]int(nil), shape...),
		strides: strides,
		dtype:   dtype,
		storage: storage,
		owns:    true,
	}, nil
}

// alignedBytes returns a byte slice of length n whose first element's
// address is a multiple of align. Go doesn't expose aligned allocation
// directly, so this over-allocates and slices from the first aligned
// offset — a GC-native stand-in for posix_memalign.
func alignedBytes(n, align int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	if align&(align-1) != 0 {
		return nil, fmt.Errorf("tensor: alignment %d is not a power of two", align)
	}
	buf := make([]byte, n+align)
	addr := uintptr(unsafe.Pointer(&buf[0]))
	offset := (align - int(addr%uintptr(align))) % align
	return buf[offset : offset+n], nil
}

// Aligned reports whether the storage is actually 64-byte aligned (false
// only on the fallback path inside Alloc).
func (t *Tensor) Aligned() bool {
	if len(t.storage) == 0 {
		return true
	}
	addr := uintptr(unsafe.Pointer(&t.storage[0]))
	return addr%alignment == 0
}

// View returns a non-owning tensor over source's storage at the given
// element offset and shape. Fails with errs.ErrOutOfBounds if the view
// would read past the source's backing storage.
func View(source *Tensor, shape []int, elementOffset int) (*Tensor, error) {
	count := 1
	for _, s := range shape {
		count *= s
	}
	available := len(source.storage)/source.dtype.ElemSize() - source.offset
	if elementOffset+count > available {
		return nil, errs.ErrOutOfBounds
	}
	return &Tensor{
		shape:   append([]int(nil), shape...),
		strides: computeStrides(shape),
		dtype:   source.dtype,
		storage: source.storage,
		offset:  source.offset + elementOffset,
		owns:    false,
	}, nil
}

// Float32 returns the tensor's backing storage reinterpreted as []float32.
// Panics if dtype != F32; callers are expected to know their own tensors'
// dtype, mirroring onnxruntime_go's typed Tensor[T] accessors.
func (t *Tensor) Float32() []float32 {
	if t.dtype != F32 {
		panic("tensor: Float32 called on non-f32 tensor")
	}
	return t.float32View()
}

// Int32 returns the tensor's backing storage reinterpreted as []int32.
// Panics if dtype != I32.
func (t *Tensor) Int32() []int32 {
	if t.dtype != I32 {
		panic("tensor: Int32 called on non-i32 tensor")
	}
	if len(t.storage) == 0 {
		return nil
	}
	n := len(t.storage) / 4
	ptr := (*int32)(unsafe.Pointer(&t.storage[0]))
	full := unsafe.Slice(ptr, n)
	return full[t.offset:]
}

func (t *Tensor) float32View() []float32 {
	if len(t.storage) == 0 {
		return nil
	}
	n := len(t.storage) / 4
	ptr := (*float32)(unsafe.Pointer(&t.storage[0]))
	full := unsafe.Slice(ptr, n)
	return full[t.offset:]
}

// Zero overwrites the tensor's logical elements (not the padding) with 0.
func (t *Tensor) Zero() {
	n := len(t.shape)
	if n == 0 || len(t.storage) == 0 {
		return
	}
	inner := t.shape[n-1]
	rowStride := inner
	if n >= 2 {
		rowStride = t.strides[n-2]
	}
	size := t.dtype.ElemSize()
	for r := 0; r < t.ElementCount()/inner; r++ {
		start := (t.offset + r*rowStride) * size
		clear(t.storage[start : start+inner*size])
	}
}

// Equal reports deep element-wise equality of two same-shaped f32 tensors,
// ignoring padding and storage identity. Used by tests that check a view
// has identical element-wise contents to its source.
func Equal(a, b *Tensor) bool {
	if a.dtype != b.dtype || len(a.shape) != len(b.shape) {
		return false
	}
	for i := range a.shape {
		if a.shape[i] != b.shape[i] {
			return false
		}
	}
	if a.dtype != F32 {
		return string(a.storage) == string(b.storage)
	}
	da, db := a.Float32(), b.Float32()
	n := len(a.shape)
	if n == 0 {
		return true
	}
	inner := a.shape[n-1]
	rowStride := inner
	if n >= 2 {
		rowStride = a.strides[n-2]
	}
	for r := 0; r < a.ElementCount()/inner; r++ {
		for j := r * rowStride; j < r*rowStride+inner; j++ {
			if da[j] != db[j] {
				return false
			}
		}
	}
	return true
}
