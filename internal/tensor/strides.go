package tensor

// Strides returns a copy of the tensor's element strides (row-major, with
// the innermost dimension padded to a multiple of 16 elements).
func (t *Tensor) Strides() []int {
	out := make([]int, len(t.strides))
	copy(out, t.strides)
	return out
}
