package embedding

// Vector is an immutable embedding. The backing array is never handed out,
// so a cached Vector can be shared between workers safely.
type Vector struct {
	data []float32
}

// NewVector copies values into a new Vector.
func NewVector(values []float32) Vector {
	data := make([]float32, len(values))
	copy(data, values)
	return Vector{data: data}
}

// Len returns the dimension of the vector.
func (v Vector) Len() int { return len(v.data) }

// IsZero reports whether the vector holds no values.
func (v Vector) IsZero() bool { return len(v.data) == 0 }

// At returns the i-th component.
func (v Vector) At(i int) float32 { return v.data[i] }

// Slice returns a fresh copy of the components.
func (v Vector) Slice() []float32 {
	out := make([]float32, len(v.data))
	copy(out, v.data)
	return out
}
