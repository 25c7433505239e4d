package regmap

import (
	"fmt"

	"golang.org/x/exp/constraints"
)

// Saturate clamps v to [lo, hi].
func Saturate[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Range returns the smallest and largest value the field can hold.
func (f *Field) Range() (lo, hi int64) {
	if f.Signed {
		return -(int64(1) << (f.Width - 1)), (int64(1) << (f.Width - 1)) - 1
	}
	return 0, (int64(1) << f.Width) - 1
}

// Encode clamps v into the field range and returns the raw field bits, not
// yet shifted into register position. Signed fields are stored in two's
// complement. clamped is true when v had to be saturated.
func (f *Field) Encode(v int64) (raw uint32, clamped bool, err error) {
	if !f.Writable() {
		return 0, false, fmt.Errorf("%s: %w", f.FullName(), ErrReadOnly)
	}
	lo, hi := f.Range()
	s := Saturate(v, lo, hi)
	raw = uint32(uint64(s) & ((uint64(1) << f.Width) - 1))
	return raw, s != v, nil
}

// Extract pulls the field value out of a register word, sign-extending
// signed fields.
func (f *Field) Extract(word uint32) int64 {
	bits := int64((uint64(word) >> f.Offset) & ((uint64(1) << f.Width) - 1))
	if f.Signed && bits&(int64(1)<<(f.Width-1)) != 0 {
		bits -= int64(1) << f.Width
	}
	return bits
}
