// Package regmap provides access to the 32-bit control registers of a clock generation unit.
//
// All registers are addressed by their byte offset inside one register region. Fields are
// packed and unpacked in software with shift and mask; the port itself only moves whole words.
package regmap

import "fmt"

// Port reads and writes 32-bit registers at byte offsets within one address region.
type Port interface {
	Read32(offset uint32) uint32
	Write32(offset, value uint32)
}

// Sized is implemented by ports that cover a bounded region. Offsets at or beyond Size
// are rejected when a clock table is bound to the port.
type Sized interface {
	Size() uint32
}

// Field describes a bit field inside a register word.
type Field struct {
	Shift uint8 `json:"shift"`
	Width uint8 `json:"width"`
}

// Valid reports whether the field has a width and fits in 32 bits.
func (f Field) Valid() bool {
	return f.Width > 0 && int(f.Shift)+int(f.Width) <= 32
}

// Mask returns the in-place mask of the field.
func (f Field) Mask() uint32 {
	return (uint32(1)<<f.Width - 1) << f.Shift
}

// Max returns the largest raw value the field can hold.
func (f Field) Max() uint32 {
	return f.Mask() >> f.Shift
}

// Get extracts the field from a register word.
func (f Field) Get(word uint32) uint32 {
	return (word & f.Mask()) >> f.Shift
}

// Set returns word with the field replaced by value. Bits of value beyond the
// field width are dropped.
func (f Field) Set(word, value uint32) uint32 {
	return word&^f.Mask() | (value<<f.Shift)&f.Mask()
}

func (f Field) String() string {
	if f.Width == 1 {
		return fmt.Sprintf("[%d]", f.Shift)
	}
	return fmt.Sprintf("[%d:%d]", int(f.Shift)+int(f.Width)-1, f.Shift)
}

// Bit returns the mask of a single bit.
func Bit(n uint8) uint32 {
	return uint32(1) << n
}

// Update performs a read-modify-write of one register and returns the written value.
// Callers serialize access; the port does not.
func Update(p Port, offset uint32, modify func(uint32) uint32) uint32 {
	v := modify(p.Read32(offset))
	p.Write32(offset, v)
	return v
}

// SetBit sets or clears bit n of the register at offset.
func SetBit(p Port, offset uint32, n uint8, on bool) uint32 {
	return Update(p, offset, func(v uint32) uint32 {
		if on {
			return v | Bit(n)
		}
		return v &^ Bit(n)
	})
}
