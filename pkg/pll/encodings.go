package pll

import "fmt"

// X1830ODEncoding is the OD table of the Ingenic X1830 CGU. Raw codes 0, 1, 3, 7,
// 15, 31 and 63 select dividers 1 through 64; every other code is reserved.
var X1830ODEncoding = Encoding{
	0x0, 0x1, -1, 0x2, -1, -1, -1, 0x3,
	-1, -1, -1, -1, -1, -1, -1, 0x4,
	-1, -1, -1, -1, -1, -1, -1, -1,
	-1, -1, -1, -1, -1, -1, -1, 0x5,
	-1, -1, -1, -1, -1, -1, -1, -1,
	-1, -1, -1, -1, -1, -1, -1, -1,
	-1, -1, -1, -1, -1, -1, -1, -1,
	-1, -1, -1, -1, -1, -1, -1, 0x6,
}

var encodings = map[string]*Encoding{
	"x1830": &X1830ODEncoding,
}

// LookupEncoding returns a built-in OD table by name.
func LookupEncoding(name string) (*Encoding, error) {
	e, ok := encodings[name]
	if !ok {
		return nil, fmt.Errorf("unknown od encoding %q", name)
	}
	return e, nil
}

// NewEncoding builds a table from a list of codes. Missing trailing entries are reserved.
func NewEncoding(codes []int8) (*Encoding, error) {
	if len(codes) > EncodingSize {
		return nil, fmt.Errorf("od encoding has %d entries, at most %d allowed", len(codes), EncodingSize)
	}
	var e Encoding
	for i := range e {
		e[i] = -1
	}
	copy(e[:], codes)
	return &e, nil
}
