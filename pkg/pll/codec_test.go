package pll

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/utils/ptr"

	"github.com/k8snetworkplumbingwg/soc-clocktree/pkg/regmap"
)

const extRate = 24000000

// x1830Encoding is the OD table of the X1830 CGU, written out entry by entry.
var x1830Encoding = Encoding{
	0x0, 0x1, -1, 0x2, -1, -1, -1, 0x3,
	-1, -1, -1, -1, -1, -1, -1, 0x4,
	-1, -1, -1, -1, -1, -1, -1, -1,
	-1, -1, -1, -1, -1, -1, -1, 0x5,
	-1, -1, -1, -1, -1, -1, -1, -1,
	-1, -1, -1, -1, -1, -1, -1, -1,
	-1, -1, -1, -1, -1, -1, -1, -1,
	-1, -1, -1, -1, -1, -1, -1, 0x6,
}

func apllParams() *Params {
	return &Params{
		Reg:            0x10,
		M:              regmap.Field{Shift: 20, Width: 9},
		N:              regmap.Field{Shift: 14, Width: 6},
		OD:             regmap.Field{Shift: 11, Width: 3},
		MOffset:        1,
		NOffset:        1,
		RateMultiplier: 2,
		ODEncoding:     &x1830Encoding,
		BypassReg:      0x0c,
		BypassBit:      ptr.To[uint8](30),
		EnableBit:      ptr.To[uint8](0),
		StableBit:      ptr.To[uint8](3),
	}
}

func TestDecode(t *testing.T) {
	p := apllParams()
	testCases := []struct {
		name    string
		setting Setting
		want    uint64
	}{
		{"1.2GHz", Setting{M: 49, N: 0, OD: 1}, 1200000000},
		{"od 1", Setting{M: 24, N: 0, OD: 0}, 1200000000},
		{"n 2", Setting{M: 99, N: 1, OD: 0}, 2400000000},
		{"od 8", Setting{M: 99, N: 0, OD: 7}, 600000000},
		{"truncated", Setting{M: 0, N: 6, OD: 0}, 6857142},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Decode(extRate, Registers{Control: tc.setting.Apply(0, p)}, p)
			assert.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDecodeBypass(t *testing.T) {
	p := apllParams()
	regs := Registers{
		Control: Setting{M: 49, N: 0, OD: 1}.Apply(0, p),
		Bypass:  regmap.Bit(30),
	}
	got, err := Decode(extRate, regs, p)
	assert.NoError(t, err)
	assert.Equal(t, uint64(extRate), got)

	// a reserved OD code is never looked at while bypassed
	regs.Control = p.OD.Set(regs.Control, 2)
	got, err = Decode(extRate, regs, p)
	assert.NoError(t, err)
	assert.Equal(t, uint64(extRate), got)

	// other PLLs' bypass bits do not matter
	regs.Bypass = regmap.Bit(28)
	_, err = Decode(extRate, regs, p)
	assert.ErrorIs(t, err, ErrInvalidEncoding)
}

func TestDecodeDeterministic(t *testing.T) {
	p := apllParams()
	for _, raw := range []uint32{0, 0x0310_0800, 0x1ff0_3800, 0xdead_b800} {
		a, errA := Decode(extRate, Registers{Control: raw}, p)
		b, errB := Decode(extRate, Registers{Control: raw}, p)
		assert.Equal(t, a, b)
		assert.Equal(t, errA, errB)
	}
}

// Every raw OD code is enumerated; only the seven listed ones decode.
func TestODEncodingTable(t *testing.T) {
	valid := map[uint32]uint64{
		0:  1 << 0,
		1:  1 << 1,
		3:  1 << 2,
		7:  1 << 3,
		15: 1 << 4,
		31: 1 << 5,
		63: 1 << 6,
	}
	p := apllParams()
	// widen the OD field so that all 64 codes are reachable
	p.OD = regmap.Field{Shift: 0, Width: 6}

	for raw := uint32(0); raw < EncodingSize; raw++ {
		div, err := p.Divider(raw)
		control := Setting{M: 0, N: 0, OD: raw}.Apply(0, p)
		rate, decodeErr := Decode(1<<10, Registers{Control: control}, p)

		if want, ok := valid[raw]; ok {
			assert.NoError(t, err, "raw %d", raw)
			assert.Equal(t, want, div, "raw %d", raw)
			assert.NoError(t, decodeErr, "raw %d", raw)
			assert.Equal(t, uint64(1<<10)*2/want, rate, "raw %d", raw)
			continue
		}
		assert.ErrorIs(t, err, ErrInvalidEncoding, "raw %d", raw)
		assert.ErrorIs(t, decodeErr, ErrInvalidEncoding, "raw %d", raw)
	}

	_, err := p.Divider(EncodingSize)
	assert.ErrorIs(t, err, ErrInvalidEncoding)
}

func TestDecodeZeroN(t *testing.T) {
	p := apllParams()
	p.NOffset = 0
	_, err := Decode(extRate, Registers{Control: Setting{M: 10, N: 0, OD: 0}.Apply(0, p)}, p)
	assert.ErrorIs(t, err, ErrInvalidEncoding)
}

func TestDirectEncoding(t *testing.T) {
	direct := Encoding{}
	for i := range direct {
		direct[i] = -1
	}
	direct[0] = 1
	direct[1] = 3
	direct[2] = 0
	p := apllParams()
	p.ODEncoding = &direct
	p.ODKind = ODDirect

	got, err := Decode(extRate, Registers{Control: Setting{M: 2, N: 0, OD: 1}.Apply(0, p)}, p)
	assert.NoError(t, err)
	assert.Equal(t, uint64(extRate*3*2/3), got)

	_, err = p.Divider(2)
	assert.ErrorIs(t, err, ErrInvalidEncoding)
	assert.Equal(t, "direct", ODDirect.String())
}

func TestEncode(t *testing.T) {
	p := apllParams()
	testCases := []struct {
		name   string
		target uint64
		want   uint64
	}{
		{"exact", 1200000000, 1200000000},
		{"exact low", 600000000, 600000000},
		{"between steps", 1000000001, 1000000000},
		{"odd", 1234567890, 1234285714},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s, got, err := Encode(extRate, tc.target, p)
			require.NoError(t, err)
			assert.LessOrEqual(t, got, tc.target)
			assert.Equal(t, tc.want, got, "setting %v", s)

			decoded, err := Decode(extRate, Registers{Control: s.Apply(0, p)}, p)
			assert.NoError(t, err)
			assert.Equal(t, got, decoded)
		})
	}
}

func TestEncodeUnreachable(t *testing.T) {
	p := apllParams()
	// the slowest setting is 24MHz*1*2/(64*8)
	_, _, err := Encode(extRate, 1000, p)
	assert.True(t, errors.Is(err, ErrInvalidEncoding))

	_, _, err = Encode(0, 1000, p)
	assert.ErrorIs(t, err, ErrInvalidEncoding)
}

func TestMulDiv(t *testing.T) {
	q, ok := mulDiv(1<<40, 1<<40, 1<<30)
	assert.True(t, ok)
	assert.Equal(t, uint64(1)<<50, q)

	_, ok = mulDiv(1<<63, 1<<63, 2)
	assert.False(t, ok)

	_, ok = mulDiv(1, 1, 0)
	assert.False(t, ok)
}

func TestBuiltinEncodings(t *testing.T) {
	e, err := LookupEncoding("x1830")
	require.NoError(t, err)
	assert.Equal(t, x1830Encoding, *e)

	_, err = LookupEncoding("x2000")
	assert.Error(t, err)

	e, err = NewEncoding([]int8{0, 1, -1, 2})
	require.NoError(t, err)
	assert.Equal(t, x1830Encoding[:4], e[:4])
	assert.Equal(t, int8(-1), e[7])

	_, err = NewEncoding(make([]int8, EncodingSize+1))
	assert.Error(t, err)
}
