package codec

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func hexBytes(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func TestNulTerminatedStringRoundTrip(t *testing.T) {
	fields := []Field{
		Named("", Magic([]byte{0x01, 0x15})),
		Named("libraryVersion", NulTerminatedString()),
		Named("libraryType", Uint(Const(1))),
	}

	data := hexBytes(t, "01155a2d5761766520342e30350001")
	st, pos, err := Decode(fields, data)
	require.NoError(t, err)
	require.Equal(t, len(data), pos)
	require.Equal(t, "Z-Wave 4.05", st["libraryVersion"])
	require.Equal(t, uint64(1), st["libraryType"])

	out, err := Encode(fields, st)
	require.NoError(t, err)
	require.Equal(t, data, out)
}

func TestUintBitsAndDynamicLengthUint(t *testing.T) {
	fields := []Field{
		Named("sensorType", Uint(Const(1))),
		Named("size", UintBits(0, 0x07, false)),
		Named("scale", UintBits(3, 0x03, true)),
		Named("precision", UintBits(5, 0x07, true)),
		Named("sensorValue", Uint(Ref("size"))),
	}

	data := hexBytes(t, "014208ca")
	st, pos, err := Decode(fields, data)
	require.NoError(t, err)
	require.Equal(t, len(data), pos)
	require.EqualValues(t, 2, st["size"])
	require.EqualValues(t, 0, st["scale"])
	require.EqualValues(t, 2, st["precision"])
	require.Equal(t, uint64(2250), st["sensorValue"])

	out, err := Encode(fields, st)
	require.NoError(t, err)
	require.Equal(t, data, out)
}

func TestArrayNestedAndDynamicLength(t *testing.T) {
	u8 := Uint(Const(1))
	fields := []Field{
		Computed("length", Len(Ref("data")), u8),
		Named("data", Array(Ref("length"), u8)),
		Named("foo", u8),
		Named("data2", Array(Const(3), u8)),
		Named("x", Array(Const(3), Array(Const(3), u8))),
	}

	data := hexBytes(t, "050b0c0d0e0f64202122010203040506070809")
	st, pos, err := Decode(fields, data)
	require.NoError(t, err)
	require.Equal(t, len(data), pos)

	toInts := func(v any) []int {
		var out []int
		for _, x := range AsSlice(v) {
			out = append(out, AsInt(x))
		}
		return out
	}
	require.Equal(t, []int{11, 12, 13, 14, 15}, toInts(st["data"]))
	require.EqualValues(t, 100, st["foo"])
	require.Equal(t, []int{32, 33, 34}, toInts(st["data2"]))

	out, err := Encode(fields, st)
	require.NoError(t, err)
	require.Equal(t, data, out)
}

func TestOptionalPackedFlags(t *testing.T) {
	u8 := Uint(Const(1))
	u16 := Uint(Const(2))
	fields := []Field{
		Computed("b1", Present("v1"), Boolean(0x01, false)),
		Computed("b2", Present("v2"), Boolean(0x02, true)),
		Computed("b3", Present("v3"), Boolean(0x04, true)),
		Computed("b4", Present("v4"), Boolean(0x08, true)),
		Named("v1", Optional(Ref("b1"), u8)),
		Named("v2", Optional(Ref("b2"), u8)),
		Named("v3", Optional(Ref("b3"), u16)),
		Named("v4", Optional(Ref("b4"), u16)),
	}

	data := hexBytes(t, "05123456")
	st, pos, err := Decode(fields, data)
	require.NoError(t, err)
	require.Equal(t, len(data), pos)
	require.Equal(t, uint64(0x12), st["v1"])
	require.Nil(t, st["v2"])
	require.Equal(t, uint64(0x3456), st["v3"])
	require.Nil(t, st["v4"])

	out, err := Encode(fields, st)
	require.NoError(t, err)
	require.Equal(t, data, out)
}
