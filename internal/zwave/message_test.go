package zwave

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xx25/zwaved/internal/codec"
)

func TestGetVersionResponseRoundTrip(t *testing.T) {
	data, err := hex.DecodeString("01155a2d5761766520342e30350001")
	require.NoError(t, err)

	def, st, pos, err := DecodeInbound(data)
	require.NoError(t, err)
	require.Equal(t, len(data), pos)
	require.Same(t, GetVersionResponse, def)
	require.Equal(t, "Z-Wave 4.05", st["libraryVersion"])
	require.Equal(t, uint64(LibraryStaticController), st["libraryType"])

	out, err := def.Encode(st)
	require.NoError(t, err)
	require.Equal(t, data, out)
}

func TestSerialAPIGetCapabilitiesResponseRoundTrip(t *testing.T) {
	data, err := hex.DecodeString(
		"0107aabb12345678abcd0002082080000200000000000000000000000000000000000000000000000000")
	require.NoError(t, err)

	def, st, pos, err := DecodeInbound(data)
	require.NoError(t, err)
	require.Equal(t, len(data), pos)
	require.Same(t, SerialAPIGetCapabilitiesResponse, def)
	require.Equal(t, uint64(0xAA), st["serialApiVersion"])
	require.Equal(t, uint64(0xBB), st["serialApiRevision"])
	require.Equal(t, uint64(0x1234), st["manufacturerId"])
	require.Equal(t, uint64(0x5678), st["manufacturerProduct"])
	require.Equal(t, uint64(0xABCD), st["manufacturerProductId"])
	require.Equal(t, codec.AsSet(st["supportedFunctions"]), map[int]struct{}{
		10: {}, 20: {}, 30: {}, 40: {}, 50: {},
	})

	out, err := def.Encode(st)
	require.NoError(t, err)
	require.Equal(t, data, out)
}

func TestSerialAPIGetInitDataResponseRoundTrip(t *testing.T) {
	data, err := hex.DecodeString(
		"010205001dadff3f00000000000000000000000000000000000000000000000000000500")
	require.NoError(t, err)

	def, st, pos, err := DecodeInbound(data)
	require.NoError(t, err)
	require.Equal(t, len(data), pos)
	require.Same(t, SerialAPIGetInitDataResponse, def)
	require.Equal(t, uint64(5), st["serialApiApplicationVersion"])
	require.Equal(t, false, st["isSlave"])
	require.Equal(t, false, st["timerSupport"])
	require.Equal(t, false, st["isSecondary"])
	require.Equal(t, false, st["isSIS"])
	want := map[int]struct{}{}
	for _, n := range []int{1, 3, 4, 6, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22} {
		want[n] = struct{}{}
	}
	require.Equal(t, want, codec.AsSet(st["nodes"]))
	require.Equal(t, uint64(5), st["chipType"])
	require.Equal(t, uint64(0), st["chipVersion"])

	out, err := def.Encode(st)
	require.NoError(t, err)
	require.Equal(t, data, out)
}

func TestApplicationUpdateTolerantOfShortPayload(t *testing.T) {
	// status, nodeId, dataLength=0: no basic/generic/specific, no command
	// classes — the minimal legal ApplicationUpdateRequest.
	data := []byte{byte(Request), byte(ClassApplicationUpdate), 0x84, 0x07, 0x00}

	def, st, pos, err := DecodeInbound(data)
	require.NoError(t, err)
	require.Equal(t, len(data), pos)
	require.Same(t, ApplicationUpdateRequest, def)
	require.Nil(t, st["basic"])
	require.Nil(t, st["generic"])
	require.Nil(t, st["specific"])
	require.Empty(t, codec.AsSlice(st["commandClasses"]))
}
