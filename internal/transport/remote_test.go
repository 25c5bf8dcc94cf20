package transport

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEscapeStreamEscapesReservedBytes(t *testing.T) {
	in := []byte{0x01, escByte, 0x02, breakWire, 0x03}
	got := escapeStream(in)
	require.Equal(t, []byte{0x01, escByte, 0x00, 0x02, escByte, 0x01, 0x03}, got)
}

func TestUnescapeStreamRoundTripsWithEscapeStream(t *testing.T) {
	in := []byte{0x01, escByte, 0x02, breakWire, 0x03, 0x00, 0xFF}
	decoded, tail := unescapeStream(escapeStream(in))
	require.Empty(t, tail)
	require.Equal(t, in, decoded)
}

func TestUnescapeStreamDropsBareBreakRequest(t *testing.T) {
	decoded, tail := unescapeStream([]byte{0x01, breakWire, 0x02})
	require.Empty(t, tail)
	require.Equal(t, []byte{0x01, 0x02}, decoded)
}

func TestUnescapeStreamHoldsBackTrailingEscapeByte(t *testing.T) {
	decoded, tail := unescapeStream([]byte{0x01, escByte})
	require.Equal(t, []byte{0x01}, decoded)
	require.Equal(t, []byte{escByte}, tail)
}

func TestUnescapeStreamAcceptsSplitEscapeSequence(t *testing.T) {
	decoded1, tail := unescapeStream([]byte{0x05, escByte})
	require.Equal(t, []byte{0x05}, decoded1)
	require.Equal(t, []byte{escByte}, tail)

	decoded2, tail2 := unescapeStream(append(tail, 0x00))
	require.Empty(t, tail2)
	require.Equal(t, []byte{escByte}, decoded2)
}
