package frame

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChecksumRoundTrip(t *testing.T) {
	for n := 0; n <= 255; n++ {
		payload := make([]byte, n)
		for i := range payload {
			payload[i] = byte(i*7 + 1)
		}
		encoded, err := Encode(payload)
		require.NoError(t, err)

		require.Equal(t, SOF, encoded[0])
		length := DecodedLength(encoded[1])
		require.Equal(t, n+1, length)

		body := encoded[2 : len(encoded)-1]
		require.Equal(t, payload, body)

		checksum := encoded[len(encoded)-1]
		require.Equal(t, Checksum(payload), checksum)
	}
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	_, err := Encode(make([]byte, 256))
	require.Error(t, err)
}

func TestDecodedLengthZeroMeans256(t *testing.T) {
	require.Equal(t, 256, DecodedLength(0))
	require.Equal(t, 1, DecodedLength(1))
	require.Equal(t, 255, DecodedLength(255))
}
