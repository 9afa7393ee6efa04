package chunk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEntries() []Entry {
	return []Entry{
		{Serial: 100, TypeTag: 1, Data: []byte("hello")},
		{Serial: 101, TypeTag: 1, Data: []byte("world")},
		{Serial: 102, TypeTag: 2, Data: []byte("!")},
	}
}

func TestEncodeDecode_RoundTrip_AllCodecs(t *testing.T) {
	for _, comp := range []CompressionKind{CompressionNoneMulti, CompressionLZ4, CompressionZSTD} {
		for _, crc := range []CRCKind{CRCCCITT, CRCXXH64} {
			data, err := Encode(sampleEntries(), crc, comp)
			require.NoError(t, err)

			entries, consumed, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, len(data), consumed)
			assert.Equal(t, sampleEntries(), entries)
		}
	}
}

func TestEncode_RejectsNoneCompression(t *testing.T) {
	_, err := Encode(sampleEntries(), CRCXXH64, CompressionNone)
	assert.Error(t, err)
}

func TestEncode_RejectsNonIncreasingSerials(t *testing.T) {
	bad := []Entry{
		{Serial: 5, Data: []byte("a")},
		{Serial: 5, Data: []byte("b")},
	}
	_, err := Encode(bad, CRCXXH64, CompressionNoneMulti)
	assert.Error(t, err)
}

func TestDecode_DetectsBitFlipViaCRC(t *testing.T) {
	data, err := Encode(sampleEntries(), CRCXXH64, CompressionNoneMulti)
	require.NoError(t, err)

	corrupted := append([]byte(nil), data...)
	corrupted[len(corrupted)-1] ^= 0x01 // flip a bit inside the trailing CRC

	_, _, err = Decode(corrupted)
	assert.Error(t, err)
}

func TestDecode_DetectsPayloadBitFlip(t *testing.T) {
	data, err := Encode(sampleEntries(), CRCXXH64, CompressionNoneMulti)
	require.NoError(t, err)

	mid := len(data) / 2
	corrupted := append([]byte(nil), data...)
	corrupted[mid] ^= 0x01

	_, _, err = Decode(corrupted)
	assert.Error(t, err)
}
