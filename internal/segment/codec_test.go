package segment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	vectors := []float32{1, 2, 3, 4, 5, 6}
	payloads := []byte("fake-arrow-ipc-stream")
	bitmap := []byte{0xde, 0xad, 0xbe, 0xef}

	opts := WriteOptions{Compression: CompressionNone, Checksum: ChecksumCRC32}
	blob, err := Encode(3, 2, vectors, payloads, bitmap, opts)
	require.NoError(t, err)

	data, err := Decode(blob)
	require.NoError(t, err)
	assert.Equal(t, vectors, data.Vectors)
	assert.Equal(t, payloads, data.Payloads)
	assert.Equal(t, bitmap, data.Bitmap)
	assert.Equal(t, uint64(2), data.Header.RecordCount)
	assert.Equal(t, uint32(3), data.Header.Dimension)
}

func TestEncodeDecode_ZstdCompression(t *testing.T) {
	vectors := make([]float32, 128)
	for i := range vectors {
		vectors[i] = float32(i) * 0.5
	}
	opts := WriteOptions{Compression: CompressionZstd, CompressionLevel: 3, Checksum: ChecksumXXHash64}
	blob, err := Encode(16, 8, vectors, []byte("p"), []byte("b"), opts)
	require.NoError(t, err)

	data, err := Decode(blob)
	require.NoError(t, err)
	assert.Equal(t, vectors, data.Vectors)
}

func TestEncodeDecode_LZ4AndSnappy(t *testing.T) {
	vectors := []float32{1.5, -2.5, 3.5, 4.5}
	for _, c := range []Compression{CompressionLZ4, CompressionSnappy} {
		opts := WriteOptions{Compression: c, Checksum: ChecksumCRC32}
		blob, err := Encode(2, 2, vectors, nil, nil, opts)
		require.NoError(t, err)

		data, err := Decode(blob)
		require.NoError(t, err)
		assert.Equal(t, vectors, data.Vectors)
	}
}

func TestDecode_CorruptHeaderRejected(t *testing.T) {
	vectors := []float32{1, 2}
	blob, err := Encode(2, 1, vectors, nil, nil, WriteOptions{Checksum: ChecksumCRC32})
	require.NoError(t, err)

	corrupt := append([]byte(nil), blob...)
	corrupt[0] = 'X'
	_, err = Decode(corrupt)
	require.Error(t, err)
}

func TestDecode_CorruptBodyRejected(t *testing.T) {
	vectors := []float32{1, 2, 3, 4}
	blob, err := Encode(2, 2, vectors, []byte("payload"), nil, WriteOptions{Checksum: ChecksumCRC32})
	require.NoError(t, err)

	corrupt := append([]byte(nil), blob...)
	corrupt[headerSize] ^= 0xff
	_, err = Decode(corrupt)
	require.Error(t, err)
}

func TestDecode_TooSmallBlob(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3})
	require.Error(t, err)
}
