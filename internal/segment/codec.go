package segment

import (
	"bytes"
	"encoding/binary"
	"math"

	"storage-engine/internal/common"
)

// WriteOptions configures how Encode compresses and checksums a segment.
type WriteOptions struct {
	Compression      Compression
	CompressionLevel uint8
	Checksum         ChecksumType
}

// Encode serializes a Data payload into the self-describing binary
// segment format: header, body (vectors/payloads/bitmap blocks),
// footer.
func Encode(dim uint32, recordCount uint64, vectors []float32, payloads, bitmap []byte, opts WriteOptions) ([]byte, error) {
	rawVectors := vectorsToBytes(vectors)
	compressedVectors, err := compress(opts.Compression, opts.CompressionLevel, rawVectors)
	if err != nil {
		return nil, err
	}

	header := Header{
		Flags:             0,
		Dimension:         dim,
		RecordCount:       recordCount,
		Compression:       opts.Compression,
		CompressionLevel:  opts.CompressionLevel,
		Checksum:          opts.Checksum,
	}
	headerBytes := header.encode()

	var body bytes.Buffer
	vectorsOffset := uint64(0)
	body.Write(compressedVectors)
	payloadsOffset := uint64(body.Len())
	body.Write(payloads)
	bitmapOffset := uint64(body.Len())
	body.Write(bitmap)

	bodyBytes := body.Bytes()
	bodyChecksum := checksum(opts.Checksum, bodyBytes)

	ft := footer{
		VectorsOffset:  vectorsOffset,
		VectorsLen:     uint64(len(compressedVectors)),
		PayloadsOffset: payloadsOffset,
		PayloadsLen:    uint64(len(payloads)),
		BitmapOffset:   bitmapOffset,
		BitmapLen:      uint64(len(bitmap)),
		BodyChecksum:   bodyChecksum,
	}
	footerBytes := ft.encode()

	out := make([]byte, 0, len(headerBytes)+len(bodyBytes)+len(footerBytes))
	out = append(out, headerBytes...)
	out = append(out, bodyBytes...)
	out = append(out, footerBytes...)
	return out, nil
}

// Decode parses and validates a segment blob. header_crc32 is
// checked first, then
// body checksum while "streaming" (here: over the full in-memory
// body slice, since segments are bounded by record_count * dimension
// and fit comfortably in memory for the brute-force index this engine
// ships). No record is returned if either check fails.
func Decode(blob []byte) (*Data, error) {
	if len(blob) < headerSize+footerSize {
		return nil, common.Storage("corrupt header: segment too small")
	}
	header, err := decodeHeader(blob[:headerSize])
	if err != nil {
		return nil, err
	}

	footerBytes := blob[len(blob)-footerSize:]
	ft, err := decodeFooter(footerBytes)
	if err != nil {
		return nil, common.Storage("corrupt body: %v", err)
	}

	body := blob[headerSize : len(blob)-footerSize]
	if !verifyChecksum(header.Checksum, body, ft.BodyChecksum) {
		return nil, common.Storage("corrupt body")
	}

	rawVectorsLen := int(header.RecordCount) * int(header.Dimension) * 4
	compressedVectors := sliceBlock(body, ft.VectorsOffset, ft.VectorsLen)
	rawVectors, err := decompress(header.Compression, compressedVectors, rawVectorsLen)
	if err != nil {
		return nil, err
	}
	vectors, err := bytesToVectors(rawVectors, int(header.RecordCount)*int(header.Dimension))
	if err != nil {
		return nil, err
	}

	return &Data{
		Header:   header,
		Vectors:  vectors,
		Payloads: append([]byte(nil), sliceBlock(body, ft.PayloadsOffset, ft.PayloadsLen)...),
		Bitmap:   append([]byte(nil), sliceBlock(body, ft.BitmapOffset, ft.BitmapLen)...),
	}, nil
}

func sliceBlock(body []byte, offset, length uint64) []byte {
	if offset+length > uint64(len(body)) {
		return nil
	}
	return body[offset : offset+length]
}

func vectorsToBytes(vectors []float32) []byte {
	buf := make([]byte, len(vectors)*4)
	for i, v := range vectors {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func bytesToVectors(raw []byte, count int) ([]float32, error) {
	if len(raw) != count*4 {
		return nil, common.Storage("corrupt body: vectors block length %d does not match expected %d", len(raw), count*4)
	}
	out := make([]float32, count)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out, nil
}
