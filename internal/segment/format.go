package segment

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/zeebo/xxh3"

	"storage-engine/internal/common"
)

// Compression selects the whole-block codec applied to the vectors
// block before it is written to disk.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionZstd
	CompressionLZ4
	CompressionSnappy
)

// ChecksumType selects the algorithm guarding the body block.
type ChecksumType uint8

const (
	ChecksumNone ChecksumType = iota
	ChecksumCRC32
	ChecksumXXHash64
)

const (
	magic         = "AKDS"
	formatVersion = uint16(1)
	headerSize    = 40
	footerSize    = 60
)

// Header is the fixed-size prefix of a segment blob.
type Header struct {
	Version          uint16
	Flags            uint16
	Dimension        uint32
	RecordCount      uint64
	Compression      Compression
	CompressionLevel uint8
	Checksum         ChecksumType
}

func (h Header) encode() []byte {
	buf := make([]byte, headerSize)
	copy(buf[0:4], magic)
	binary.LittleEndian.PutUint16(buf[4:6], formatVersion)
	binary.LittleEndian.PutUint16(buf[6:8], h.Flags)
	binary.LittleEndian.PutUint32(buf[8:12], h.Dimension)
	binary.LittleEndian.PutUint64(buf[12:20], h.RecordCount)
	buf[20] = byte(h.Compression)
	buf[21] = h.CompressionLevel
	buf[22] = byte(h.Checksum)
	// bytes 23..36 reserved, left zero
	crc := crc32.ChecksumIEEE(buf[0:36])
	binary.LittleEndian.PutUint32(buf[36:40], crc)
	return buf
}

func decodeHeader(buf []byte) (Header, error) {
	var h Header
	if len(buf) != headerSize {
		return h, common.Storage("corrupt header: short read")
	}
	if string(buf[0:4]) != magic {
		return h, common.Storage("corrupt header: bad magic")
	}
	wantCRC := binary.LittleEndian.Uint32(buf[36:40])
	gotCRC := crc32.ChecksumIEEE(buf[0:36])
	if wantCRC != gotCRC {
		return h, common.Storage("corrupt header")
	}
	h.Version = binary.LittleEndian.Uint16(buf[4:6])
	h.Flags = binary.LittleEndian.Uint16(buf[6:8])
	h.Dimension = binary.LittleEndian.Uint32(buf[8:12])
	h.RecordCount = binary.LittleEndian.Uint64(buf[12:20])
	h.Compression = Compression(buf[20])
	h.CompressionLevel = buf[21]
	h.Checksum = ChecksumType(buf[22])
	return h, nil
}

// footer is the fixed-size suffix carrying block offsets/lengths and checksums.
// BodyChecksum holds either a CRC32 (zero-extended) or an xxHash64 value
// depending on the header's checksum_type.
type footer struct {
	VectorsOffset, VectorsLen   uint64
	PayloadsOffset, PayloadsLen uint64
	BitmapOffset, BitmapLen     uint64
	BodyChecksum                uint64
}

func (f footer) encode() []byte {
	buf := make([]byte, footerSize)
	binary.LittleEndian.PutUint64(buf[0:8], f.VectorsOffset)
	binary.LittleEndian.PutUint64(buf[8:16], f.VectorsLen)
	binary.LittleEndian.PutUint64(buf[16:24], f.PayloadsOffset)
	binary.LittleEndian.PutUint64(buf[24:32], f.PayloadsLen)
	binary.LittleEndian.PutUint64(buf[32:40], f.BitmapOffset)
	binary.LittleEndian.PutUint64(buf[40:48], f.BitmapLen)
	binary.LittleEndian.PutUint64(buf[48:56], f.BodyChecksum)
	crc := crc32.ChecksumIEEE(buf[0:56])
	binary.LittleEndian.PutUint32(buf[56:60], crc)
	return buf
}

func decodeFooter(buf []byte) (footer, error) {
	var f footer
	if len(buf) != footerSize {
		return f, common.Storage("corrupt footer: short read")
	}
	wantCRC := binary.LittleEndian.Uint32(buf[56:60])
	gotCRC := crc32.ChecksumIEEE(buf[0:56])
	if wantCRC != gotCRC {
		return f, common.Storage("corrupt footer")
	}
	f.VectorsOffset = binary.LittleEndian.Uint64(buf[0:8])
	f.VectorsLen = binary.LittleEndian.Uint64(buf[8:16])
	f.PayloadsOffset = binary.LittleEndian.Uint64(buf[16:24])
	f.PayloadsLen = binary.LittleEndian.Uint64(buf[24:32])
	f.BitmapOffset = binary.LittleEndian.Uint64(buf[32:40])
	f.BitmapLen = binary.LittleEndian.Uint64(buf[40:48])
	f.BodyChecksum = binary.LittleEndian.Uint64(buf[48:56])
	return f, nil
}

// Data is the fully decoded content of a segment, ready for the
// caller to feed into a vector index.
type Data struct {
	Header      Header
	Vectors     []float32 // record_count * dimension, row-major
	Payloads    []byte    // Arrow IPC stream, see internal/metadata
	Bitmap      []byte    // optional Roaring serialization
}

func compress(kind Compression, level uint8, data []byte) ([]byte, error) {
	switch kind {
	case CompressionNone:
		return data, nil
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstdLevel(level)))
		if err != nil {
			return nil, common.Internal("creating zstd encoder: %v", err)
		}
		defer enc.Close()
		return enc.EncodeAll(data, nil), nil
	case CompressionLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, common.Internal("lz4 compress: %v", err)
		}
		if err := w.Close(); err != nil {
			return nil, common.Internal("lz4 compress close: %v", err)
		}
		return buf.Bytes(), nil
	case CompressionSnappy:
		return snappy.Encode(nil, data), nil
	default:
		return nil, common.Validation("unknown compression kind %d", kind)
	}
}

func decompress(kind Compression, data []byte, rawLen int) ([]byte, error) {
	switch kind {
	case CompressionNone:
		return data, nil
	case CompressionZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, common.Internal("creating zstd decoder: %v", err)
		}
		defer dec.Close()
		out, err := dec.DecodeAll(data, make([]byte, 0, rawLen))
		if err != nil {
			return nil, common.Storage("corrupt body: zstd decode: %v", err)
		}
		return out, nil
	case CompressionLZ4:
		r := lz4.NewReader(bytes.NewReader(data))
		out := make([]byte, rawLen)
		if _, err := io.ReadFull(r, out); err != nil {
			return nil, common.Storage("corrupt body: lz4 decode: %v", err)
		}
		return out, nil
	case CompressionSnappy:
		out, err := snappy.Decode(nil, data)
		if err != nil {
			return nil, common.Storage("corrupt body: snappy decode: %v", err)
		}
		return out, nil
	default:
		return nil, common.Validation("unknown compression kind %d", kind)
	}
}

func zstdLevel(level uint8) zstd.EncoderLevel {
	switch {
	case level == 0:
		return zstd.SpeedDefault
	case level <= 3:
		return zstd.SpeedFastest
	case level <= 9:
		return zstd.SpeedDefault
	case level <= 15:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}

func checksum(kind ChecksumType, data []byte) uint64 {
	switch kind {
	case ChecksumNone:
		return 0
	case ChecksumCRC32:
		return uint64(crc32.ChecksumIEEE(data))
	case ChecksumXXHash64:
		return xxh3.Hash(data)
	default:
		return 0
	}
}

func verifyChecksum(kind ChecksumType, data []byte, want uint64) bool {
	if kind == ChecksumNone {
		return true
	}
	return checksum(kind, data) == want
}
