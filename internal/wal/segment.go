package wal

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// segmentFile is one on-disk WAL file, named by the first LSN it
// ever held ("<lsn>.log"). It is written
// append-only and, once rotated away from current, is read-only.
type segmentFile struct {
	path         string
	file         *os.File
	size         int64
	createdAt    time.Time
	firstLSNHint uint64
	hasRecords   bool
	minLSN       uint64
	maxLSN       uint64
}

func segmentFileName(firstLSN uint64) string {
	return fmt.Sprintf("%020d.log", firstLSN)
}

func parseFirstLSN(name string) (uint64, error) {
	base := strings.TrimSuffix(name, ".log")
	return strconv.ParseUint(base, 10, 64)
}

// createSegmentFile starts a brand new, empty segment file.
func createSegmentFile(dir string, firstLSN uint64) (*segmentFile, error) {
	path := filepath.Join(dir, segmentFileName(firstLSN))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	return &segmentFile{path: path, file: f, createdAt: time.Now(), firstLSNHint: firstLSN}, nil
}

// openSegmentFile reopens an existing segment file for append,
// scanning its contents to recover the LSN range it covers and
// truncating at the first record whose length prefix or crc32 fails.
func openSegmentFile(path string) (*segmentFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}

	firstLSNHint, _ := parseFirstLSN(filepath.Base(path))
	sf := &segmentFile{path: path, file: f, createdAt: time.Now(), firstLSNHint: firstLSNHint}

	scan, err := os.Open(path)
	if err != nil {
		f.Close()
		return nil, err
	}
	r := bufio.NewReader(scan)

	var offset int64
	for {
		rec, n, err := decodeRecord(r)
		if err != nil {
			if err == io.EOF {
				break
			}
			// Corrupt or partial trailing record: drop everything
			// from this offset on so the segment only ever exposes
			// complete, checksum-valid records.
			break
		}
		if !sf.hasRecords {
			sf.minLSN = rec.LSN
			sf.hasRecords = true
		}
		sf.maxLSN = rec.LSN
		offset += int64(n)
	}
	scan.Close()

	if info, err := f.Stat(); err == nil && info.Size() != offset {
		if err := f.Truncate(offset); err != nil {
			f.Close()
			return nil, err
		}
		sf.createdAt = info.ModTime()
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, err
	}
	sf.size = offset
	return sf, nil
}

func (s *segmentFile) write(buf []byte) error {
	n, err := s.file.Write(buf)
	s.size += int64(n)
	return err
}

func (s *segmentFile) recordAppended(lsn uint64) {
	if !s.hasRecords {
		s.minLSN = lsn
		s.hasRecords = true
	}
	s.maxLSN = lsn
}

func (s *segmentFile) Sync() error  { return s.file.Sync() }
func (s *segmentFile) Close() error { return s.file.Close() }

// Contains reports whether this segment's LSN range covers lsn.
func (s *segmentFile) Contains(lsn uint64) bool {
	return s.hasRecords && lsn >= s.minLSN && lsn <= s.maxLSN
}

// replay streams every record at or after fromLSN to handler, using
// an independent read-only file handle so it never disturbs the
// segment's live append offset. It stops silently (no error) at the
// first corrupt record or clean end of file.
func (s *segmentFile) replay(fromLSN uint64, handler func(*Record) error) error {
	f, err := os.Open(s.path)
	if err != nil {
		return asStorageErr(fmt.Sprintf("opening wal segment %q for replay", s.path), err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		rec, _, err := decodeRecord(r)
		if err != nil {
			return nil
		}
		if rec.LSN < fromLSN {
			continue
		}
		if err := handler(rec); err != nil {
			return err
		}
	}
}
