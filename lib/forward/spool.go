// Copyright 2026 The Helio Authors
// SPDX-License-Identifier: Apache-2.0

package forward

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/zeebo/blake3"

	"github.com/heliohq/helio-go/lib/codec"
	"github.com/heliohq/helio-go/lib/schema/event"
)

// CompressionTag identifies the compression algorithm of a spool
// record payload. Tags are stored on disk (1 byte each); the values
// are format constants and must not change.
type CompressionTag uint8

const (
	// CompressionNone marks a raw payload. Written automatically when
	// compression would not shrink the record.
	CompressionNone CompressionTag = 0

	// CompressionLZ4 marks an lz4 frame. The default: fast to write,
	// decent ratios on event payloads.
	CompressionLZ4 CompressionTag = 1

	// CompressionZstd marks a zstd frame. Better ratios at higher CPU
	// cost; worthwhile for spools kept long-term.
	CompressionZstd CompressionTag = 2
)

// String returns the tag's human-readable name.
func (tag CompressionTag) String() string {
	switch tag {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(tag))
	}
}

// ParseCompressionTag parses a tag from its string name.
func ParseCompressionTag(name string) (CompressionTag, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("unknown compression tag: %q", name)
	}
}

// Spool record layout, in order:
//
//	4 bytes  magic "HSP1"
//	1 byte   compression tag
//	4 bytes  payload length, big-endian
//	32 bytes BLAKE3-256 checksum of the stored payload
//	N bytes  payload (deterministic CBOR of the event, per the tag)
var spoolMagic = [4]byte{'H', 'S', 'P', '1'}

const (
	spoolHeaderSize = 4 + 1 + 4 + 32

	// maxRecordSize bounds a single payload, stored or decompressed.
	// Anything larger is treated as corruption on read and rejected on
	// write.
	maxRecordSize = 16 << 20
)

// ErrSpoolClosed is returned by writes to a closed Spool.
var ErrSpoolClosed = errors.New("forward: spool is closed")

// CorruptRecordError reports a spool record that failed structural
// validation, checksum verification, decompression, or decoding.
// Iteration cannot resync past a corrupt record; the remainder of the
// file is unreadable.
type CorruptRecordError struct {
	// Offset is the byte position of the record's header.
	Offset int64
	// Reason describes what failed.
	Reason string
	// Err is the underlying cause, when there is one.
	Err error
}

func (e *CorruptRecordError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("corrupt spool record at offset %d: %s: %v", e.Offset, e.Reason, e.Err)
	}
	return fmt.Sprintf("corrupt spool record at offset %d: %s", e.Offset, e.Reason)
}

func (e *CorruptRecordError) Unwrap() error { return e.Err }

// SpoolConfig holds configuration for opening a Spool.
type SpoolConfig struct {
	// Path is the spool file, created if absent and appended to
	// otherwise. Required.
	Path string

	// Compression is the algorithm attempted for each record; records
	// that do not shrink are stored raw regardless. The zero value
	// selects lz4.
	Compression CompressionTag
}

// Spool is a Forwarder that appends every event to a local file for
// offline replay and debugging. Safe for concurrent use; each record
// is written with a single write call under a lock.
type Spool struct {
	path        string
	compression CompressionTag

	mu     sync.Mutex
	file   *os.File
	closed bool
}

// OpenSpool opens (or creates) the spool file in append mode.
func OpenSpool(config SpoolConfig) (*Spool, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("forward: spool Path is required")
	}
	compression := config.Compression
	if compression == CompressionNone {
		compression = CompressionLZ4
	}
	if compression != CompressionLZ4 && compression != CompressionZstd {
		return nil, fmt.Errorf("forward: unsupported spool compression %s", compression)
	}

	file, err := os.OpenFile(config.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening spool: %w", err)
	}
	return &Spool{
		path:        config.Path,
		compression: compression,
		file:        file,
	}, nil
}

// Path returns the spool file path.
func (s *Spool) Path() string { return s.path }

// Forward appends ev as one spool record.
func (s *Spool) Forward(_ context.Context, ev event.Event) error {
	payload, err := codec.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding spool record: %w", err)
	}
	if len(payload) > maxRecordSize {
		return fmt.Errorf("forward: spool record of %d bytes exceeds the %d byte limit", len(payload), maxRecordSize)
	}

	stored, tag := compressRecord(payload, s.compression)
	checksum := blake3.Sum256(stored)

	record := make([]byte, 0, spoolHeaderSize+len(stored))
	record = append(record, spoolMagic[:]...)
	record = append(record, byte(tag))
	record = binary.BigEndian.AppendUint32(record, uint32(len(stored)))
	record = append(record, checksum[:]...)
	record = append(record, stored...)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSpoolClosed
	}
	if _, err := s.file.Write(record); err != nil {
		return fmt.Errorf("writing spool record: %w", err)
	}
	return nil
}

// Sync flushes the spool file to stable storage.
func (s *Spool) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSpoolClosed
	}
	return s.file.Sync()
}

// Close closes the spool file. Idempotent.
func (s *Spool) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.file.Close()
}

// compressRecord compresses payload with the requested algorithm,
// falling back to a raw record when the payload does not shrink.
func compressRecord(payload []byte, tag CompressionTag) ([]byte, CompressionTag) {
	var (
		compressed []byte
		err        error
	)
	switch tag {
	case CompressionLZ4:
		compressed, err = compressLZ4(payload)
	case CompressionZstd:
		compressed, err = compressZstd(payload)
	default:
		return payload, CompressionNone
	}
	if err != nil {
		return payload, CompressionNone
	}
	return compressed, tag
}

// decompressRecord reverses compressRecord for one stored payload.
func decompressRecord(stored []byte, tag CompressionTag) ([]byte, error) {
	switch tag {
	case CompressionNone:
		return stored, nil
	case CompressionLZ4:
		return decompressLZ4(stored)
	case CompressionZstd:
		return decompressZstd(stored)
	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}

// errIncompressible is returned by compression helpers when the output
// is not smaller than the input; the caller stores the record raw.
var errIncompressible = errors.New("data is incompressible")

// LZ4: frame format, which is self-describing, so records carry no
// separate uncompressed size.

func compressLZ4(data []byte) ([]byte, error) {
	var buffer bytes.Buffer
	writer := lz4.NewWriter(&buffer)
	if _, err := writer.Write(data); err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if buffer.Len() >= len(data) {
		return nil, errIncompressible
	}
	return buffer.Bytes(), nil
}

func decompressLZ4(compressed []byte) ([]byte, error) {
	reader := lz4.NewReader(bytes.NewReader(compressed))
	data, err := io.ReadAll(io.LimitReader(reader, maxRecordSize+1))
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if len(data) > maxRecordSize {
		return nil, fmt.Errorf("lz4 decompress: record exceeds %d bytes", maxRecordSize)
	}
	return data, nil
}

// Zstd: default level via a shared encoder/decoder pair; both are safe
// for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		panic("forward: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil,
		zstd.WithDecoderMaxMemory(maxRecordSize),
	)
	if err != nil {
		panic("forward: zstd decoder initialization failed: " + err.Error())
	}
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func decompressZstd(compressed []byte) ([]byte, error) {
	data, err := zstdDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	return data, nil
}

// Record is one decoded spool entry.
type Record struct {
	// Event is the decoded event.
	Event event.Event
	// Tag is the compression the record was stored with.
	Tag CompressionTag
	// Offset is the byte position of the record's header.
	Offset int64
	// Size is the record's total size on disk, header included.
	Size int
}

// SpoolReader iterates the records of a spool file in write order.
type SpoolReader struct {
	reader io.Reader
	file   *os.File
	offset int64
}

// OpenSpoolReader opens the spool file at path for reading.
func OpenSpoolReader(path string) (*SpoolReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening spool: %w", err)
	}
	return &SpoolReader{reader: file, file: file}, nil
}

// NewSpoolReader reads spool records from r.
func NewSpoolReader(r io.Reader) *SpoolReader {
	return &SpoolReader{reader: r}
}

// Next returns the next record. It returns io.EOF at a clean end of
// the file and a *CorruptRecordError when the record fails validation;
// after a corrupt record the reader cannot resync and subsequent calls
// fail the same way.
func (r *SpoolReader) Next() (Record, error) {
	start := r.offset

	header := make([]byte, spoolHeaderSize)
	if _, err := io.ReadFull(r.reader, header); err != nil {
		if err == io.EOF {
			return Record{}, io.EOF
		}
		return Record{}, &CorruptRecordError{Offset: start, Reason: "truncated header", Err: err}
	}

	if !bytes.Equal(header[:4], spoolMagic[:]) {
		return Record{}, &CorruptRecordError{Offset: start, Reason: "bad magic"}
	}
	tag := CompressionTag(header[4])
	if tag > CompressionZstd {
		return Record{}, &CorruptRecordError{Offset: start, Reason: fmt.Sprintf("unknown compression tag %d", uint8(tag))}
	}
	length := binary.BigEndian.Uint32(header[5:9])
	if length > maxRecordSize {
		return Record{}, &CorruptRecordError{Offset: start, Reason: fmt.Sprintf("payload length %d exceeds the record limit", length)}
	}

	stored := make([]byte, length)
	if _, err := io.ReadFull(r.reader, stored); err != nil {
		return Record{}, &CorruptRecordError{Offset: start, Reason: "truncated payload", Err: err}
	}

	checksum := blake3.Sum256(stored)
	if !bytes.Equal(checksum[:], header[9:9+32]) {
		return Record{}, &CorruptRecordError{Offset: start, Reason: "checksum mismatch"}
	}

	payload, err := decompressRecord(stored, tag)
	if err != nil {
		return Record{}, &CorruptRecordError{Offset: start, Reason: "decompression failed", Err: err}
	}

	var ev event.Event
	if err := codec.Unmarshal(payload, &ev); err != nil {
		return Record{}, &CorruptRecordError{Offset: start, Reason: "decoding event", Err: err}
	}

	r.offset += int64(spoolHeaderSize) + int64(length)
	return Record{
		Event:  ev,
		Tag:    tag,
		Offset: start,
		Size:   spoolHeaderSize + int(length),
	}, nil
}

// Close closes the underlying file when the reader owns one.
func (r *SpoolReader) Close() error {
	if r.file == nil {
		return nil
	}
	return r.file.Close()
}
