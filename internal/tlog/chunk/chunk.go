// Package chunk implements the transaction-log's on-disk framing unit:
// one encoding byte, a length-prefixed (optionally compressed) payload
// and a trailing CRC, wrapping a sequence of strictly-increasing-serial
// entries.
package chunk

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CRCKind selects the trailing checksum algorithm.
type CRCKind uint8

const (
	CRCNone CRCKind = iota
	CRCCCITT
	CRCXXH64
)

// CompressionKind selects the payload compression codec.
type CompressionKind uint8

const (
	CompressionNone CompressionKind = iota
	CompressionNoneMulti
	CompressionLZ4
	CompressionZSTD
)

// Entry is one logical transaction-log record packed into a chunk.
type Entry struct {
	Serial  uint64
	TypeTag uint32
	Data    []byte
}

// Encoding packs crc|compression into a single on-wire byte, low nibble
// CRC kind, high nibble compression kind.
func packEncoding(crc CRCKind, comp CompressionKind) byte {
	return byte(crc&0x0F) | byte(comp&0x0F)<<4
}

func unpackEncoding(b byte) (CRCKind, CompressionKind) {
	return CRCKind(b & 0x0F), CompressionKind(b >> 4)
}

// Encode serializes entries into a complete framed chunk: encoding byte,
// u32 length, payload, trailing CRC. `none` compression is rejected for
// writes (deprecated).
func Encode(entries []Entry, crc CRCKind, comp CompressionKind) ([]byte, error) {
	if comp == CompressionNone {
		return nil, fmt.Errorf("chunk: compression 'none' is deprecated and rejected for writes")
	}

	raw, err := encodeEntries(entries)
	if err != nil {
		return nil, err
	}

	payload, err := compressPayload(raw, comp)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteByte(packEncoding(crc, comp))

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	buf.Write(lenBuf[:])
	buf.Write(payload)

	sum := checksum(crc, buf.Bytes()[:buf.Len()])
	var crcBuf [4]byte
	binary.BigEndian.PutUint32(crcBuf[:], sum)
	buf.Write(crcBuf[:])

	return buf.Bytes(), nil
}

func encodeEntries(entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	var lastSerial uint64
	first := true
	for _, e := range entries {
		if !first && e.Serial <= lastSerial {
			return nil, fmt.Errorf("chunk: entry serials must strictly increase, got %d after %d", e.Serial, lastSerial)
		}
		lastSerial = e.Serial
		first = false

		var hdr [16]byte
		binary.BigEndian.PutUint64(hdr[0:8], e.Serial)
		binary.BigEndian.PutUint32(hdr[8:12], e.TypeTag)
		binary.BigEndian.PutUint32(hdr[12:16], uint32(len(e.Data)))
		buf.Write(hdr[:])
		buf.Write(e.Data)
	}
	return buf.Bytes(), nil
}

func decodeEntries(data []byte) ([]Entry, error) {
	var entries []Entry
	var lastSerial uint64
	first := true
	for len(data) > 0 {
		if len(data) < 16 {
			return nil, fmt.Errorf("chunk: truncated entry header")
		}
		serial := binary.BigEndian.Uint64(data[0:8])
		typeTag := binary.BigEndian.Uint32(data[8:12])
		dataLen := binary.BigEndian.Uint32(data[12:16])
		data = data[16:]

		if !first && serial <= lastSerial {
			return nil, fmt.Errorf("chunk: decoded entry serials out of order: %d after %d", serial, lastSerial)
		}
		lastSerial = serial
		first = false

		if uint32(len(data)) < dataLen {
			return nil, fmt.Errorf("chunk: truncated entry payload")
		}
		entries = append(entries, Entry{Serial: serial, TypeTag: typeTag, Data: append([]byte(nil), data[:dataLen]...)})
		data = data[dataLen:]
	}
	return entries, nil
}

func compressPayload(raw []byte, comp CompressionKind) ([]byte, error) {
	switch comp {
	case CompressionNoneMulti:
		return raw, nil
	case CompressionLZ4:
		return compressWithLength(raw, func(w io.Writer, r []byte) error {
			zw := lz4.NewWriter(w)
			if _, err := zw.Write(r); err != nil {
				return err
			}
			return zw.Close()
		})
	case CompressionZSTD:
		return compressWithLength(raw, func(w io.Writer, r []byte) error {
			zw, err := zstd.NewWriter(w)
			if err != nil {
				return err
			}
			if _, err := zw.Write(r); err != nil {
				return err
			}
			return zw.Close()
		})
	default:
		return nil, fmt.Errorf("chunk: unknown compression kind %d", comp)
	}
}

// compressWithLength prefixes the compressed block with a u32
// uncompressed-length, per §4.8.
func compressWithLength(raw []byte, compress func(io.Writer, []byte) error) ([]byte, error) {
	var buf bytes.Buffer
	var lb [4]byte
	binary.BigEndian.PutUint32(lb[:], uint32(len(raw)))
	buf.Write(lb[:])
	if err := compress(&buf, raw); err != nil {
		return nil, fmt.Errorf("chunk: compress: %w", err)
	}
	return buf.Bytes(), nil
}

func decompressPayload(payload []byte, comp CompressionKind) ([]byte, error) {
	switch comp {
	case CompressionNoneMulti:
		return payload, nil
	case CompressionLZ4:
		return decompressWithLength(payload, func(r io.Reader, uncompressedLen int) ([]byte, error) {
			zr := lz4.NewReader(r)
			out := make([]byte, uncompressedLen)
			_, err := io.ReadFull(zr, out)
			return out, err
		})
	case CompressionZSTD:
		return decompressWithLength(payload, func(r io.Reader, uncompressedLen int) ([]byte, error) {
			zr, err := zstd.NewReader(r)
			if err != nil {
				return nil, err
			}
			defer zr.Close()
			out := make([]byte, uncompressedLen)
			_, err = io.ReadFull(zr, out)
			return out, err
		})
	default:
		return nil, fmt.Errorf("chunk: unknown compression kind %d", comp)
	}
}

func decompressWithLength(payload []byte, decompress func(io.Reader, int) ([]byte, error)) ([]byte, error) {
	if len(payload) < 4 {
		return nil, fmt.Errorf("chunk: truncated compressed payload")
	}
	uncompressedLen := binary.BigEndian.Uint32(payload[:4])
	r := bytes.NewReader(payload[4:])
	return decompress(r, int(uncompressedLen))
}

func checksum(kind CRCKind, data []byte) uint32 {
	switch kind {
	case CRCCCITT:
		return crc32.ChecksumIEEE(data)
	case CRCXXH64:
		return uint32(xxhash.Sum64(data))
	default:
		return 0
	}
}

// Decode verifies the CRC, decompresses if needed, and decodes entries
// from a complete framed chunk produced by Encode. Returns the consumed
// byte count so callers scanning a file can advance past this chunk.
func Decode(data []byte) (entries []Entry, consumed int, err error) {
	if len(data) < 9 {
		return nil, 0, fmt.Errorf("chunk: truncated chunk header")
	}
	crcKind, comp := unpackEncoding(data[0])
	length := binary.BigEndian.Uint32(data[1:5])
	end := 5 + int(length)
	if len(data) < end+4 {
		return nil, 0, fmt.Errorf("chunk: truncated chunk payload")
	}
	payload := data[5:end]
	wantCRC := binary.BigEndian.Uint32(data[end : end+4])

	gotCRC := checksum(crcKind, data[:end])
	if gotCRC != wantCRC {
		return nil, 0, fmt.Errorf("chunk: CRC mismatch: corrupt chunk")
	}

	raw, err := decompressPayload(payload, comp)
	if err != nil {
		return nil, 0, fmt.Errorf("chunk: decompress: %w", err)
	}

	entries, err = decodeEntries(raw)
	if err != nil {
		return nil, 0, err
	}
	return entries, end + 4, nil
}
