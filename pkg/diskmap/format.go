package diskmap

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"slices"
)

// Slot file format (little-endian):
//
//	magic   [4]byte  "DKM1"
//	count   u32
//	count × { keyLen u32 | key | valLen u32 | value }   keys ascending
//	crc32c  u32      over every preceding byte
//
// The format is versionless. Any deviation is reported as [ErrCorruptSlot].
const (
	slotMagic      = "DKM1"
	slotHeaderSize = 8
	slotCRCSize    = 4
	minSlotSize    = slotHeaderSize + slotCRCSize
	lenFieldSize   = 4
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// EncodeSlot serializes a slot mapping. Keys are written in ascending order
// so equal mappings always encode to equal bytes.
func EncodeSlot(entries map[string]string) []byte {
	keys := make([]string, 0, len(entries))
	size := minSlotSize

	for key, value := range entries {
		keys = append(keys, key)
		size += 2*lenFieldSize + len(key) + len(value)
	}

	slices.Sort(keys)

	buf := make([]byte, 0, size)
	buf = append(buf, slotMagic...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(keys)))

	for _, key := range keys {
		value := entries[key]
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(key)))
		buf = append(buf, key...)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(value)))
		buf = append(buf, value...)
	}

	return binary.LittleEndian.AppendUint32(buf, crc32.Checksum(buf, castagnoli))
}

// DecodeSlot parses bytes produced by [EncodeSlot].
//
// Returns an error matching [ErrCorruptSlot] for bad magic, truncation,
// checksum mismatch, duplicate or unordered keys, or trailing bytes.
func DecodeSlot(data []byte) (map[string]string, error) {
	if len(data) < minSlotSize {
		return nil, fmt.Errorf("slot too small: %d bytes: %w", len(data), ErrCorruptSlot)
	}

	if !bytes.Equal(data[:4], []byte(slotMagic)) {
		return nil, fmt.Errorf("invalid magic %q, expected %s: %w", data[:4], slotMagic, ErrCorruptSlot)
	}

	body := data[:len(data)-slotCRCSize]
	want := binary.LittleEndian.Uint32(data[len(data)-slotCRCSize:])

	if got := crc32.Checksum(body, castagnoli); got != want {
		return nil, fmt.Errorf("checksum mismatch: got %08x, want %08x: %w", got, want, ErrCorruptSlot)
	}

	count := binary.LittleEndian.Uint32(body[4:8])

	// Every entry needs at least two length fields.
	if uint64(count)*2*lenFieldSize > uint64(len(body)-slotHeaderSize) {
		return nil, fmt.Errorf("entry count %d exceeds slot size: %w", count, ErrCorruptSlot)
	}

	entries := make(map[string]string, count)
	pos := slotHeaderSize
	prevKey := ""

	for i := range count {
		key, next, err := readField(body, pos)
		if err != nil {
			return nil, fmt.Errorf("entry %d key: %w", i, err)
		}

		value, next, err := readField(body, next)
		if err != nil {
			return nil, fmt.Errorf("entry %d value: %w", i, err)
		}

		if i > 0 && key <= prevKey {
			return nil, fmt.Errorf("entry %d key %q out of order: %w", i, key, ErrCorruptSlot)
		}

		entries[key] = value
		prevKey = key
		pos = next
	}

	if pos != len(body) {
		return nil, fmt.Errorf("%d trailing bytes: %w", len(body)-pos, ErrCorruptSlot)
	}

	return entries, nil
}

// readField reads one length-prefixed string starting at pos and returns it
// with the offset just past it.
func readField(buf []byte, pos int) (string, int, error) {
	if len(buf)-pos < lenFieldSize {
		return "", 0, fmt.Errorf("truncated length at offset %d: %w", pos, ErrCorruptSlot)
	}

	n := int(binary.LittleEndian.Uint32(buf[pos:]))
	pos += lenFieldSize

	if n < 0 || n > len(buf)-pos {
		return "", 0, fmt.Errorf("length %d at offset %d overruns slot: %w", n, pos-lenFieldSize, ErrCorruptSlot)
	}

	return string(buf[pos : pos+n]), pos + n, nil
}
