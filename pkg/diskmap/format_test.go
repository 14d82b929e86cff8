package diskmap_test

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/calvinalkan/diskmap/pkg/diskmap"
)

func Test_DecodeSlot_Returns_Same_Mapping_When_Encoded(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		name    string
		entries map[string]string
	}{
		{name: "Nil", entries: nil},
		{name: "Empty", entries: map[string]string{}},
		{name: "Single", entries: map[string]string{"k": "v"}},
		{name: "EmptyKeyAndValue", entries: map[string]string{"": "", "a": ""}},
		{name: "Unicode", entries: map[string]string{"ключ": "значение", "🔑": "✓"}},
		{name: "BinaryBytes", entries: map[string]string{"\x00\xff": "\x00\x01\x02"}},
		{name: "Many", entries: manyEntries(200)},
		{name: "LongValue", entries: map[string]string{"big": strings.Repeat("x", 1<<16)}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := diskmap.DecodeSlot(diskmap.EncodeSlot(tt.entries))
			if err != nil {
				t.Fatalf("DecodeSlot: %v", err)
			}

			if diff := cmp.Diff(tt.entries, got, cmpopts.EquateEmpty()); diff != "" {
				t.Fatalf("round-trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func Test_EncodeSlot_Is_Deterministic(t *testing.T) {
	t.Parallel()

	entries := manyEntries(50)

	first := diskmap.EncodeSlot(entries)
	for range 10 {
		if got := diskmap.EncodeSlot(entries); string(got) != string(first) {
			t.Fatalf("EncodeSlot produced different bytes for the same mapping")
		}
	}
}

func Test_DecodeSlot_Returns_ErrCorruptSlot_When_Bytes_Are_Malformed(t *testing.T) {
	t.Parallel()

	valid := diskmap.EncodeSlot(map[string]string{"a": "1", "b": "2"})

	flipped := append([]byte(nil), valid...)
	flipped[10] ^= 0xff

	for _, tt := range []struct {
		name string
		data []byte
	}{
		{name: "Nil", data: nil},
		{name: "TooShort", data: []byte("DKM1")},
		{name: "Truncated", data: valid[:len(valid)-3]},
		{name: "BadMagic", data: frame(append([]byte("XXXX"), 0, 0, 0, 0))},
		{name: "ChecksumMismatch", data: flipped},
		{name: "CountTooLarge", data: frame(header(1000))},
		{name: "LengthOverrun", data: frame(binary.LittleEndian.AppendUint32(header(1), 99))},
		{name: "TrailingBytes", data: frame(append(header(0), 'x'))},
		{name: "DuplicateKey", data: frame(record(record(header(2), "a", "1"), "a", "2"))},
		{name: "UnorderedKeys", data: frame(record(record(header(2), "b", "1"), "a", "2"))},
	} {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := diskmap.DecodeSlot(tt.data)
			if !errors.Is(err, diskmap.ErrCorruptSlot) {
				t.Fatalf("DecodeSlot: err=%v, want %v", err, diskmap.ErrCorruptSlot)
			}
		})
	}
}

func manyEntries(n int) map[string]string {
	entries := make(map[string]string, n)
	for i := range n {
		entries["key-"+itoa(i)] = "value-" + itoa(i*7)
	}

	return entries
}

// header returns the magic and entry count.
func header(count uint32) []byte {
	return binary.LittleEndian.AppendUint32([]byte("DKM1"), count)
}

func record(buf []byte, key, value string) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(key)))
	buf = append(buf, key...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(value)))

	return append(buf, value...)
}

// frame appends a valid checksum so decoding reaches the structural checks.
func frame(body []byte) []byte {
	sum := crc32.Checksum(body, crc32.MakeTable(crc32.Castagnoli))

	return binary.LittleEndian.AppendUint32(body, sum)
}
