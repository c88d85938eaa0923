// Package intelhex reads and writes Intel HEX (I8HEX/I32HEX) firmware
// images. Images are sparse byte maps; program memory words are stored as
// little-endian byte pairs at twice their word address.
package intelhex

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Record types understood by the parser.
const (
	recData       = 0x00
	recEOF        = 0x01
	recExtSegment = 0x02
	recExtLinear  = 0x04
)

// ErasedProgramWord is the value of an unprogrammed program memory word.
const ErasedProgramWord = 0x3FFF

// ErasedDataWord is the value of an unprogrammed data memory cell, padded
// to word width in hex files.
const ErasedDataWord = 0x00FF

// RecordError reports a malformed record.
type RecordError struct {
	Line   int
	Reason string
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("intelhex: line %d: %s", e.Line, e.Reason)
}

// ChecksumError reports a record whose checksum does not match its contents.
type ChecksumError struct {
	Line int
	Want byte
	Got  byte
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("intelhex: line %d: checksum 0x%02X, want 0x%02X", e.Line, e.Got, e.Want)
}

// Image is a sparse byte-addressed firmware image.
type Image struct {
	data map[uint32]byte
}

// NewImage returns an empty image.
func NewImage() *Image {
	return &Image{data: make(map[uint32]byte)}
}

// Parse reads HEX records until the end-of-file record. A missing EOF
// record is an error, matching what firmware build tools always emit.
func Parse(r io.Reader) (*Image, error) {
	im := NewImage()
	base := uint32(0)

	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		if text[0] != ':' {
			return nil, &RecordError{Line: line, Reason: "missing ':' start code"}
		}

		raw, err := hex.DecodeString(text[1:])
		if err != nil {
			return nil, &RecordError{Line: line, Reason: "invalid hex digits"}
		}
		if len(raw) < 5 {
			return nil, &RecordError{Line: line, Reason: "record too short"}
		}

		count := int(raw[0])
		if len(raw) != count+5 {
			return nil, &RecordError{Line: line,
				Reason: fmt.Sprintf("length byte %d does not match %d data bytes", count, len(raw)-5)}
		}

		var sum byte
		for _, b := range raw[:len(raw)-1] {
			sum += b
		}
		want := byte(-sum)
		got := raw[len(raw)-1]
		if got != want {
			return nil, &ChecksumError{Line: line, Want: want, Got: got}
		}

		addr := uint32(raw[1])<<8 | uint32(raw[2])
		data := raw[4 : 4+count]

		switch raw[3] {
		case recData:
			for i, b := range data {
				im.data[base+addr+uint32(i)] = b
			}
		case recEOF:
			return im, nil
		case recExtSegment:
			if count != 2 {
				return nil, &RecordError{Line: line, Reason: "bad extended segment address record"}
			}
			base = (uint32(data[0])<<8 | uint32(data[1])) << 4
		case recExtLinear:
			if count != 2 {
				return nil, &RecordError{Line: line, Reason: "bad extended linear address record"}
			}
			base = (uint32(data[0])<<8 | uint32(data[1])) << 16
		default:
			return nil, &RecordError{Line: line,
				Reason: fmt.Sprintf("unsupported record type 0x%02X", raw[3])}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	return nil, &RecordError{Line: line, Reason: "missing end-of-file record"}
}

// Len returns the number of bytes present in the image.
func (im *Image) Len() int {
	return len(im.data)
}

// Byte returns the byte at addr and whether it is present.
func (im *Image) Byte(addr uint32) (byte, bool) {
	b, ok := im.data[addr]
	return b, ok
}

// SetByte stores one byte.
func (im *Image) SetByte(addr uint32, b byte) {
	im.data[addr] = b
}

// SetWord stores a 14-bit word as a little-endian pair at twice the word
// address.
func (im *Image) SetWord(wordAddr uint32, w uint16) {
	im.data[2*wordAddr] = byte(w)
	im.data[2*wordAddr+1] = byte(w >> 8)
}

// WordOr returns the word at wordAddr, substituting bytes of def for any
// byte the image does not cover.
func (im *Image) WordOr(wordAddr uint32, def uint16) uint16 {
	lo, okLo := im.data[2*wordAddr]
	hi, okHi := im.data[2*wordAddr+1]
	if !okLo {
		lo = byte(def)
	}
	if !okHi {
		hi = byte(def >> 8)
	}
	return uint16(hi)<<8 | uint16(lo)
}

// Extent returns the lowest and highest byte address present. ok is false
// for an empty image.
func (im *Image) Extent() (lo, hi uint32, ok bool) {
	if len(im.data) == 0 {
		return 0, 0, false
	}
	first := true
	for addr := range im.data {
		if first {
			lo, hi = addr, addr
			first = false
			continue
		}
		if addr < lo {
			lo = addr
		}
		if addr > hi {
			hi = addr
		}
	}
	return lo, hi, true
}

// Write serializes the image as HEX records of up to 16 data bytes,
// emitting extended linear address records at 64K boundaries, and ends
// with the EOF record.
func (im *Image) Write(w io.Writer) error {
	addrs := make([]uint32, 0, len(im.data))
	for addr := range im.data {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })

	var upper uint32
	upperSet := false

	for i := 0; i < len(addrs); {
		start := addrs[i]

		if hi := start >> 16; !upperSet || hi != upper {
			rec := []byte{byte(hi >> 8), byte(hi)}
			if err := writeRecord(w, 0, recExtLinear, rec); err != nil {
				return err
			}
			upper = hi
			upperSet = true
		}

		// Collect a contiguous run, capped at 16 bytes and at the 64K
		// page boundary.
		var data []byte
		addr := start
		for i < len(addrs) && addrs[i] == addr && len(data) < 16 && addr>>16 == upper {
			data = append(data, im.data[addr])
			addr++
			i++
		}

		if err := writeRecord(w, uint16(start), recData, data); err != nil {
			return err
		}
	}

	return writeRecord(w, 0, recEOF, nil)
}

func writeRecord(w io.Writer, addr uint16, typ byte, data []byte) error {
	sum := byte(len(data)) + byte(addr>>8) + byte(addr) + typ
	for _, b := range data {
		sum += b
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, ":%02X%04X%02X", len(data), addr, typ)
	for _, b := range data {
		fmt.Fprintf(&sb, "%02X", b)
	}
	fmt.Fprintf(&sb, "%02X\n", byte(-sum))

	_, err := io.WriteString(w, sb.String())
	return err
}
