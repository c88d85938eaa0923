package intelhex

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_DataRecord(t *testing.T) {
	im, err := Parse(strings.NewReader(
		":0B0010006164647265737320676170A7\n:00000001FF\n"))
	require.NoError(t, err)

	assert.Equal(t, 11, im.Len())
	for i, want := range []byte("address gap") {
		b, ok := im.Byte(0x0010 + uint32(i))
		require.True(t, ok, "byte %d missing", i)
		assert.Equal(t, want, b)
	}
}

func TestParse_SkipsBlankLines(t *testing.T) {
	im, err := Parse(strings.NewReader(
		"\n:020000000102FB\n\n:00000001FF\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, im.Len())
}

func TestParse_ChecksumError(t *testing.T) {
	_, err := Parse(strings.NewReader(":020000000102FC\n:00000001FF\n"))

	var cerr *ChecksumError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, 1, cerr.Line)
	assert.Equal(t, byte(0xFC), cerr.Got)
	assert.Equal(t, byte(0xFB), cerr.Want)
}

func TestParse_MissingStartCode(t *testing.T) {
	_, err := Parse(strings.NewReader("020000000102FB\n"))

	var rerr *RecordError
	require.ErrorAs(t, err, &rerr)
	assert.Contains(t, rerr.Error(), "start code")
}

func TestParse_MissingEOF(t *testing.T) {
	_, err := Parse(strings.NewReader(":020000000102FB\n"))

	var rerr *RecordError
	require.ErrorAs(t, err, &rerr)
	assert.Contains(t, rerr.Error(), "end-of-file")
}

func TestParse_LengthMismatch(t *testing.T) {
	_, err := Parse(strings.NewReader(":0300000001FC\n"))

	var rerr *RecordError
	require.ErrorAs(t, err, &rerr)
}

func TestParse_StopsAtEOFRecord(t *testing.T) {
	im, err := Parse(strings.NewReader(
		":00000001FF\n:020000000102FB\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, im.Len())
}

func TestWords(t *testing.T) {
	im := NewImage()
	im.SetWord(0x0100, 0x2AAA)

	assert.Equal(t, uint16(0x2AAA), im.WordOr(0x0100, ErasedProgramWord))
	assert.Equal(t, uint16(ErasedProgramWord), im.WordOr(0x0101, ErasedProgramWord))
}

func TestWordOr_PartialWord(t *testing.T) {
	im := NewImage()
	im.SetByte(0x0200, 0x55)

	// Word address 0x100 covers bytes 0x200-0x201; the high byte comes
	// from the default.
	assert.Equal(t, uint16(0x3F55), im.WordOr(0x0100, ErasedProgramWord))
}

func TestExtent(t *testing.T) {
	im := NewImage()
	_, _, ok := im.Extent()
	assert.False(t, ok)

	im.SetByte(0x0030, 1)
	im.SetByte(0x0010, 2)
	im.SetByte(0x0020, 3)

	lo, hi, ok := im.Extent()
	require.True(t, ok)
	assert.Equal(t, uint32(0x0010), lo)
	assert.Equal(t, uint32(0x0030), hi)
}

func TestWrite_RoundTrip(t *testing.T) {
	im := NewImage()
	for i := uint32(0); i < 40; i++ {
		im.SetWord(i, uint16(0x1000+i))
	}
	// A sparse region far away, across a 64K boundary.
	im.SetWord(0x8003, 0x0123)
	im.SetByte(0x1FFFF, 0xAB)
	im.SetByte(0x20000, 0xCD)

	var buf bytes.Buffer
	require.NoError(t, im.Write(&buf))

	back, err := Parse(&buf)
	require.NoError(t, err)
	require.Equal(t, im.Len(), back.Len())

	for i := uint32(0); i < 40; i++ {
		assert.Equal(t, uint16(0x1000+i), back.WordOr(i, 0))
	}
	assert.Equal(t, uint16(0x0123), back.WordOr(0x8003, 0))

	b, ok := back.Byte(0x1FFFF)
	require.True(t, ok)
	assert.Equal(t, byte(0xAB), b)
	b, ok = back.Byte(0x20000)
	require.True(t, ok)
	assert.Equal(t, byte(0xCD), b)
}

func TestWrite_RecordFormat(t *testing.T) {
	im := NewImage()
	im.SetByte(0, 0x01)
	im.SetByte(1, 0x02)

	var buf bytes.Buffer
	require.NoError(t, im.Write(&buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, ":020000040000FA", lines[0])
	assert.Equal(t, ":020000000102FB", lines[1])
	assert.Equal(t, ":00000001FF", lines[2])
}
