package host

import (
	"bytes"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmcnally/icsp-bridge/internal/dispatch"
	"github.com/tmcnally/icsp-bridge/internal/icsp"
	"github.com/tmcnally/icsp-bridge/internal/signal"
)

// fakeAdapter runs a real dispatcher over an in-memory link, backed by a
// recording engine, so client tests exercise the whole serial protocol.
type fakeAdapter struct {
	calls        []string
	programWords []uint16
	dataWords    []uint16
	bus          *signal.Trace
}

func (f *fakeAdapter) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeAdapter) Bus() signal.Bus { return f.bus }

func (f *fakeAdapter) PulseClock()            { f.record("pulseClock") }
func (f *fakeAdapter) SendCommand(op byte)    { f.record("sendCommand 0x%02X", op) }
func (f *fakeAdapter) SendWord(v uint16)      { f.record("sendWord 0x%04X", v) }
func (f *fakeAdapter) LoadConfig(w uint16)    { f.record("loadConfig 0x%04X", w) }
func (f *fakeAdapter) LoadProgram(w uint16)   { f.record("loadProgram 0x%04X", w) }
func (f *fakeAdapter) LoadData(w uint16)      { f.record("loadData 0x%04X", w) }
func (f *fakeAdapter) ResetAddress()          { f.record("resetAddress") }
func (f *fakeAdapter) IncrementAddress(n int) { f.record("increment %d", n) }
func (f *fakeAdapter) EnterSession()          { f.record("enterSession") }
func (f *fakeAdapter) ExitSession()           { f.record("exitSession") }
func (f *fakeAdapter) HardwareReset()         { f.record("hardwareReset") }

func (f *fakeAdapter) Program(mode icsp.Mode)          { f.record("program %s", mode) }
func (f *fakeAdapter) BulkEraseProgram(mode icsp.Mode) { f.record("eraseProgram %s", mode) }
func (f *fakeAdapter) BulkEraseData(mode icsp.Mode)    { f.record("eraseData %s", mode) }

func (f *fakeAdapter) ReadProgram() uint16 {
	w := f.programWords[0]
	f.programWords = f.programWords[1:]
	f.record("readProgram")
	return w
}

func (f *fakeAdapter) ReadData() uint16 {
	w := f.dataWords[0]
	f.dataWords = f.dataWords[1:]
	f.record("readData")
	return w
}

// duplex is one end of an in-memory bidirectional link.
type duplex struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (d duplex) Read(p []byte) (int, error)  { return d.r.Read(p) }
func (d duplex) Write(p []byte) (int, error) { return d.w.Write(p) }
func (d duplex) Close() error {
	d.r.Close()
	return d.w.Close()
}

func newLink() (hostEnd, adapterEnd duplex) {
	hr, aw := io.Pipe()
	ar, hw := io.Pipe()
	return duplex{r: hr, w: hw}, duplex{r: ar, w: aw}
}

// startAdapter wires a fake adapter to a live dispatcher and returns the
// host's end of the link.
func startAdapter(t *testing.T, fa *fakeAdapter) duplex {
	t.Helper()
	fa.bus = signal.NewTrace()
	hostEnd, adapterEnd := newLink()
	go dispatch.New(adapterEnd, adapterEnd, fa).Run()
	t.Cleanup(func() { hostEnd.Close() })
	return hostEnd
}

func TestVersion(t *testing.T) {
	fa := &fakeAdapter{}
	c := New(startAdapter(t, fa))

	require.NoError(t, c.WaitReady())

	ver, err := c.Version()
	require.NoError(t, err)
	assert.Equal(t, dispatch.Version, ver)
}

func TestSessionAndErase(t *testing.T) {
	fa := &fakeAdapter{}
	c := New(startAdapter(t, fa), WithMode(icsp.ModeEnhanced))

	require.NoError(t, c.WaitReady())
	require.NoError(t, c.EnterSession())
	require.NoError(t, c.EraseProgram())
	require.NoError(t, c.EraseData())
	require.NoError(t, c.ExitSession())

	assert.Equal(t, []string{
		"enterSession",
		"eraseProgram enhanced",
		"eraseData enhanced",
		"exitSession",
	}, fa.calls)
}

func TestWriteProgram_LatchBatching(t *testing.T) {
	fa := &fakeAdapter{}
	c := New(startAdapter(t, fa), WithLatches(2))

	require.NoError(t, c.WaitReady())
	require.NoError(t, c.WriteProgram([]uint16{0x0001, 0x0002, 0x0003}))

	// Word 0 fills a latch without committing; word 1 completes the set
	// and commits; word 2 is last and commits alone.
	assert.Equal(t, []string{
		"loadProgram 0x0001", "increment 1",
		"loadProgram 0x0002", "program mid", "increment 1",
		"loadProgram 0x0003", "program mid", "increment 1",
	}, fa.calls)
}

func TestWriteProgram_SingleLatch(t *testing.T) {
	fa := &fakeAdapter{}
	c := New(startAdapter(t, fa))

	require.NoError(t, c.WaitReady())
	require.NoError(t, c.WriteProgram([]uint16{0x0F0F}))

	assert.Equal(t, []string{
		"loadProgram 0x0F0F", "program mid", "increment 1",
	}, fa.calls)
}

func TestWriteProgram_Progress(t *testing.T) {
	fa := &fakeAdapter{}
	var ticks []int
	c := New(startAdapter(t, fa), WithProgress(func(current, total int) {
		require.Equal(t, 2, total)
		ticks = append(ticks, current)
	}))

	require.NoError(t, c.WaitReady())
	require.NoError(t, c.WriteProgram([]uint16{1, 2}))
	assert.Equal(t, []int{1, 2}, ticks)
}

func TestWriteData(t *testing.T) {
	fa := &fakeAdapter{}
	c := New(startAdapter(t, fa))

	require.NoError(t, c.WaitReady())
	require.NoError(t, c.WriteData([]uint16{0x00AA}))

	assert.Equal(t, []string{
		"loadData 0x00AA", "program mid", "increment 1",
	}, fa.calls)
}

func TestReadProgram(t *testing.T) {
	fa := &fakeAdapter{programWords: []uint16{0x1111, 0x2222, 0x3FFF}}
	c := New(startAdapter(t, fa))

	require.NoError(t, c.WaitReady())
	words, err := c.ReadProgram(3)
	require.NoError(t, err)
	assert.Equal(t, []uint16{0x1111, 0x2222, 0x3FFF}, words)
	assert.Equal(t, []string{
		"readProgram", "increment 1",
		"readProgram", "increment 1",
		"readProgram", "increment 1",
	}, fa.calls)
}

func TestReadData(t *testing.T) {
	fa := &fakeAdapter{dataWords: []uint16{0x00DE, 0x00AD}}
	c := New(startAdapter(t, fa))

	require.NoError(t, c.WaitReady())
	data, err := c.ReadData(2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xDE, 0xAD}, data)
}

func TestStatus(t *testing.T) {
	fa := &fakeAdapter{}
	c := New(startAdapter(t, fa))

	require.NoError(t, c.WaitReady())
	status, err := c.Status()
	require.NoError(t, err)
	assert.Equal(t, []byte("I0I0I0I0"), status)
}

func TestAddressCommands(t *testing.T) {
	fa := &fakeAdapter{}
	c := New(startAdapter(t, fa))

	require.NoError(t, c.WaitReady())
	require.NoError(t, c.ResetAddress())
	require.NoError(t, c.JumpAddress(0x0123))

	assert.Equal(t, []string{"resetAddress", "increment 35"}, fa.calls)
}

// rwPair joins a canned input stream with an output sink, for tests that
// need exact control over what the client reads.
type rwPair struct {
	io.Reader
	io.Writer
}

func TestSync_DiscardsStrays(t *testing.T) {
	rw := rwPair{bytes.NewBufferString("\x00garbageK"), io.Discard}
	c := New(rw)
	require.NoError(t, c.Sync())
}

func TestSync_NoPrompt(t *testing.T) {
	rw := rwPair{bytes.NewBufferString("no prompt here at all, the stream just runs dry with noise bytes padding it out well past the give-up point............."), io.Discard}
	c := New(rw)
	require.Error(t, c.Sync())
}

func TestPromptMismatch(t *testing.T) {
	rw := rwPair{bytes.NewBufferString("X"), io.Discard}
	c := New(rw)
	err := c.EnterSession()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected prompt")
}
