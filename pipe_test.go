package d3xx

import (
	"testing"
	"time"

	"github.com/Gurux/gxcommon-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipeDirection(t *testing.T) {
	assert.True(t, PipeIn0.IsIn())
	assert.True(t, PipeIn3.IsIn())
	assert.False(t, PipeIn0.IsOut())
	assert.True(t, PipeOut0.IsOut())
	assert.True(t, PipeOut3.IsOut())
	assert.False(t, PipeOut0.IsIn())
}

func TestPipeString(t *testing.T) {
	assert.Equal(t, "In0", PipeIn0.String())
	assert.Equal(t, "In3", PipeIn3.String())
	assert.Equal(t, "Out2", PipeOut2.String())
	assert.Equal(t, "Pipe(0x99)", Pipe(0x99).String())
}

func TestPipeParse(t *testing.T) {
	for p := PipeIn0; p <= PipeIn3; p++ {
		got, err := PipeParse(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
	got, err := PipeParse("Out1")
	require.NoError(t, err)
	assert.Equal(t, PipeOut1, got)

	_, err = PipeParse("Pipe9")
	assert.ErrorIs(t, err, gxcommon.ErrInvalidArgument)
}

func TestPipeReadWrongDirection(t *testing.T) {
	f := newFakeDriver(testNode("A"))
	d := openTestDevice(t, f, "A")

	before := len(f.calls)
	_, err := d.Pipe(PipeOut0).Read(make([]byte, 16))
	assert.ErrorIs(t, err, ErrInvalidPipeDirection)
	_, err = d.Pipe(PipeIn0).Write([]byte{1, 2})
	assert.ErrorIs(t, err, ErrInvalidPipeDirection)
	assert.Len(t, f.calls, before, "direction errors must not reach the driver")
}

func TestPipeInvalidValue(t *testing.T) {
	f := newFakeDriver(testNode("A"))
	d := openTestDevice(t, f, "A")

	_, err := d.Pipe(Pipe(0x99)).Read(make([]byte, 16))
	assert.ErrorIs(t, err, gxcommon.ErrInvalidArgument)
	assert.ErrorIs(t, d.Pipe(Pipe(0x10)).Abort(), gxcommon.ErrInvalidArgument)
}

func TestPipeShortRead(t *testing.T) {
	f := newFakeDriver(testNode("A"))
	d := openTestDevice(t, f, "A")
	f.reads[byte(PipeIn1)] = []fakeRead{{data: make([]byte, 600)}}

	buf := make([]byte, 1024)
	n, err := d.Pipe(PipeIn1).Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 600, n)
}

func TestPipeReadTimeout(t *testing.T) {
	f := newFakeDriver(testNode("A"))
	d := openTestDevice(t, f, "A")

	_, err := d.Pipe(PipeIn0).Read(make([]byte, 16))
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestPipeReadFailureAbortsPipe(t *testing.T) {
	f := newFakeDriver(testNode("A"))
	d := openTestDevice(t, f, "A")
	f.reads[byte(PipeIn2)] = []fakeRead{{st: StatusIOError}}

	_, err := d.Pipe(PipeIn2).Read(make([]byte, 16))
	require.Error(t, err)
	assert.ErrorIs(t, err, StatusIOError)
	// A failed transfer leaves the pipe dirty; it must be aborted.
	require.Len(t, f.aborted, 1)
	assert.Equal(t, byte(PipeIn2), f.aborted[0])
}

func TestPipeWrite(t *testing.T) {
	f := newFakeDriver(testNode("A"))
	d := openTestDevice(t, f, "A")

	n, err := d.Pipe(PipeOut1).Write([]byte("PAYLOAD"))
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, []byte("PAYLOAD"), f.written[byte(PipeOut1)])
}

func TestPipeShortWrite(t *testing.T) {
	f := newFakeDriver(testNode("A"))
	d := openTestDevice(t, f, "A")
	f.writeCap = 4

	n, err := d.Pipe(PipeOut0).Write([]byte("LONG PAYLOAD"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestPipeWriteFailureAbortsPipe(t *testing.T) {
	f := newFakeDriver(testNode("A"))
	d := openTestDevice(t, f, "A")
	f.writeSt = StatusIOError

	_, err := d.Pipe(PipeOut0).Write([]byte{1})
	require.Error(t, err)
	require.Len(t, f.aborted, 1)
	assert.Equal(t, byte(PipeOut0), f.aborted[0])
}

func TestPipeTimeoutRoundTrip(t *testing.T) {
	f := newFakeDriver(testNode("A"))
	d := openTestDevice(t, f, "A")

	p := d.Pipe(PipeIn0)
	require.NoError(t, p.SetTimeout(250*time.Millisecond))
	got, err := p.Timeout()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, got)

	// Negative values clamp to "block forever".
	require.NoError(t, p.SetTimeout(-time.Second))
	got, err = p.Timeout()
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), got)
}

func TestPipeAbort(t *testing.T) {
	f := newFakeDriver(testNode("A"))
	d := openTestDevice(t, f, "A")

	require.NoError(t, d.Pipe(PipeIn3).Abort())
	require.Len(t, f.aborted, 1)
	assert.Equal(t, byte(PipeIn3), f.aborted[0])
}

func TestPipeIndexIsDense(t *testing.T) {
	seen := make(map[int]Pipe)
	for _, p := range []Pipe{
		PipeOut0, PipeOut1, PipeOut2, PipeOut3,
		PipeIn0, PipeIn1, PipeIn2, PipeIn3,
	} {
		i := p.index()
		require.GreaterOrEqual(t, i, 0)
		require.Less(t, i, pipeCount)
		_, dup := seen[i]
		require.False(t, dup, "index %d used by %v and %v", i, seen[i], p)
		seen[i] = p
	}
}
