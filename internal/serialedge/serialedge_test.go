package serialedge

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/sweeney/weather433/internal/gpio"
	"github.com/sweeney/weather433/internal/logic"
)

func discardLogger() *log.Logger {
	return log.New(io.Discard)
}

func collect(t *testing.T, s *Source) []logic.Edge {
	t.Helper()
	var got []logic.Edge
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e, ok := <-s.Edges():
			if !ok {
				return got
			}
			got = append(got, e)
		case <-timeout:
			t.Fatal("timed out waiting for edge stream to end")
		}
	}
}

func TestParseLine(t *testing.T) {
	micros, level, err := ParseLine("123456 1")
	require.NoError(t, err)
	assert.Equal(t, uint32(123456), micros)
	assert.Equal(t, logic.Rising, level)

	micros, level, err = ParseLine("  4294967295\t0 ")
	require.NoError(t, err)
	assert.Equal(t, uint32(4294967295), micros)
	assert.Equal(t, logic.Falling, level)

	for _, bad := range []string{"", "123", "123 2", "abc 1", "-5 1", "4294967296 1", "1 1 1"} {
		_, _, err := ParseLine(bad)
		assert.ErrorIs(t, err, ErrBadLine, "input %q", bad)
	}
}

func TestUnwrapper(t *testing.T) {
	var u unwrapper
	assert.Equal(t, 100*time.Microsecond, u.extend(100))
	assert.Equal(t, time.Duration(4294967290)*time.Microsecond, u.extend(4294967290))
	// Counter wrapped: 10 after 4294967290 is 16us later.
	assert.Equal(t, time.Duration(4294967296+10)*time.Microsecond, u.extend(10))
}

func TestSourceReadsLines(t *testing.T) {
	input := "garbage from boot\n1000 0\n\n9000 1\n9500 0\n"
	s := NewSource(io.NopCloser(strings.NewReader(input)), 16, discardLogger())

	got := collect(t, s)
	want := []logic.Edge{
		{Timestamp: 1000 * time.Microsecond, Level: logic.Falling},
		{Timestamp: 9000 * time.Microsecond, Level: logic.Rising},
		{Timestamp: 9500 * time.Microsecond, Level: logic.Falling},
	}
	assert.Equal(t, want, got)
	assert.Equal(t, uint64(1), s.BadLines())
	require.NoError(t, s.Close())
}

// A transmission straddling the counter wrap still demodulates.
func TestSourceFrameAcrossWrap(t *testing.T) {
	var frame logic.Frame
	frame.SetField(0, 8, 0x05)
	frame.SetField(16, 28, 900)

	start := time.Duration(1<<32-30000) * time.Microsecond
	edges, _ := gpio.Transmission(start, frame)

	var b strings.Builder
	for _, e := range edges {
		micros := uint32(uint64(e.Timestamp.Microseconds()) & 0xffffffff)
		fmt.Fprintf(&b, "%d %d\n", micros, e.Level)
	}

	s := NewSource(io.NopCloser(strings.NewReader(b.String())), 256, discardLogger())
	d := logic.NewDemodulator(logic.DefaultTiming())
	frames := 0
	for _, e := range collect(t, s) {
		if f, ok, _ := d.Feed(e); ok {
			frames++
			assert.Equal(t, frame, f)
		}
	}
	assert.Equal(t, 1, frames)
}

func TestSourceDropsOnOverflow(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&b, "%d %d\n", i*1000, i%2)
	}
	s := NewSource(io.NopCloser(strings.NewReader(b.String())), 4, discardLogger())
	// Nothing consumes until the reader has finished, so only the buffer
	// capacity survives.
	<-s.done

	got := collect(t, s)
	assert.Len(t, got, 4)
	assert.Equal(t, uint64(6), s.Dropped())
}

type fakePort struct {
	io.Reader
	closed bool
}

func (p *fakePort) Write(b []byte) (int, error) { return len(b), nil }
func (p *fakePort) Drain() error                { return nil }
func (p *fakePort) ResetInputBuffer() error     { return nil }
func (p *fakePort) ResetOutputBuffer() error    { return nil }
func (p *fakePort) SetDTR(bool) error           { return nil }
func (p *fakePort) SetRTS(bool) error           { return nil }
func (p *fakePort) SetMode(*serial.Mode) error  { return nil }
func (p *fakePort) Break(time.Duration) error   { return nil }

func (p *fakePort) SetReadTimeout(time.Duration) error { return nil }

func (p *fakePort) GetModemStatusBits() (*serial.ModemStatusBits, error) {
	return &serial.ModemStatusBits{}, nil
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func TestOpenWithConfiguresMode(t *testing.T) {
	port := &fakePort{Reader: strings.NewReader("5 1\n")}
	var gotPath string
	var gotMode *serial.Mode
	open := func(path string, mode *serial.Mode) (serial.Port, error) {
		gotPath, gotMode = path, mode
		return port, nil
	}

	s, err := OpenWith(open, "/dev/ttyACM0", 115200, 8, discardLogger())
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyACM0", gotPath)
	assert.Equal(t, 115200, gotMode.BaudRate)
	assert.Equal(t, 8, gotMode.DataBits)
	assert.Equal(t, serial.NoParity, gotMode.Parity)
	assert.Equal(t, serial.OneStopBit, gotMode.StopBits)

	assert.Len(t, collect(t, s), 1)
	require.NoError(t, s.Close())
	assert.True(t, port.closed)
}

func TestOpenWithError(t *testing.T) {
	open := func(string, *serial.Mode) (serial.Port, error) {
		return nil, errors.New("no such device")
	}
	_, err := OpenWith(open, "/dev/ttyUSB9", 9600, 8, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/dev/ttyUSB9")
}
