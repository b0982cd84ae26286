package capture

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRTLTCP streams a constant byte per tuned frequency: 255 while tuned to
// hotFreq and 0 otherwise.
type fakeRTLTCP struct {
	listener net.Listener
	freq     atomic.Uint32
	tunes    atomic.Int32
	gainMode atomic.Int64
}

const hotFreq = 200e6

func newFakeRTLTCP(t *testing.T) *fakeRTLTCP {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	f := &fakeRTLTCP{listener: ln}
	f.gainMode.Store(-1)
	t.Cleanup(func() { ln.Close() })
	go f.serve()
	return f
}

func (f *fakeRTLTCP) addr() string {
	return f.listener.Addr().String()
}

func (f *fakeRTLTCP) serve() {
	conn, err := f.listener.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	header := make([]byte, 12)
	copy(header, "RTL0")
	binary.BigEndian.PutUint32(header[4:], 5)
	binary.BigEndian.PutUint32(header[8:], 29)
	if _, err := conn.Write(header); err != nil {
		return
	}

	go func() {
		cmd := make([]byte, 5)
		for {
			if _, err := io.ReadFull(conn, cmd); err != nil {
				return
			}
			param := binary.BigEndian.Uint32(cmd[1:])
			switch cmd[0] {
			case 1:
				f.freq.Store(param)
				f.tunes.Add(1)
			case 3:
				f.gainMode.Store(int64(param))
			}
		}
	}()

	// about 2 MB/s, close to a real dongle at 1.024 MS/s
	block := make([]byte, 2048)
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		value := byte(0)
		if f.freq.Load() == uint32(hotFreq) {
			value = 255
		}
		for i := range block {
			block[i] = value
		}
		if _, err := conn.Write(block); err != nil {
			return
		}
	}
}

func TestRTLTCPRetuneDropsStaleSamples(t *testing.T) {
	server := newFakeRTLTCP(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	src, err := DialRTLTCP(ctx, RTLTCPConfig{Addr: server.addr(), Settle: 50 * time.Millisecond})
	require.NoError(t, err)
	defer src.Close()

	require.NoError(t, src.SetFrequency(ctx, 100e6))
	first, err := src.Read(ctx, 20*time.Millisecond)
	require.NoError(t, err)
	for _, s := range first.Samples {
		require.Equal(t, complex(-1, -1), s)
	}

	// idle long enough for a lagging reader to fall far behind the stream
	time.Sleep(700 * time.Millisecond)

	require.NoError(t, src.SetFrequency(ctx, hotFreq))
	second, err := src.Read(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, second.Samples, SampleCount(DefaultSampleRate, 100*time.Millisecond))

	stale := 0
	for _, s := range second.Samples {
		if s != complex(1, 1) {
			stale++
		}
	}
	assert.Zero(t, stale, "samples from the previous frequency after retune")
	assert.EqualValues(t, 1, server.gainMode.Load(), "manual gain mode")
}

func TestRTLTCPReadHonoursContext(t *testing.T) {
	server := newFakeRTLTCP(t)
	src, err := DialRTLTCP(context.Background(), RTLTCPConfig{Addr: server.addr()})
	require.NoError(t, err)
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = src.Read(ctx, 2*time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// the abandoned capture must not block the next one
	buf, err := src.Read(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	assert.NotEmpty(t, buf.Samples)
}

func TestRTLTCPDeliverKeepsIQAlignment(t *testing.T) {
	r := &RTLTCP{config: RTLTCPConfig{SampleRate: DefaultSampleRate}}
	now := time.Now()

	// an odd-length chunk nobody asked for leaves the stream mid-pair
	r.deliver([]byte{1, 2, 3}, now)

	req := &captureRequest{buf: make([]byte, 4), done: make(chan struct{})}
	r.pending = req
	r.deliver([]byte{4, 10, 11, 12, 13}, now)

	select {
	case <-req.done:
	default:
		t.Fatal("capture not completed")
	}
	assert.Equal(t, []byte{10, 11, 12, 13}, req.buf)
	assert.Nil(t, r.pending)
}

func TestRTLTCPDeliverWaitsForSettle(t *testing.T) {
	r := &RTLTCP{}
	now := time.Now()
	req := &captureRequest{buf: make([]byte, 2), after: now.Add(time.Second), done: make(chan struct{})}
	r.pending = req

	r.deliver([]byte{7, 7}, now)
	assert.Zero(t, req.fill)

	r.deliver([]byte{8, 9}, now.Add(2*time.Second))
	assert.Equal(t, []byte{8, 9}, req.buf)
}
