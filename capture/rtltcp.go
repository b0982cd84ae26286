package capture

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/bemasher/rtltcp"

	"rtl-ml/radio"
	"rtl-ml/utils"
)

const (
	DefaultSampleRate = 1.024e6
	DefaultGainDB     = 40.0
	DefaultSettle     = 50 * time.Millisecond
)

// RTLTCPConfig describes how to reach and tune an rtl_tcp server.
type RTLTCPConfig struct {
	Addr       string        `yaml:"addr"`
	SampleRate float64       `yaml:"sample_rate"`
	GainDB     float64       `yaml:"gain_db"`
	Settle     time.Duration `yaml:"settle"`
}

func (c RTLTCPConfig) withDefaults() RTLTCPConfig {
	if c.Addr == "" {
		c.Addr = "127.0.0.1:1234"
	}
	if c.SampleRate <= 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.GainDB == 0 {
		c.GainDB = DefaultGainDB
	}
	if c.Settle == 0 {
		c.Settle = DefaultSettle
	}
	return c
}

// streamChunk is the socket read size of the background reader.
const streamChunk = 16384

// RTLTCP reads unsigned 8-bit IQ from an rtl_tcp server.
//
// rtl_tcp streams without pause, so a background goroutine drains the socket
// at all times. Bytes are handed to a pending Read only when they arrived at
// least Settle after the last retune; everything else is dropped. The stream
// offset of every byte is tracked so captures always start on an I sample.
type RTLTCP struct {
	sdr       rtltcp.SDR
	config    RTLTCPConfig
	connected bool
	stopped   chan struct{}

	mu      sync.Mutex
	readyAt time.Time
	pending *captureRequest
	offset  int64
	err     error
}

type captureRequest struct {
	buf   []byte
	fill  int
	after time.Time
	done  chan struct{}
}

// DialRTLTCP connects to the server and applies sample rate and manual gain.
func DialRTLTCP(ctx context.Context, config RTLTCPConfig) (*RTLTCP, error) {
	config = config.withDefaults()
	logger := utils.GetLogger()

	addr, err := net.ResolveTCPAddr("tcp", config.Addr)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving %s: %v", ErrCapture, config.Addr, err)
	}

	r := &RTLTCP{config: config}
	if err := r.sdr.Connect(addr); err != nil {
		return nil, fmt.Errorf("%w: connecting to %s: %v", ErrCapture, config.Addr, err)
	}
	r.connected = true

	if err := r.sdr.SetSampleRate(uint32(config.SampleRate)); err != nil {
		r.Close()
		return nil, fmt.Errorf("%w: setting sample rate: %v", ErrCapture, err)
	}
	// false selects manual gain; true hands control to the tuner AGC
	if err := r.sdr.SetGainMode(false); err != nil {
		r.Close()
		return nil, fmt.Errorf("%w: setting gain mode: %v", ErrCapture, err)
	}
	// rtl_tcp expects tenths of a dB
	if err := r.sdr.SetGain(uint32(config.GainDB * 10)); err != nil {
		r.Close()
		return nil, fmt.Errorf("%w: setting gain: %v", ErrCapture, err)
	}

	r.readyAt = time.Now().Add(config.Settle)
	r.stopped = make(chan struct{})
	go r.stream()

	logger.InfoContext(ctx, "connected to rtl_tcp",
		"addr", config.Addr,
		"sampleRate", config.SampleRate,
		"gainDb", config.GainDB)
	return r, nil
}

// SampleRate returns the configured tuner rate in samples per second.
func (r *RTLTCP) SampleRate() float64 {
	return r.config.SampleRate
}

// SetFrequency retunes. The next Read only sees samples that arrive after
// the settle period, so neither the old frequency nor the retune transient
// leaks into it.
func (r *RTLTCP) SetFrequency(ctx context.Context, hz float64) error {
	if hz <= 0 {
		return fmt.Errorf("%w: invalid frequency %.0f Hz", ErrCapture, hz)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.streamErr(); err != nil {
		return err
	}
	if err := r.sdr.SetCenterFreq(uint32(hz)); err != nil {
		return fmt.Errorf("%w: tuning to %.0f Hz: %v", ErrCapture, hz, err)
	}

	r.mu.Lock()
	r.readyAt = time.Now().Add(r.config.Settle)
	r.mu.Unlock()
	return nil
}

// Read captures duration worth of samples.
func (r *RTLTCP) Read(ctx context.Context, duration time.Duration) (radio.Buffer, error) {
	n := SampleCount(r.config.SampleRate, duration)
	if n < radio.MinSamples {
		return radio.Buffer{}, fmt.Errorf("%w: %s is too short at %.0f S/s", ErrCapture, duration, r.config.SampleRate)
	}
	if err := ctx.Err(); err != nil {
		return radio.Buffer{}, err
	}

	req := &captureRequest{buf: make([]byte, 2*n), done: make(chan struct{})}
	r.mu.Lock()
	switch {
	case r.err != nil:
		err := r.err
		r.mu.Unlock()
		return radio.Buffer{}, err
	case r.pending != nil:
		r.mu.Unlock()
		return radio.Buffer{}, fmt.Errorf("%w: a capture is already in progress", ErrCapture)
	}
	req.after = r.readyAt
	r.pending = req
	r.mu.Unlock()

	select {
	case <-req.done:
	case <-ctx.Done():
		r.mu.Lock()
		if r.pending == req {
			r.pending = nil
		}
		r.mu.Unlock()
		return radio.Buffer{}, ctx.Err()
	}

	if req.fill < len(req.buf) {
		if err := r.streamErr(); err != nil {
			return radio.Buffer{}, fmt.Errorf("%w (got %d of %d samples)", err, req.fill/2, n)
		}
		return radio.Buffer{}, fmt.Errorf("%w: short read of %d samples", ErrCapture, req.fill/2)
	}
	return radio.BufferFromCU8(req.buf, r.config.SampleRate)
}

func (r *RTLTCP) stream() {
	defer close(r.stopped)
	chunk := make([]byte, streamChunk)
	for {
		n, err := r.sdr.Read(chunk)
		if n > 0 {
			r.deliver(chunk[:n], time.Now())
		}
		if err != nil {
			r.mu.Lock()
			if r.err == nil {
				r.err = fmt.Errorf("%w: stream: %v", ErrCapture, err)
			}
			if r.pending != nil {
				close(r.pending.done)
				r.pending = nil
			}
			r.mu.Unlock()
			return
		}
	}
}

// deliver copies stream bytes into the pending capture, if any.
func (r *RTLTCP) deliver(data []byte, arrived time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := r.offset
	r.offset += int64(len(data))

	req := r.pending
	if req == nil || arrived.Before(req.after) {
		return
	}
	if req.fill == 0 && start%2 != 0 {
		data = data[1:]
	}
	req.fill += copy(req.buf[req.fill:], data)
	if req.fill == len(req.buf) {
		r.pending = nil
		close(req.done)
	}
}

func (r *RTLTCP) streamErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Close releases the connection and waits for the reader to stop.
func (r *RTLTCP) Close() error {
	if !r.connected {
		return nil
	}
	r.connected = false
	err := r.sdr.Close()
	if r.stopped != nil {
		<-r.stopped
	}
	return err
}
