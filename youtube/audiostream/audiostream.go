// Package audiostream exposes a live PCM audio stream read from a remote
// encoded source. The decode step itself (ffmpeg or any other decoder) is an
// external collaborator: this package only specifies the producer/consumer
// contract a decoder writes into and a caller reads out of.
package audiostream

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/ytget/ytdlp/v2/internal/logger"
)

// SampleFormat mirrors FFmpeg's AVSampleFormat values closely enough for
// callers to describe what a decoder will produce.
type SampleFormat int

const (
	SampleFormatU8 SampleFormat = iota
	SampleFormatS16
	SampleFormatS32
	SampleFormatFloat
	SampleFormatDouble
	SampleFormatU8Planar
	SampleFormatS16Planar
	SampleFormatS32Planar
	SampleFormatFloatPlanar
	SampleFormatDoublePlanar
	SampleFormatS64
	SampleFormatS64Planar
)

// Options configures the shape of the PCM data a Stream carries.
type Options struct {
	SampleRate int          // e.g. 44100, 48000, 96000
	Channels   int          // 1 = mono, 2 = stereo
	Format     SampleFormat // defaults to SampleFormatS16
	// BufferSize bounds the ring buffer capacity in bytes; 0 uses the default.
	BufferSize int
}

const defaultBufferSize = 1 << 20 // 1 MiB

func (o Options) withDefaults() Options {
	if o.SampleRate == 0 {
		o.SampleRate = 48000
	}
	if o.Channels == 0 {
		o.Channels = 2
	}
	if o.BufferSize <= 0 {
		o.BufferSize = defaultBufferSize
	}
	return o
}

// ErrClosed is returned by Write after the stream has been closed or
// cancelled, and by Read once the buffer has drained past a closed stream.
var ErrClosed = errors.New("audiostream: stream closed")

// Stream is a fixed-capacity byte ring buffer with one producer (a decoder
// calling Write) and one consumer (a caller calling Read, satisfying
// io.Reader). Read blocks until data is available or the stream closes;
// Write blocks until space frees up or the stream closes.
type Stream struct {
	opts Options
	log  *logger.ComponentLogger

	mu     sync.Mutex
	notify *sync.Cond
	buf    []byte
	r, w   int // read/write cursors into buf, mod len(buf)
	n      int // number of bytes currently buffered

	closed bool
	err    error // sticky error surfaced to both Read and Write once set

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Stream with the given options. The returned context.Context
// can be used by a producer to observe cancellation via ctx.Done(); calling
// Close or Cancel cancels it.
func New(opts Options) *Stream {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Stream{
		opts:   opts,
		log:    logger.WithComponent(logger.ComponentApp),
		buf:    make([]byte, opts.BufferSize),
		ctx:    ctx,
		cancel: cancel,
	}
	s.notify = sync.NewCond(&s.mu)
	return s
}

// Options reports the sample format/rate/channels this stream carries.
func (s *Stream) Options() Options { return s.opts }

// Context is cancelled when the stream is closed or cancelled; a producer
// should select on ctx.Done() alongside its own I/O to stop promptly.
func (s *Stream) Context() context.Context { return s.ctx }

// Write copies p into the ring buffer, blocking while the buffer is full.
// It implements the producer side of the contract; a decoder calls this
// once per decoded chunk.
func (s *Stream) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	written := 0
	for written < len(p) {
		for s.n == len(s.buf) && !s.closed {
			s.notify.Wait()
		}
		if s.closed {
			if written > 0 {
				return written, nil
			}
			return 0, ErrClosed
		}
		free := len(s.buf) - s.n
		chunk := len(p) - written
		if chunk > free {
			chunk = free
		}
		for i := 0; i < chunk; i++ {
			s.buf[s.w] = p[written+i]
			s.w = (s.w + 1) % len(s.buf)
		}
		s.n += chunk
		written += chunk
		s.notify.Broadcast()
	}
	return written, nil
}

// Read drains buffered PCM bytes into p, blocking until at least one byte
// is available or the stream is closed/cancelled.
func (s *Stream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.n == 0 && !s.closed {
		s.notify.Wait()
	}
	if s.n == 0 && s.closed {
		if s.err != nil {
			return 0, s.err
		}
		return 0, io.EOF
	}
	read := 0
	for read < len(p) && s.n > 0 {
		p[read] = s.buf[s.r]
		s.r = (s.r + 1) % len(s.buf)
		s.n--
		read++
	}
	s.notify.Broadcast()
	return read, nil
}

// Fail marks the stream closed with a sticky error, surfaced to Read once
// the buffer drains. A producer calls this when the remote fetch or decode
// fails irrecoverably.
func (s *Stream) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	s.cancel()
	s.notify.Broadcast()
	s.log.Debug("audio stream failed", map[string]interface{}{"error": err.Error()})
}

// Close marks the stream closed with no error; pending reads drain
// remaining buffered bytes then observe io.EOF, pending writes observe
// ErrClosed.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()
	s.notify.Broadcast()
	return nil
}

// Cancel is an alias for Close kept for callers that think in terms of
// cancellation slots rather than stream lifecycles.
func (s *Stream) Cancel() { _ = s.Close() }
