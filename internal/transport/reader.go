package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/Rrens/streamchat/internal/domain"
)

const (
	defaultReadBuffer = 4096
	opReadStream      = "read stream"
)

// Option configures a Reader
type Option func(*Reader)

// WithIdleTimeout fails the stream when no fragment arrives within d.
// Zero disables the timeout.
func WithIdleTimeout(d time.Duration) Option {
	return func(r *Reader) {
		r.idleTimeout = d
	}
}

// WithReadBuffer sets the size of a single body read
func WithReadBuffer(size int) Option {
	return func(r *Reader) {
		if size > 0 {
			r.bufSize = size
		}
	}
}

// WithStrictUTF8 rejects malformed UTF-8 instead of replacing it with U+FFFD
func WithStrictUTF8(strict bool) Option {
	return func(r *Reader) {
		r.strict = strict
	}
}

type readResult struct {
	text string
	err  error
}

// Reader turns a chunked response body into decoded text fragments.
// Fragments always hold whole characters: a multi-byte character split
// across reads is carried over to the next fragment. The sequence is lazy,
// finite and non-restartable; io.EOF marks its end. Next must not be called
// concurrently.
type Reader struct {
	body        io.ReadCloser
	idleTimeout time.Duration
	bufSize     int
	strict      bool

	results   chan readResult
	stop      chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
	closeErr  error

	err error
}

// NewReader wraps body. The body is released when the sequence ends, fails,
// or Close is called.
func NewReader(body io.ReadCloser, opts ...Option) *Reader {
	r := &Reader{
		body:    body,
		bufSize: defaultReadBuffer,
		results: make(chan readResult),
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Next returns the next fragment, io.EOF at the end of the stream, or a
// *domain.TransportError. Once the sequence has ended every call returns
// the same terminal error.
func (r *Reader) Next(ctx context.Context) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	r.startOnce.Do(func() { go r.pump() })

	var idle <-chan time.Time
	if r.idleTimeout > 0 {
		timer := time.NewTimer(r.idleTimeout)
		defer timer.Stop()
		idle = timer.C
	}

	select {
	case res, ok := <-r.results:
		if !ok {
			return "", r.finish(io.EOF)
		}
		if res.err != nil {
			return "", r.finish(res.err)
		}
		return res.text, nil
	case <-idle:
		return "", r.finish(&domain.TransportError{
			Op:   opReadStream,
			Kind: domain.TransportTimeout,
			Err:  fmt.Errorf("no data received for %s", r.idleTimeout),
		})
	case <-ctx.Done():
		return "", r.finish(&domain.TransportError{
			Op:   opReadStream,
			Kind: domain.TransportRead,
			Err:  ctx.Err(),
		})
	}
}

// Close releases the body. It is safe to call more than once.
func (r *Reader) Close() error {
	r.closeOnce.Do(func() {
		close(r.stop)
		r.closeErr = r.body.Close()
	})
	return r.closeErr
}

func (r *Reader) finish(err error) error {
	r.err = err
	r.Close()
	return err
}

func (r *Reader) decoder() transform.Transformer {
	if r.strict {
		return encoding.UTF8Validator
	}
	return unicode.UTF8.NewDecoder()
}

// pump reads the body until it ends, handing fragments to Next one at a time
func (r *Reader) pump() {
	defer close(r.results)

	src := transform.NewReader(r.body, r.decoder())
	buf := make([]byte, r.bufSize)
	var offset int64

	for {
		n, err := src.Read(buf)
		if n > 0 {
			offset += int64(n)
			select {
			case r.results <- readResult{text: string(buf[:n])}:
			case <-r.stop:
				return
			}
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			return
		}

		select {
		case r.results <- readResult{err: classifyReadError(err, offset)}:
		case <-r.stop:
		}
		return
	}
}

func classifyReadError(err error, offset int64) error {
	if errors.Is(err, encoding.ErrInvalidUTF8) {
		return &domain.TransportError{
			Op:   opReadStream,
			Kind: domain.TransportDecode,
			Err:  &domain.DecodeError{Offset: offset, Err: err},
		}
	}
	return &domain.TransportError{Op: opReadStream, Kind: domain.TransportRead, Err: err}
}
