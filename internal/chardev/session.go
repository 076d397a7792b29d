package chardev

import (
	"io"

	"github.com/rs/zerolog/log"
)

// Session is one open -> transfers -> release lifecycle against a Buffer.
// It owns the cursor. A Session is not safe for concurrent use; calls from a
// single session are expected to be sequential.
type Session struct {
	buf *Buffer
	pos int64
}

var _ io.ReadWriteCloser = (*Session)(nil)

// Open starts a session at position 0. Opening never fails and leaves the
// buffer untouched.
func (b *Buffer) Open() *Session {
	log.Debug().Int("capacity", b.Capacity()).Msg("device opened")
	return &Session{buf: b}
}

// Release ends the session. It always succeeds.
func (s *Session) Release() error {
	log.Debug().Int64("position", s.pos).Msg("device closed")
	return nil
}

func (s *Session) Close() error {
	return s.Release()
}

func (s *Session) Position() int64 {
	return s.pos
}

func (s *Session) Buffer() *Buffer {
	return s.buf
}

// ReadTo reads up to count bytes at the session cursor into dst.
func (s *Session) ReadTo(dst Dest, count int) (int, error) {
	return s.buf.Read(dst, count, &s.pos)
}

// WriteFrom writes up to count bytes from src at the session cursor.
func (s *Session) WriteFrom(src Source, count int) (int, error) {
	return s.buf.Write(src, count, &s.pos)
}

// Read implements io.Reader. It reports io.EOF once the cursor reaches capacity.
func (s *Session) Read(p []byte) (int, error) {
	n, err := s.ReadTo(UserSlice(p), len(p))
	if err != nil {
		return n, err
	}
	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Write implements io.Writer. A write clamped by capacity returns
// io.ErrShortWrite along with the bytes that were stored.
func (s *Session) Write(p []byte) (int, error) {
	n, err := s.WriteFrom(UserSlice(p), len(p))
	if err != nil {
		return n, err
	}
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}
