package chardev

import (
	"errors"
	"fmt"
	"sync"
)

// DefaultCapacity matches the size of the original device buffer.
const DefaultCapacity = 1024

// Buffer is a fixed-capacity byte store addressed by caller-owned cursors.
//
// Copies into and out of the store hold mu, so concurrent sessions never
// observe a half-applied transfer. Each session's cursor stays with the caller.
type Buffer struct {
	mu   sync.RWMutex
	data []byte
}

// New allocates a zeroed buffer of the given capacity.
func New(capacity int) (*Buffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}
	return &Buffer{data: make([]byte, capacity)}, nil
}

// Capacity returns C. It never changes after New.
func (b *Buffer) Capacity() int {
	return len(b.data)
}

// Read copies up to count bytes starting at *pos into dst and advances *pos by
// the number of bytes copied. A position at or past capacity yields 0 bytes.
// On a transfer fault nothing is copied and *pos is left alone.
func (b *Buffer) Read(dst Dest, count int, pos *int64) (int, error) {
	if *pos < 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidPosition, *pos)
	}
	n := clampTransfer(count, int64(len(b.data))-*pos)
	if n == 0 {
		return 0, nil
	}

	out := make([]byte, n)
	b.mu.RLock()
	copy(out, b.data[*pos:*pos+int64(n)])
	b.mu.RUnlock()

	if err := dst.CopyToUser(out); err != nil {
		return 0, transferFault(err)
	}
	*pos += int64(n)
	return n, nil
}

// Write copies up to count bytes from src into the buffer at *pos, clamped to
// the remaining space, then writes a terminating zero: right after the data
// when it fits, otherwise at the last byte. The terminator is written even when
// nothing else is.
func (b *Buffer) Write(src Source, count int, pos *int64) (int, error) {
	if *pos < 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidPosition, *pos)
	}
	capacity := int64(len(b.data))
	n := clampTransfer(count, capacity-*pos)

	in := make([]byte, n)
	if n > 0 {
		if err := src.CopyFromUser(in); err != nil {
			return 0, transferFault(err)
		}
	}

	end := *pos + int64(n)
	b.mu.Lock()
	if n > 0 {
		copy(b.data[*pos:end], in)
	}
	if end < capacity {
		b.data[end] = 0
	} else {
		b.data[capacity-1] = 0
	}
	b.mu.Unlock()

	*pos = end
	return n, nil
}

// Snapshot returns a copy of the whole buffer.
func (b *Buffer) Snapshot() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

// Wipe zeroes the buffer.
func (b *Buffer) Wipe() {
	b.mu.Lock()
	clear(b.data)
	b.mu.Unlock()
}

// clampTransfer returns max(0, min(count, available)).
func clampTransfer(count int, available int64) int {
	if count <= 0 || available <= 0 {
		return 0
	}
	if int64(count) < available {
		return count
	}
	return int(available)
}

func transferFault(err error) error {
	if errors.Is(err, ErrTransferFault) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransferFault, err)
}
