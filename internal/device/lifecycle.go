package device

import (
	"errors"

	"github.com/danmuck/memdev/internal/chardev"
)

var ErrBufferNil = errors.New("device: buffer is nil")

// Lifecycle allocates and releases the buffer behind a device node.
type Lifecycle interface {
	Init(capacity int) (*chardev.Buffer, error)
	Teardown(buf *chardev.Buffer) error
}

// MemoryLifecycle keeps buffers in process memory. Teardown zeroes the buffer
// so nothing survives past the node.
type MemoryLifecycle struct{}

var _ Lifecycle = MemoryLifecycle{}

func (MemoryLifecycle) Init(capacity int) (*chardev.Buffer, error) {
	return chardev.New(capacity)
}

func (MemoryLifecycle) Teardown(buf *chardev.Buffer) error {
	if buf == nil {
		return ErrBufferNil
	}
	buf.Wipe()
	return nil
}
