package client

import (
	"io"
	"os"
)

// DefaultDevicePath is where the kernel module creates its node.
const DefaultDevicePath = "/dev/my_device"

// Device is an open device session.
type Device interface {
	io.ReadWriteCloser
}

// OpenFile opens a device node directly.
func OpenFile(path string) (Device, error) {
	if path == "" {
		path = DefaultDevicePath
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0o666)
	if err != nil {
		return nil, err
	}
	return f, nil
}
