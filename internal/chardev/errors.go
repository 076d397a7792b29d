package chardev

import "errors"

var (
	ErrTransferFault   = errors.New("chardev: transfer fault")
	ErrInvalidPosition = errors.New("chardev: invalid position")
	ErrInvalidCapacity = errors.New("chardev: invalid capacity")
)
