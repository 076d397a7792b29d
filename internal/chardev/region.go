package chardev

import "fmt"

// Dest is the caller side of a read. CopyToUser must copy all of p or fail.
type Dest interface {
	CopyToUser(p []byte) error
}

// Source is the caller side of a write. CopyFromUser must fill all of p or fail.
type Source interface {
	CopyFromUser(p []byte) error
}

// UserSlice is a caller region backed by a byte slice. A transfer that does not
// fit inside the slice faults instead of being truncated.
type UserSlice []byte

func (u UserSlice) CopyToUser(p []byte) error {
	if len(p) > len(u) {
		return fmt.Errorf("%w: destination holds %d bytes, need %d", ErrTransferFault, len(u), len(p))
	}
	copy(u, p)
	return nil
}

func (u UserSlice) CopyFromUser(p []byte) error {
	if len(p) > len(u) {
		return fmt.Errorf("%w: source holds %d bytes, need %d", ErrTransferFault, len(u), len(p))
	}
	copy(p, u)
	return nil
}
