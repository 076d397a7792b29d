// Package chardev owns the fixed-capacity device buffer and its positional transfer contract.
//
// Ownership boundary:
// - buffer allocation shape and capacity
// - bounded read/write with caller-owned cursor
// - null-termination after writes
// - caller/device transfer regions and fault reporting
package chardev
