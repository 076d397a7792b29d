// Package device owns device node lifecycle around chardev buffers.
//
// Ownership boundary:
// - buffer allocation and teardown (Lifecycle)
// - named node registry
// - node naming rules
package device
