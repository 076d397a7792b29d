// Package client opens memdev devices for user-space callers.
//
// Ownership boundary:
// - device file access (kernel-backed nodes)
// - daemon sessions over HTTP
// - mapping daemon errors onto Go errors
package client
