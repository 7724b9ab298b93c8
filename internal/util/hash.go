// Package util provides shared utility functions.
package util

import (
	"hash/fnv"
	"net"
)

// SessionIDFromAddrs computes a 4-byte hash from a connection's local and
// remote addresses. The hash is used solely for log identification and does
// not need to be reversible.
func SessionIDFromAddrs(local, remote net.Addr) uint32 {
	h := fnv.New32a()
	h.Write([]byte(local.String()))
	h.Write([]byte(remote.String()))
	return h.Sum32()
}
