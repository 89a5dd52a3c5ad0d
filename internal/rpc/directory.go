package rpc

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dreamware/hermes/internal/herrors"
)

// Directory resolves a node id to the host:port its rpc.Server listens on.
// Entries are parsed from config.RPCConfig.Hosts, each formatted
// "nodeID=host:port" (spec.md §6's "rpc.hosts").
type Directory struct {
	addrs map[uint32]string
}

// NewDirectory parses entries of the form "nodeID=host:port".
func NewDirectory(entries []string) (*Directory, error) {
	addrs := make(map[uint32]string, len(entries))
	for _, e := range entries {
		nodeIDStr, addr, ok := strings.Cut(e, "=")
		if !ok {
			return nil, fmt.Errorf("rpc: malformed directory entry %q, want nodeID=host:port", e)
		}
		nodeID, err := strconv.ParseUint(nodeIDStr, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("rpc: malformed node id in directory entry %q: %w", e, err)
		}
		addrs[uint32(nodeID)] = addr
	}
	return &Directory{addrs: addrs}, nil
}

// Lookup returns the host:port for nodeID, or herrors.NotFound if this
// directory has no entry for it.
func (d *Directory) Lookup(nodeID uint32) (string, error) {
	addr, ok := d.addrs[nodeID]
	if !ok {
		return "", herrors.New(herrors.NotFound, "rpc: no directory entry for node")
	}
	return addr, nil
}

// NodeIDs returns every node id this directory has an address for, in no
// particular order, used by internal/health to build its probe set.
func (d *Directory) NodeIDs() []uint32 {
	ids := make([]uint32, 0, len(d.addrs))
	for id := range d.addrs {
		ids = append(ids, id)
	}
	return ids
}
