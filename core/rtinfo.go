// Copyright (C) 2024-2026 Intel Corporation. SPDX-License-Identifier: Apache-2.0

package core

import "slices"

// RTInfo is append-only provenance metadata attached to a node: the friendly
// names of the source nodes it was produced from during rewrites. There is no
// read contract inside the transformation core; downstream tooling consumes it.
type RTInfo struct {
	producedFrom []string
}

// ProducedFrom returns the accumulated provenance record.
func (ri *RTInfo) ProducedFrom() []string {
	return slices.Clone(ri.producedFrom)
}

func (ri *RTInfo) add(name string) {
	if !slices.Contains(ri.producedFrom, name) {
		ri.producedFrom = append(ri.producedFrom, name)
	}
}

// CopyRuntimeInfo merges the provenance of every node in from -- their own
// names plus anything they already accumulated -- onto to. Rewrites call this
// with every internal node consumed by a match, not just the root.
func CopyRuntimeInfo(from []*Node, to *Node) {
	info := to.RTInfo()
	for _, src := range from {
		if src == nil || src == to {
			continue
		}
		info.add(src.Name())
		for _, name := range src.rtInfo.producedFrom {
			info.add(name)
		}
	}
}
