// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package kadcast

import (
	"time"

	"github.com/dusk-network/kadcast/peer"
)

// peerEntry is one routing-table slot: a verified peer plus the last
// time it was seen in any PING/PONG/FIND_NODES/NODES exchange.
type peerEntry struct {
	info     peer.Info
	lastSeen time.Time
}

// pendingProbe tracks the single in-flight LRU-liveness PING a bucket
// may have outstanding while a new candidate waits to take its place.
type pendingProbe struct {
	lru       peer.Info
	candidate peer.Info
	startedAt time.Time
}

// bucket holds up to K peers at one XOR-distance range, MRU at index 0,
// LRU at the last index, plus a bounded pending-replacement slot.
type bucket struct {
	entries      []peerEntry // front (0) = MRU, back = LRU
	pending      *pendingProbe
	lastActivity time.Time
}

func (b *bucket) indexOf(id peer.ID) int {
	for i := range b.entries {
		if b.entries[i].info.ID.Equal(id) {
			return i
		}
	}
	return -1
}

// moveToFront relocates entries[i] to the front (MRU position).
func (b *bucket) moveToFront(i int) {
	if i <= 0 {
		return
	}
	e := b.entries[i]
	copy(b.entries[1:i+1], b.entries[0:i])
	b.entries[0] = e
}

func (b *bucket) removeAt(i int) peerEntry {
	e := b.entries[i]
	b.entries = append(b.entries[:i], b.entries[i+1:]...)
	return e
}

func (b *bucket) pushFront(e peerEntry) {
	b.entries = append(b.entries, peerEntry{})
	copy(b.entries[1:], b.entries[:len(b.entries)-1])
	b.entries[0] = e
}

func (b *bucket) lru() (peerEntry, bool) {
	if len(b.entries) == 0 {
		return peerEntry{}, false
	}
	return b.entries[len(b.entries)-1], true
}
