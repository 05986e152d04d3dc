// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package kadcast

import (
	"sync"
	"time"

	"github.com/dusk-network/kadcast/encoding"
)

// rayDedup is the non-FEC broadcast counterpart to fec.ChunkCache: with
// FEC disabled there is no decoder state to dedupe against, so forwarded
// RayIDs are remembered directly for ProcessedTTL.
type rayDedup struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[[encoding.RayIDSize]byte]time.Time
}

func newRayDedup(ttl time.Duration) *rayDedup {
	return &rayDedup{
		ttl:  ttl,
		seen: make(map[[encoding.RayIDSize]byte]time.Time),
	}
}

// seenBefore reports whether rayID was already recorded within ttl. When
// it was not, it records rayID as seen as of now; a repeat within ttl
// leaves the original timestamp in place.
func (d *rayDedup) seenBefore(rayID [encoding.RayIDSize]byte, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if t, ok := d.seen[rayID]; ok && now.Sub(t) < d.ttl {
		return true
	}
	d.seen[rayID] = now
	return false
}

// prune evicts entries older than ttl.
func (d *rayDedup) prune(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for id, t := range d.seen {
		if now.Sub(t) > d.ttl {
			delete(d.seen, id)
		}
	}
}
