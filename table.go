// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package kadcast

import (
	"errors"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/dusk-network/kadcast/peer"
	"github.com/sirupsen/logrus"
)

var tableLog = logrus.WithField("process", "kadcast-table")

// errInsertSelf is the Reason for rejecting an insert of the local peer.
var errInsertSelf = errors.New("kadcast: cannot insert self into routing table")

// InsertOutcome classifies the result of RoutingTable.Insert.
type InsertOutcome int

const (
	// Inserted: the bucket had room; the peer was appended as MRU.
	Inserted InsertOutcome = iota
	// Updated: the peer already existed; it was refreshed to MRU.
	Updated
	// PendingEviction: the bucket is full; a liveness probe against its
	// LRU entry has been armed. The caller must PING PendingLRU.
	PendingEviction
	// Rejected: the peer was not inserted. Reason explains why.
	Rejected
)

// InsertResult is the outcome of RoutingTable.Insert.
type InsertResult struct {
	Outcome    InsertOutcome
	PendingLRU peer.Info // valid when Outcome == PendingEviction
	Reason     error     // valid when Outcome == Rejected
}

// RoutingTable is the fixed 128-bucket Kademlia routing table. A single
// RWMutex guards all buckets: writes are short critical sections, and
// the lock is never held across an I/O suspension point.
type RoutingTable struct {
	mu   sync.RWMutex
	self peer.Info
	k    int

	buckets [peer.NumBuckets]bucket
}

// NewRoutingTable creates an empty table owning the local peer identity.
func NewRoutingTable(self peer.Info, k int) *RoutingTable {
	return &RoutingTable{self: self, k: k}
}

// Self returns the local peer's own identity.
func (t *RoutingTable) Self() peer.Info {
	return t.self
}

func (t *RoutingTable) bucketIndex(id peer.ID) int {
	d := peer.Distance(t.self.ID.Bytes, id.Bytes)
	return peer.BucketIndex(d)
}

// Insert attempts to add p to the table. A peer at distance 0 from self
// (i.e. self) is never inserted.
func (t *RoutingTable) Insert(p peer.Info, now time.Time) InsertResult {
	idx := t.bucketIndex(p.ID)
	if idx < 0 {
		return InsertResult{Outcome: Rejected, Reason: errInsertSelf}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	b := &t.buckets[idx]

	if i := b.indexOf(p.ID); i >= 0 {
		b.entries[i].info = p
		b.entries[i].lastSeen = now
		b.moveToFront(i)
		b.lastActivity = now
		return InsertResult{Outcome: Updated}
	}

	if len(b.entries) < t.k {
		b.pushFront(peerEntry{info: p, lastSeen: now})
		b.lastActivity = now
		return InsertResult{Outcome: Inserted}
	}

	if b.pending != nil {
		return InsertResult{Outcome: Rejected, Reason: ErrRoutingFull}
	}

	lru, ok := b.lru()
	if !ok {
		// unreachable: len(b.entries) == t.k > 0 above
		return InsertResult{Outcome: Rejected, Reason: ErrRoutingFull}
	}

	b.pending = &pendingProbe{lru: lru.info, candidate: p, startedAt: now}

	return InsertResult{Outcome: PendingEviction, PendingLRU: lru.info}
}

// Touch refreshes id to MRU position and bumps its bucket's
// last_activity, if present. Returns false if the peer is unknown.
func (t *RoutingTable) Touch(id peer.ID, now time.Time) bool {
	idx := t.bucketIndex(id)
	if idx < 0 {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	b := &t.buckets[idx]
	i := b.indexOf(id)
	if i < 0 {
		return false
	}

	b.entries[i].lastSeen = now
	b.moveToFront(i)
	b.lastActivity = now

	return true
}

// ResolvePendingPong handles a PONG from senderID during a pending
// eviction probe: if senderID matches the bucket's probed LRU, the
// candidate is dropped and the LRU is refreshed as MRU. Returns true if
// a pending probe was resolved this way.
func (t *RoutingTable) ResolvePendingPong(senderID peer.ID, now time.Time) bool {
	idx := t.bucketIndex(senderID)
	if idx < 0 {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	b := &t.buckets[idx]
	if b.pending == nil || !b.pending.lru.ID.Equal(senderID) {
		return false
	}

	b.pending = nil

	if i := b.indexOf(senderID); i >= 0 {
		b.entries[i].lastSeen = now
		b.moveToFront(i)
		b.lastActivity = now
	}

	return true
}

// ExpirePending evicts a bucket's LRU and promotes its pending candidate
// if the probe has been outstanding longer than evictAfter. Returns the
// evicted peer and ok=true if an eviction occurred.
func (t *RoutingTable) ExpirePending(bucketIdx int, now time.Time, evictAfter time.Duration) (evicted peer.Info, ok bool) {
	if bucketIdx < 0 || bucketIdx >= peer.NumBuckets {
		return peer.Info{}, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	b := &t.buckets[bucketIdx]
	if b.pending == nil || now.Sub(b.pending.startedAt) < evictAfter {
		return peer.Info{}, false
	}

	probe := b.pending
	b.pending = nil

	if i := b.indexOf(probe.lru.ID); i >= 0 {
		b.removeAt(i)
	}

	b.pushFront(peerEntry{info: probe.candidate, lastSeen: now})
	b.lastActivity = now

	tableLog.WithField("bucket", bucketIdx).WithField("evicted", probe.lru.String()).
		WithField("promoted", probe.candidate.String()).Debug("pending eviction resolved by timeout")

	return probe.lru, true
}

// PendingProbes returns the bucket indices that currently have an
// outstanding liveness probe older than evictAfter, for the maintainer
// to resolve.
func (t *RoutingTable) PendingProbes(now time.Time, evictAfter time.Duration) []int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var due []int
	for i := range t.buckets {
		if p := t.buckets[i].pending; p != nil && now.Sub(p.startedAt) >= evictAfter {
			due = append(due, i)
		}
	}
	return due
}

// Closest returns up to n peers globally closest to target by XOR
// distance, stable-sorted so ties (which cannot occur between distinct
// IDs, but can among insertion order within a bucket) break toward
// lower bucket index / insertion order.
func (t *RoutingTable) Closest(target peer.ID, n int) []peer.Info {
	t.mu.RLock()
	all := make([]peer.Info, 0, n*2)
	for i := range t.buckets {
		for _, e := range t.buckets[i].entries {
			all = append(all, e.info)
		}
	}
	t.mu.RUnlock()

	sort.SliceStable(all, func(i, j int) bool {
		di := peer.Distance(all[i].ID.Bytes, target.Bytes)
		dj := peer.Distance(all[j].ID.Bytes, target.Bytes)
		return peer.Less(di, dj)
	})

	if len(all) > n {
		all = all[:n]
	}
	return all
}

// AliveNodes returns up to n random peers touched within the last
// aliveThreshold.
func (t *RoutingTable) AliveNodes(n int, now time.Time, aliveThreshold time.Duration) []peer.Info {
	t.mu.RLock()
	var alive []peer.Info
	for i := range t.buckets {
		for _, e := range t.buckets[i].entries {
			if now.Sub(e.lastSeen) <= aliveThreshold {
				alive = append(alive, e.info)
			}
		}
	}
	t.mu.RUnlock()

	rand.Shuffle(len(alive), func(i, j int) { alive[i], alive[j] = alive[j], alive[i] })

	if len(alive) > n {
		alive = alive[:n]
	}
	return alive
}

// StaleNodes returns every peer whose last_seen is older than ttl,
// for the maintainer to directly PING even in buckets that never fill
// enough to trigger a pending-eviction probe.
func (t *RoutingTable) StaleNodes(now time.Time, ttl time.Duration) []peer.Info {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var stale []peer.Info
	for i := range t.buckets {
		for _, e := range t.buckets[i].entries {
			if now.Sub(e.lastSeen) > ttl {
				stale = append(stale, e.info)
			}
		}
	}
	return stale
}

// IdleBuckets returns the indices of buckets whose last_activity is
// older than threshold and which hold at least one peer (an empty
// bucket has nothing useful to refresh toward).
func (t *RoutingTable) IdleBuckets(now time.Time, threshold time.Duration) []int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var idle []int
	for i := range t.buckets {
		b := &t.buckets[i]
		if len(b.entries) == 0 {
			continue
		}
		if now.Sub(b.lastActivity) > threshold {
			idle = append(idle, i)
		}
	}
	return idle
}

// Size returns the total number of peers across all buckets.
func (t *RoutingTable) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var n int
	for i := range t.buckets {
		n += len(t.buckets[i].entries)
	}
	return n
}

// NeedsBootstrap reports whether fewer than minPeers peers are reachable
// globally.
func (t *RoutingTable) NeedsBootstrap(minPeers int) bool {
	return t.Size() < minPeers
}

// BucketPeers returns a defensive copy of bucket i's current entries,
// MRU-first, for the broadcast writer to select delegates from.
func (t *RoutingTable) BucketPeers(i int) []peer.Info {
	if i < 0 || i >= peer.NumBuckets {
		return nil
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	b := &t.buckets[i]
	out := make([]peer.Info, len(b.entries))
	for j, e := range b.entries {
		out[j] = e.info
	}
	return out
}

// RandomIDInBucket returns a random 128-bit ID at distance within bucket
// i's range from self, for the maintainer's bucket-refresh lookups.
func RandomIDInBucket(self peer.ID, i int) peer.ID {
	var id peer.ID
	id.Bytes = self.Bytes

	// Flip the bit at position i (counting from the LSB) to guarantee
	// the highest differing bit lands in bucket i, then randomize all
	// lower-order bits.
	byteIdx := peer.IDSize - 1 - i/8
	bitIdx := uint(i % 8)

	id.Bytes[byteIdx] ^= 1 << bitIdx

	for b := byteIdx + 1; b < peer.IDSize; b++ {
		id.Bytes[b] = byte(rand.Intn(256))
	}

	// Randomize bits below bitIdx within byteIdx too.
	if bitIdx > 0 {
		mask := byte(1<<bitIdx) - 1
		id.Bytes[byteIdx] = (id.Bytes[byteIdx] &^ mask) | (byte(rand.Intn(256)) & mask)
	}

	return id
}
