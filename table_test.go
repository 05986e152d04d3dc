// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package kadcast

import (
	"net"
	"testing"
	"time"

	"github.com/dusk-network/kadcast/peer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkPeer(t *testing.T, port uint16) peer.Info {
	t.Helper()
	ip := net.ParseIP("127.0.0.1")
	id, err := peer.Mint(port, ip, 1)
	require.NoError(t, err)
	return peer.Info{IP: ip, Port: port, ID: id}
}

func TestInsertRejectsSelf(t *testing.T) {
	self := mkPeer(t, 1000)
	rt := NewRoutingTable(self, 20)

	res := rt.Insert(self, time.Now())
	assert.Equal(t, Rejected, res.Outcome)
}

func TestInsertFillsAndUpdatesBucket(t *testing.T) {
	self := mkPeer(t, 1000)
	rt := NewRoutingTable(self, 20)

	p := mkPeer(t, 1001)
	now := time.Now()

	res := rt.Insert(p, now)
	require.Equal(t, Inserted, res.Outcome)

	res = rt.Insert(p, now.Add(time.Second))
	assert.Equal(t, Updated, res.Outcome)
	assert.Equal(t, 1, rt.Size())
}

func TestBucketIndexInvariant(t *testing.T) {
	self := mkPeer(t, 1000)
	rt := NewRoutingTable(self, 20)

	for port := uint16(1001); port < 1050; port++ {
		p := mkPeer(t, port)
		rt.Insert(p, time.Now())
	}

	rt.mu.RLock()
	for i := range rt.buckets {
		for _, e := range rt.buckets[i].entries {
			d := peer.Distance(self.ID.Bytes, e.info.ID.Bytes)
			assert.Equal(t, i, peer.BucketIndex(d), "peer %s not in expected bucket", e.info.String())
		}
	}
	rt.mu.RUnlock()
}

func TestPendingEvictionLifecycleTimeout(t *testing.T) {
	self := mkPeer(t, 1000)
	rt := NewRoutingTable(self, 1) // K=1 forces eviction on second insert into the same bucket

	// Ports 1001, 1003 and 1004 all derive IDs in the same bucket
	// relative to port 1000's ID.
	lru := mkPeer(t, 1001)
	now := time.Now()
	require.Equal(t, Inserted, rt.Insert(lru, now).Outcome)

	candidate := mkPeer(t, 1003)
	res := rt.Insert(candidate, now)
	require.Equal(t, PendingEviction, res.Outcome)
	assert.True(t, res.PendingLRU.IsEqual(lru))

	// A second candidate is rejected while a probe is outstanding.
	third := mkPeer(t, 1004)
	res2 := rt.Insert(third, now)
	assert.Equal(t, Rejected, res2.Outcome)

	// Before T_evict: nothing happens.
	evicted, ok := rt.ExpirePending(bucketIndexFor(t, self, lru), now.Add(time.Millisecond), 5*time.Second)
	_ = evicted
	assert.False(t, ok)

	// After T_evict: LRU is evicted, candidate promoted.
	evicted, ok = rt.ExpirePending(bucketIndexFor(t, self, lru), now.Add(6*time.Second), 5*time.Second)
	require.True(t, ok)
	assert.True(t, evicted.IsEqual(lru))
	assert.Equal(t, 1, rt.Size())

	closest := rt.Closest(candidate.ID, 1)
	require.Len(t, closest, 1)
	assert.True(t, closest[0].IsEqual(candidate))
}

func TestPendingEvictionResolvedByPong(t *testing.T) {
	self := mkPeer(t, 1000)
	rt := NewRoutingTable(self, 1)

	lru := mkPeer(t, 1001)
	now := time.Now()
	rt.Insert(lru, now)

	candidate := mkPeer(t, 1003) // same bucket as lru
	res := rt.Insert(candidate, now)
	require.Equal(t, PendingEviction, res.Outcome)

	resolved := rt.ResolvePendingPong(lru.ID, now.Add(time.Second))
	assert.True(t, resolved)

	// LRU survives; candidate is not in the table.
	assert.Equal(t, 1, rt.Size())
	closest := rt.Closest(lru.ID, 1)
	require.Len(t, closest, 1)
	assert.True(t, closest[0].IsEqual(lru))
}

func bucketIndexFor(t *testing.T, self, p peer.Info) int {
	t.Helper()
	d := peer.Distance(self.ID.Bytes, p.ID.Bytes)
	return peer.BucketIndex(d)
}

func TestClosestOrdersByDistance(t *testing.T) {
	self := mkPeer(t, 1000)
	rt := NewRoutingTable(self, 20)

	var peers []peer.Info
	for port := uint16(1001); port < 1020; port++ {
		p := mkPeer(t, port)
		rt.Insert(p, time.Now())
		peers = append(peers, p)
	}

	target := peers[0].ID
	closest := rt.Closest(target, 5)
	require.Len(t, closest, 5)

	for i := 1; i < len(closest); i++ {
		dPrev := peer.Distance(closest[i-1].ID.Bytes, target.Bytes)
		dCur := peer.Distance(closest[i].ID.Bytes, target.Bytes)
		assert.False(t, peer.Less(dCur, dPrev), "closest() must be non-decreasing by distance")
	}
}

func TestIdleBucketsReportsOnlyNonEmptyStale(t *testing.T) {
	self := mkPeer(t, 1000)
	rt := NewRoutingTable(self, 20)

	p := mkPeer(t, 1001)
	past := time.Now().Add(-time.Hour)
	rt.Insert(p, past)

	idle := rt.IdleBuckets(time.Now(), time.Minute)
	assert.Contains(t, idle, bucketIndexFor(t, self, p))
}

func TestAliveNodesRespectsThreshold(t *testing.T) {
	self := mkPeer(t, 1000)
	rt := NewRoutingTable(self, 20)

	fresh := mkPeer(t, 1001)
	stale := mkPeer(t, 1002)

	now := time.Now()
	rt.Insert(fresh, now)
	rt.Insert(stale, now.Add(-time.Hour))

	alive := rt.AliveNodes(10, now, time.Minute)
	require.Len(t, alive, 1)
	assert.True(t, alive[0].IsEqual(fresh))
}
