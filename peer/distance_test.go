// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package peer_test

import (
	"testing"

	"github.com/dusk-network/kadcast/peer"
	"github.com/stretchr/testify/assert"
)

func TestBucketIndexZeroDistance(t *testing.T) {
	var d [peer.IDSize]byte
	assert.Equal(t, -1, peer.BucketIndex(d))
}

func TestBucketIndexHighBit(t *testing.T) {
	var d [peer.IDSize]byte
	d[0] = 0x80 // most significant bit of the whole value

	assert.Equal(t, peer.NumBuckets-1, peer.BucketIndex(d))
}

func TestBucketIndexLowBit(t *testing.T) {
	var d [peer.IDSize]byte
	d[peer.IDSize-1] = 0x01 // least significant bit

	assert.Equal(t, 0, peer.BucketIndex(d))
}

func TestDistanceIsSymmetric(t *testing.T) {
	var a, b [peer.IDSize]byte
	a[3] = 0x5A
	b[3] = 0xA5

	d1 := peer.Distance(a, b)
	d2 := peer.Distance(b, a)
	assert.Equal(t, d1, d2)
}

func TestDistanceRangeInvariant(t *testing.T) {
	// Every distance d falls into exactly one bucket i where
	// 2^i <= d < 2^(i+1), which BucketIndex computes directly as the
	// highest set bit position.
	var d [peer.IDSize]byte
	d[peer.IDSize-1] = 0b00010110 // highest set bit at position 4 (value 16..31)

	idx := peer.BucketIndex(d)
	assert.Equal(t, 4, idx)
}

func TestLessOrdersBigEndian(t *testing.T) {
	var a, b [peer.IDSize]byte
	a[0] = 0x01
	b[0] = 0x02

	assert.True(t, peer.Less(a, b))
	assert.False(t, peer.Less(b, a))
}
