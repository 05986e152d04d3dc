// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package kadcast

import (
	"testing"
	"time"

	"github.com/dusk-network/kadcast/peer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupSelectQueryableRespectsAlpha(t *testing.T) {
	target := mkPeer(t, 1000).ID

	var seed []peer.Info
	for port := uint16(2001); port < 2010; port++ {
		seed = append(seed, mkPeer(t, port))
	}

	l := newLookup(target, seed, 20, 3, time.Now())

	first := l.selectQueryable(3)
	assert.Len(t, first, 3)

	for _, p := range first {
		l.markQueried(p.ID)
	}

	second := l.selectQueryable(3)
	assert.Len(t, second, 3)

	for _, a := range first {
		for _, b := range second {
			assert.False(t, a.ID.Equal(b.ID), "selectQueryable must not repeat an already-queried peer")
		}
	}
}

func TestLookupMergeReportsImprovement(t *testing.T) {
	target := mkPeer(t, 1000).ID
	seed := []peer.Info{mkPeer(t, 2001)}

	l := newLookup(target, seed, 1, 3, time.Now())

	closer := mkPeer(t, 2002)
	improved := l.merge(seed[0].ID, []peer.Info{closer})

	results := l.Results()
	require.Len(t, results, 1)
	assert.True(t, results[0].IsEqual(seed[0]) || results[0].IsEqual(closer))
	// With K=1 the frontier is already full, so merge reports an
	// improvement exactly when the advertised peer displaced the seed.
	assert.Equal(t, results[0].IsEqual(closer), improved)
}

func TestLookupRoundCompleteRequiresTerminalStatus(t *testing.T) {
	target := mkPeer(t, 1000).ID
	a := mkPeer(t, 2001)
	b := mkPeer(t, 2002)

	l := newLookup(target, []peer.Info{a, b}, 2, 3, time.Now())
	assert.False(t, l.roundComplete())

	l.markQueried(a.ID)
	assert.False(t, l.roundComplete())

	l.merge(a.ID, nil)
	assert.False(t, l.roundComplete())

	l.markFailed(b.ID)
	assert.True(t, l.roundComplete())
}

func TestLookupFinishClosesDoneChannelOnce(t *testing.T) {
	target := mkPeer(t, 1000).ID
	l := newLookup(target, nil, 1, 3, time.Now())

	l.finish()
	l.finish() // must not panic on double-close

	assert.True(t, l.Wait(time.Millisecond))
}

func TestLookupManagerRoutesOutstandingResponder(t *testing.T) {
	target := mkPeer(t, 1000).ID
	responder := mkPeer(t, 2001)

	l := newLookup(target, []peer.Info{responder}, 1, 3, time.Now())

	m := newLookupManager()
	m.register(l)
	m.trackOutstanding(responder.ID, l)

	found, ok := m.lookupFor(responder.ID)
	require.True(t, ok)
	assert.Same(t, l, found)

	m.untrackOutstanding(responder.ID)
	_, ok = m.lookupFor(responder.ID)
	assert.False(t, ok)

	m.remove(l)
}
