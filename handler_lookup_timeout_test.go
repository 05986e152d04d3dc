// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package kadcast

import (
	"context"
	"testing"
	"time"

	"github.com/dusk-network/kadcast/fec"
	"github.com/dusk-network/kadcast/peer"
	"github.com/stretchr/testify/require"
)

// TestAdvanceLookupTimesOutUnresponsivePeer exercises the silently-dropped
// FIND_NODES case: the only frontier peer never answers, so the lookup
// must rely on QueryTimeout, not a response, to terminate.
func TestAdvanceLookupTimesOutUnresponsivePeer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ListenAddress = "127.0.0.1:0"
	cfg.PoWDifficulty = 1
	cfg.QueryTimeout = 30 * time.Millisecond

	socket, err := NewSocket(cfg.ListenAddress, cfg.Network, cfg.Channel.OutboundCapacity)
	require.NoError(t, err)
	t.Cleanup(func() { socket.Close() })

	self := peer.Info{IP: socket.LocalAddr().IP, Port: uint16(socket.LocalAddr().Port)}
	self.ID, err = peer.Mint(self.Port, self.IP, cfg.PoWDifficulty)
	require.NoError(t, err)

	table := NewRoutingTable(self, cfg.Bucket.K)
	writer := NewWriter(socket, table, cfg)
	cache := fec.NewChunkCache(fec.CacheConfig{
		PendingTTL:    cfg.RaptorCache.PendingTTL,
		ProcessedTTL:  cfg.RaptorCache.ProcessedTTL,
		PruneInterval: cfg.RaptorCache.PruneInterval,
	})
	notifier := NewNotifier(cfg.Channel)
	handler := NewHandler(table, writer, cache, notifier, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go socket.RunSender(ctx)

	// A peer at an address nobody listens on: FindNodes enqueues and
	// "sends" successfully, but no NODES response will ever arrive.
	unresponsive := mkPeer(t, 59999)

	target := mkPeer(t, 1).ID
	l := newLookup(target, []peer.Info{unresponsive}, cfg.Bucket.K, Alpha, time.Now())
	handler.lookups.register(l)

	handler.advanceLookup(l)

	require.True(t, l.Wait(2*time.Second), "lookup must terminate via QueryTimeout even though the only peer never responds")

	results := l.Results()
	require.Len(t, results, 1)
}
