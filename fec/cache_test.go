// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package fec_test

import (
	"testing"
	"time"

	"github.com/dusk-network/kadcast/encoding"
	"github.com/dusk-network/kadcast/fec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeCfg() fec.EncodeConfig {
	return fec.EncodeConfig{
		MaxUDPLen:           1296,
		FrameHeaderOverhead: 64,
		RedundancyFactor:    0.3,
		MinRepairPackets:    1,
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payload := make([]byte, 50_000)
	for i := range payload {
		payload[i] = byte(i)
	}

	chunks, err := fec.Encode(payload, encodeCfg())
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	cache := fec.NewChunkCache(fec.CacheConfig{
		PendingTTL:    time.Minute,
		ProcessedTTL:  time.Hour,
		PruneInterval: time.Hour,
	})

	now := time.Unix(0, 0)

	var frame []byte
	for _, c := range chunks {
		outcome, f, forward := cache.Feed(c, now)
		assert.True(t, forward, "each symbol must be forwardable the first time it is seen")
		if outcome == fec.OutcomeComplete {
			frame = f
			break
		}
		assert.Equal(t, fec.OutcomeAccumulating, outcome)
	}

	require.NotNil(t, frame)
	assert.Equal(t, payload, frame)
}

func TestDedupSuppressesRepeatDelivery(t *testing.T) {
	payload := []byte("deduplicate me please, this is the gossip frame content")

	chunks, err := fec.Encode(payload, encodeCfg())
	require.NoError(t, err)

	cache := fec.NewChunkCache(fec.CacheConfig{
		PendingTTL:    time.Minute,
		ProcessedTTL:  time.Hour,
		PruneInterval: time.Hour,
	})

	now := time.Unix(0, 0)

	completions := 0
	for _, c := range chunks {
		outcome, _, _ := cache.Feed(c, now)
		if outcome == fec.OutcomeComplete {
			completions++
		}
	}
	require.Equal(t, 1, completions)

	// Replaying the exact same chunks again must dedup, never redeliver,
	// and must never ask the forwarder to relay them again.
	for _, c := range chunks {
		outcome, _, forward := cache.Feed(c, now)
		assert.Equal(t, fec.OutcomeDuplicate, outcome)
		assert.False(t, forward)
	}
}

func TestCachePrunesExpiredEntries(t *testing.T) {
	payload := []byte("short payload")
	chunks, err := fec.Encode(payload, encodeCfg())
	require.NoError(t, err)

	cache := fec.NewChunkCache(fec.CacheConfig{
		PendingTTL:    time.Second,
		ProcessedTTL:  time.Second,
		PruneInterval: 0,
	})

	now := time.Unix(0, 0)
	for _, c := range chunks {
		cache.Feed(c, now)
	}
	assert.Equal(t, 1, cache.Len())


	later := now.Add(time.Hour)
	cache.Prune(later)
	assert.Equal(t, 0, cache.Len())
}

func TestRayIDExcludesHeight(t *testing.T) {
	frame := []byte("same gossip frame content")
	id1 := fec.RayID(frame)
	id2 := fec.RayID(frame)
	assert.Equal(t, id1, id2)

	other := []byte("different gossip frame content")
	assert.NotEqual(t, id1, fec.RayID(other))
}

func TestChunkedPayloadHeaderRoundTrip(t *testing.T) {
	payload := []byte("chunk header test")
	chunks, err := fec.Encode(payload, encodeCfg())
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	h1 := chunks[0].Header()
	encoded := chunks[0].Encode()

	decoded, err := encoding.DecodeChunkedPayload(encoded)
	require.NoError(t, err)

	assert.Equal(t, h1, decoded.Header())
	assert.Equal(t, chunks[0].ESI, decoded.ESI)
	assert.Equal(t, chunks[0].Symbol, decoded.Symbol)
}
