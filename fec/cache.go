// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package fec

import (
	"sync"
	"time"

	"github.com/dusk-network/kadcast/encoding"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("process", "kadcast-fec")

// CacheConfig configures ChunkCache TTLs and pruning.
type CacheConfig struct {
	// PendingTTL bounds how long a Receiving entry may accumulate
	// symbols before it is pruned, shorter than ProcessedTTL.
	PendingTTL time.Duration

	// ProcessedTTL bounds how long a completed object is remembered
	// purely for deduplication.
	ProcessedTTL time.Duration

	// PruneInterval is how often the background pruning sweep runs.
	PruneInterval time.Duration
}

// entryState is the ChunkCache per-header state machine: Receiving can
// only transition to Processed or Poisoned, never back.
type entryState int

const (
	stateReceiving entryState = iota
	stateProcessed
	statePoisoned
)

type entry struct {
	mu         sync.Mutex
	state      entryState
	decoder    *Decoder
	firstSeen  time.Time
	touchedAt  time.Time
	forwarded  map[uint32]struct{}
}

// ChunkCache deduplicates broadcast chunks by ChunkHeader and bounds
// RaptorQ decoder memory via TTL eviction. A Processed entry suppresses
// both duplicate delivery to the user callback and duplicate forwarding.
type ChunkCache struct {
	cfg CacheConfig

	mu      sync.RWMutex
	entries map[encoding.ChunkHeader]*entry

	lastPrune time.Time
}

// NewChunkCache creates an empty cache.
func NewChunkCache(cfg CacheConfig) *ChunkCache {
	return &ChunkCache{
		cfg:     cfg,
		entries: make(map[encoding.ChunkHeader]*entry),
	}
}

// Outcome describes the result of feeding one chunk into the cache.
type Outcome int

const (
	// OutcomeDuplicate: this object was already fully processed; drop
	// silently.
	OutcomeDuplicate Outcome = iota
	// OutcomePoisoned: a prior chunk for this header failed RAY_ID
	// verification; further chunks are rejected.
	OutcomePoisoned
	// OutcomeAccumulating: chunk accepted, object not yet complete.
	OutcomeAccumulating
	// OutcomeComplete: this chunk completed the object; Frame holds the
	// verified, reassembled gossip frame.
	OutcomeComplete
)

// Feed submits a received ChunkedPayload. now is passed in explicitly so
// callers (and tests) control the clock rather than the cache calling
// time.Now() on every chunk. shouldForward reports whether this exact
// (header, ESI) symbol has not been forwarded by this node before: the
// height-bounded broadcast forwarder relays each distinct symbol exactly
// once, independent of whether the object as a whole has completed.
func (c *ChunkCache) Feed(chunk encoding.ChunkedPayload, now time.Time) (outcome Outcome, frame []byte, shouldForward bool) {
	header := chunk.Header()

	c.mu.Lock()
	e, ok := c.entries[header]
	if !ok {
		e = &entry{
			state:     stateReceiving,
			decoder:   NewDecoder(chunk.OTI),
			firstSeen: now,
			forwarded: make(map[uint32]struct{}),
		}
		c.entries[header] = e
	}
	c.mu.Unlock()

	outcome, frame, shouldForward = feedEntry(e, header, chunk, now)

	// Prune runs after the entry lock is released: pruneLocked acquires
	// each entry's lock in turn, including this one.
	c.maybePrune(now)

	return outcome, frame, shouldForward
}

func feedEntry(e *entry, header encoding.ChunkHeader, chunk encoding.ChunkedPayload, now time.Time) (Outcome, []byte, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case stateProcessed:
		return OutcomeDuplicate, nil, false
	case statePoisoned:
		return OutcomePoisoned, nil, false
	}

	_, alreadyForwarded := e.forwarded[chunk.ESI]
	shouldForward := !alreadyForwarded
	e.forwarded[chunk.ESI] = struct{}{}

	e.touchedAt = now

	frame, complete, err := e.decoder.Feed(chunk.ESI, chunk.Symbol)
	if err != nil {
		log.WithError(err).WithField("ray_id", header.RayID).Warn("fec decode error")
		e.state = statePoisoned
		return OutcomePoisoned, nil, false
	}

	if !complete {
		return OutcomeAccumulating, nil, shouldForward
	}

	if RayID(frame) != header.RayID {
		log.WithField("ray_id", header.RayID).Warn("fec ray_id mismatch on completed object")
		e.state = statePoisoned
		return OutcomePoisoned, nil, false
	}

	e.state = stateProcessed
	e.decoder = nil
	e.touchedAt = now

	return OutcomeComplete, frame, shouldForward
}

// maybePrune is called lazily on every Feed and runs the eviction sweep
// only when PruneInterval has elapsed since the previous sweep.
func (c *ChunkCache) maybePrune(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if now.Sub(c.lastPrune) < c.cfg.PruneInterval {
		return
	}
	c.lastPrune = now

	c.pruneLocked(now)
}

// Prune forces an eviction sweep; used by the maintainer's periodic tick
// in addition to the lazy on-insert sweep.
func (c *ChunkCache) Prune(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneLocked(now)
}

func (c *ChunkCache) pruneLocked(now time.Time) {
	for header, e := range c.entries {
		e.mu.Lock()
		var ttl time.Duration
		switch e.state {
		case stateReceiving, statePoisoned:
			ttl = c.cfg.PendingTTL
		case stateProcessed:
			ttl = c.cfg.ProcessedTTL
		}
		expired := now.Sub(e.touchedAt) > ttl
		e.mu.Unlock()

		if expired {
			delete(c.entries, header)
		}
	}
}

// Len reports the current number of tracked headers, for diagnostics and
// tests.
func (c *ChunkCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
