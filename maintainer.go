// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package kadcast

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

var maintainerLog = logrus.WithField("process", "kadcast-maintainer")

// Maintainer runs the periodic background work that keeps the routing
// table fresh and bounds FEC cache memory: resolving overdue liveness
// probes, refreshing idle buckets, retriggering bootstrap when the
// table is under-populated, and pruning the chunk cache.
type Maintainer struct {
	table   *RoutingTable
	writer  *Writer
	handler *Handler
	cache   pruner
	cfg     Config

	bootstrap func(ctx context.Context)
}

// pruner is the subset of *fec.ChunkCache the maintainer depends on,
// kept narrow so this file does not need to import fec for anything
// else.
type pruner interface {
	Prune(now time.Time)
}

// NewMaintainer builds a Maintainer. bootstrap is invoked whenever the
// table falls below Config.Bucket.MinPeers live peers; it is expected to
// re-resolve and PING the configured bootstrap nodes.
func NewMaintainer(table *RoutingTable, writer *Writer, handler *Handler, cache pruner, cfg Config, bootstrap func(ctx context.Context)) *Maintainer {
	return &Maintainer{table: table, writer: writer, handler: handler, cache: cache, cfg: cfg, bootstrap: bootstrap}
}

// Run ticks every Config.MaintenanceInterval until ctx is cancelled.
func (m *Maintainer) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.MaintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.tick(ctx, now)
		}
	}
}

func (m *Maintainer) tick(ctx context.Context, now time.Time) {
	m.resolveProbes(now)
	m.refreshIdleBuckets(now)
	m.pingStale(now)
	m.cache.Prune(now)
	m.handler.pruneRawDedup(now)

	live := m.table.AliveNodes(m.cfg.Bucket.MinPeers, now, m.cfg.AliveThreshold)
	if len(live) < m.cfg.Bucket.MinPeers && m.bootstrap != nil {
		maintainerLog.Debug("table under-populated, retriggering bootstrap")
		m.bootstrap(ctx)
	}
}

// resolveProbes evicts or promotes every bucket whose pending-eviction
// probe has been outstanding longer than NodeEvictAfter.
func (m *Maintainer) resolveProbes(now time.Time) {
	due := m.table.PendingProbes(now, m.cfg.Bucket.NodeEvictAfter)
	for _, idx := range due {
		evicted, ok := m.table.ExpirePending(idx, now, m.cfg.Bucket.NodeEvictAfter)
		if ok {
			m.handler.notifier.deliverEvent(PeerEvent{Kind: PeerEvicted, Peer: evicted})
		}
	}
}

// refreshIdleBuckets starts a lookup for a random ID inside every bucket
// that has gone untouched longer than BucketTTL.
func (m *Maintainer) refreshIdleBuckets(now time.Time) {
	self := m.table.Self()
	for _, idx := range m.table.IdleBuckets(now, m.cfg.Bucket.BucketTTL) {
		target := RandomIDInBucket(self.ID, idx)
		maintainerLog.WithField("bucket", idx).Debug("refreshing idle bucket")
		m.handler.StartLookup(target, now)
	}
}

// pingStale sends a direct liveness PING to every peer untouched longer
// than NodeTTL, independent of bucket fullness. A PONG refreshes the
// peer's last_seen; a peer that stays silent is not removed by this step
// and remains in its bucket until a pending-eviction probe replaces it.
func (m *Maintainer) pingStale(now time.Time) {
	for _, p := range m.table.StaleNodes(now, m.cfg.Bucket.NodeTTL) {
		if err := m.writer.Ping(p); err != nil {
			maintainerLog.WithError(err).WithField("peer", p.String()).Debug("stale peer ping failed")
		}
	}
}
