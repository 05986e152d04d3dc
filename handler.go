// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package kadcast

import (
	"errors"
	"net"
	"time"

	"github.com/dusk-network/kadcast/encoding"
	"github.com/dusk-network/kadcast/fec"
	"github.com/dusk-network/kadcast/peer"
	"github.com/sirupsen/logrus"
)

var handlerLog = logrus.WithField("process", "kadcast-handler")

// Handler is the message state machine: it validates inbound datagrams,
// maintains the routing table, drives recursive lookups, and dedups and
// forwards broadcasts. It holds no goroutine of its own; the reader
// calls Handle for every datagram it reads.
type Handler struct {
	table    *RoutingTable
	writer   *Writer
	cache    *fec.ChunkCache
	lookups  *lookupManager
	notifier *Notifier
	cfg      Config
	rawSeen  *rayDedup
}

// NewHandler wires a Handler's collaborators together.
func NewHandler(table *RoutingTable, writer *Writer, cache *fec.ChunkCache, notifier *Notifier, cfg Config) *Handler {
	return &Handler{
		table:    table,
		writer:   writer,
		cache:    cache,
		lookups:  newLookupManager(),
		notifier: notifier,
		cfg:      cfg,
		rawSeen:  newRayDedup(cfg.RaptorCache.ProcessedTTL),
	}
}

// pruneRawDedup evicts expired entries from the non-FEC broadcast
// dedup set; called by the maintainer alongside the ChunkCache prune.
func (h *Handler) pruneRawDedup(now time.Time) {
	h.rawSeen.prune(now)
}

// Handle validates and dispatches one inbound datagram.
func (h *Handler) Handle(addr *net.UDPAddr, payload []byte, now time.Time) {
	frame, err := encoding.Unmarshal(payload)
	if err != nil {
		if errors.Is(err, encoding.ErrUnknownMessageType) {
			return
		}
		handlerLog.WithError(err).WithField("addr", addr.String()).Debug("dropping malformed datagram")
		return
	}

	sender := peer.Info{
		IP:   addr.IP,
		Port: frame.Header.SenderPort,
		ID:   peer.ID{Bytes: frame.Header.ID, Nonce: frame.Header.Nonce},
	}

	if frame.Header.NetworkID != h.cfg.NetworkID {
		handlerLog.WithError(ErrUntrusted).WithField("sender", sender.String()).Debug("dropping datagram from foreign network")
		return
	}

	if h.cfg.blocked(sender.IP) {
		handlerLog.WithField("sender", sender.String()).Debug("dropping datagram from blocklisted address")
		return
	}

	if !h.cfg.VersionCompatible(frame.Header.Version) {
		handlerLog.WithError(ErrUntrusted).WithField("sender", sender.String()).
			WithField("version", frame.Header.Version).Debug("dropping datagram with incompatible version")
		return
	}

	if !peer.Verify(sender.ID, sender.Port, sender.IP, h.cfg.PoWDifficulty) {
		handlerLog.WithError(ErrUntrusted).WithField("sender", sender.String()).Debug("dropping untrusted message: PoW/identity check failed")
		return
	}

	h.ingest(sender, now)

	switch frame.Type {
	case encoding.PingMsg:
		h.handlePing(sender)
	case encoding.PongMsg:
		h.handlePong(sender, now)
	case encoding.FindNodesMsg:
		h.handleFindNodes(sender, frame.Payload.(encoding.FindNodesPayload))
	case encoding.NodesMsg:
		h.handleNodes(sender, frame.Payload.(encoding.NodesPayload), now)
	case encoding.BroadcastMsg:
		h.handleBroadcast(sender, frame.Payload.(encoding.BroadcastPayload), now)
	}
}

// ingest inserts or refreshes sender in the routing table, arming a
// liveness probe against the bucket's LRU when the bucket is full.
func (h *Handler) ingest(sender peer.Info, now time.Time) {
	res := h.table.Insert(sender, now)

	switch res.Outcome {
	case Inserted:
		h.notifier.deliverEvent(PeerEvent{Kind: PeerDiscovered, Peer: sender})
	case PendingEviction:
		if err := h.writer.Ping(res.PendingLRU); err != nil {
			handlerLog.WithError(err).WithField("lru", res.PendingLRU.String()).Debug("failed to ping pending-eviction lru")
		}
	}
}

func (h *Handler) handlePing(sender peer.Info) {
	if err := h.writer.Pong(sender); err != nil {
		handlerLog.WithError(err).WithField("sender", sender.String()).Debug("failed to send pong")
	}
}

func (h *Handler) handlePong(sender peer.Info, now time.Time) {
	h.table.ResolvePendingPong(sender.ID, now)
}

func (h *Handler) handleFindNodes(sender peer.Info, req encoding.FindNodesPayload) {
	target := peer.ID{Bytes: req.Target}
	closest := h.table.Closest(target, h.cfg.Bucket.K)

	if err := h.writer.Nodes(sender, closest); err != nil {
		handlerLog.WithError(err).WithField("sender", sender.String()).Debug("failed to answer find_nodes")
	}
}

func (h *Handler) handleNodes(sender peer.Info, resp encoding.NodesPayload, now time.Time) {
	for _, p := range resp.Peers {
		if p.ID.Equal(h.table.Self().ID) {
			continue
		}
		// NODES entries carry no PoW nonce, so only the binding of the
		// advertised ID to the advertised address is checked here. An
		// entry that passes is inserted without a PoW check and may take
		// a free bucket slot or arm a pending-eviction probe.
		if peer.Derive(p.Port, p.IP) != p.ID.Bytes {
			continue
		}
		h.ingest(p, now)
	}

	lookup, ok := h.lookups.lookupFor(sender.ID)
	if !ok {
		return
	}
	h.lookups.untrackOutstanding(sender.ID)

	lookup.mu.Lock()
	lookup.merge(sender.ID, resp.Peers)
	done := lookup.roundComplete()
	lookup.mu.Unlock()

	if done {
		h.lookups.remove(lookup)
		lookup.finish()
		return
	}

	h.advanceLookup(lookup)
}

func (h *Handler) handleBroadcast(sender peer.Info, payload encoding.BroadcastPayload, now time.Time) {
	if !h.cfg.Fec.Enabled {
		h.handleRawBroadcast(sender, payload, now)
		return
	}

	chunk, err := encoding.DecodeChunkedPayload(payload.GossipFrame)
	if err != nil {
		handlerLog.WithError(err).WithField("sender", sender.String()).Debug("dropping malformed broadcast chunk")
		return
	}

	outcome, frame, shouldForward := h.cache.Feed(chunk, now)

	if outcome == fec.OutcomeComplete {
		h.notifier.deliverMessage(Message{Payload: frame, Sender: sender, Height: payload.Height})
	}

	if !shouldForward || payload.Height == 0 {
		return
	}

	delegates := h.writer.fetchDelegates(payload.Height)
	if len(delegates) == 0 {
		return
	}

	if err := h.writer.forwardChunk(chunk, delegates); err != nil {
		handlerLog.WithError(err).Debug("broadcast forward partially failed")
	}
}

// handleRawBroadcast handles the non-FEC path: payload.GossipFrame is the
// complete gossip frame, sent as a single BroadcastPayload with no
// RaptorQ chunking. Deduplication still runs off RayID since the same
// frame is forwarded unchanged at decreasing heights.
func (h *Handler) handleRawBroadcast(sender peer.Info, payload encoding.BroadcastPayload, now time.Time) {
	rayID := fec.RayID(payload.GossipFrame)
	if h.rawSeen.seenBefore(rayID, now) {
		return
	}

	h.notifier.deliverMessage(Message{Payload: payload.GossipFrame, Sender: sender, Height: payload.Height})

	if payload.Height == 0 {
		return
	}

	delegates := h.writer.fetchDelegates(payload.Height)
	if len(delegates) == 0 {
		return
	}

	if err := h.writer.sendRaw(payload.GossipFrame, delegates); err != nil {
		handlerLog.WithError(err).Debug("raw broadcast forward partially failed")
	}
}

// StartLookup seeds a new recursive FIND_NODES lookup toward target from
// the local table's closest-K and issues the first α-parallel round.
func (h *Handler) StartLookup(target peer.ID, now time.Time) *Lookup {
	seed := h.table.Closest(target, h.cfg.Bucket.K)
	l := newLookup(target, seed, h.cfg.Bucket.K, Alpha, now)
	h.lookups.register(l)

	if len(seed) == 0 {
		l.finish()
		h.lookups.remove(l)
		return l
	}

	h.advanceLookup(l)
	return l
}

// advanceLookup issues FIND_NODES to the next batch of unqueried
// frontier peers, up to the lookup's α parallelism.
func (h *Handler) advanceLookup(l *Lookup) {
	l.mu.Lock()
	next := l.selectQueryable(l.alpha)
	for _, p := range next {
		l.markQueried(p.ID)
	}
	complete := len(next) == 0 && l.roundComplete()
	l.mu.Unlock()

	if complete {
		h.lookups.remove(l)
		l.finish()
		return
	}

	for _, p := range next {
		h.lookups.trackOutstanding(p.ID, l)
		if err := h.writer.FindNodes(p, l.target); err != nil {
			handlerLog.WithError(err).WithField("peer", p.String()).Debug("failed to send find_nodes")
			h.lookups.untrackOutstanding(p.ID)
			l.mu.Lock()
			l.markFailed(p.ID)
			l.mu.Unlock()
			continue
		}
		h.scheduleQueryTimeout(l, p.ID)
	}
}

// scheduleQueryTimeout arms T_query for one outstanding FIND_NODES: if no
// NODES response has untracked id by the time it fires, the peer is
// marked failed and the lookup is advanced past it. byOutstanding still
// pointing at this exact lookup is the guard against a stale timer firing
// after the peer either answered or was reused by a different lookup.
func (h *Handler) scheduleQueryTimeout(l *Lookup, id peer.ID) {
	time.AfterFunc(h.cfg.QueryTimeout, func() {
		if outstanding, ok := h.lookups.lookupFor(id); !ok || outstanding != l {
			return
		}
		h.lookups.untrackOutstanding(id)

		l.mu.Lock()
		l.markFailed(id)
		done := l.roundComplete()
		l.mu.Unlock()

		if done {
			h.lookups.remove(l)
			l.finish()
			return
		}

		h.advanceLookup(l)
	})
}
