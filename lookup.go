// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package kadcast

import (
	"sort"
	"sync"
	"time"

	"github.com/dusk-network/kadcast/peer"
	"github.com/google/uuid"
)

// queryStatus tracks one frontier peer's participation in a lookup
// round.
type queryStatus int

const (
	statusUnqueried queryStatus = iota
	statusQueried
	statusResponded
	statusFailed
)

type frontierPeer struct {
	info   peer.Info
	status queryStatus
}

// Lookup is one in-flight recursive FIND_NODES lookup, registered under a
// correlator and held as explicit in-memory state rather than one task
// per hop. Inbound NODES responses are routed to it by the responding
// peer's ID (lookupManager.byOutstanding), not by the correlator.
type Lookup struct {
	mu sync.Mutex

	correlator string
	target     peer.ID
	k, alpha   int

	frontier map[peer.ID]*frontierPeer

	done      bool
	startedAt time.Time
	doneCh    chan struct{}
}

// newLookup seeds a lookup's frontier from the local table's closest-K.
func newLookup(target peer.ID, seed []peer.Info, k, alpha int, now time.Time) *Lookup {
	l := &Lookup{
		correlator: uuid.NewString(),
		target:     target,
		k:          k,
		alpha:      alpha,
		frontier:   make(map[peer.ID]*frontierPeer, len(seed)),
		startedAt:  now,
		doneCh:     make(chan struct{}),
	}

	for _, p := range seed {
		l.frontier[p.ID] = &frontierPeer{info: p, status: statusUnqueried}
	}

	return l
}

// closestK returns the current frontier's K closest entries, sorted by
// distance to target.
func (l *Lookup) closestK() []*frontierPeer {
	all := make([]*frontierPeer, 0, len(l.frontier))
	for _, fp := range l.frontier {
		all = append(all, fp)
	}

	sort.SliceStable(all, func(i, j int) bool {
		di := peer.Distance(all[i].info.ID.Bytes, l.target.Bytes)
		dj := peer.Distance(all[j].info.ID.Bytes, l.target.Bytes)
		return peer.Less(di, dj)
	})

	if len(all) > l.k {
		all = all[:l.k]
	}
	return all
}

// selectQueryable returns up to n unqueried frontier peers from among
// the current closest-K, for the next round of α-parallel FIND_NODES.
func (l *Lookup) selectQueryable(n int) []peer.Info {
	var out []peer.Info
	for _, fp := range l.closestK() {
		if fp.status == statusUnqueried {
			out = append(out, fp.info)
			if len(out) == n {
				break
			}
		}
	}
	return out
}

// markQueried transitions a frontier peer to statusQueried.
func (l *Lookup) markQueried(id peer.ID) {
	if fp, ok := l.frontier[id]; ok {
		fp.status = statusQueried
	}
}

// markFailed transitions a frontier peer to statusFailed on query
// timeout. It does not touch the peer's routing-table entry.
func (l *Lookup) markFailed(id peer.ID) {
	if fp, ok := l.frontier[id]; ok {
		fp.status = statusFailed
	}
}

// merge folds newly-advertised peers into the frontier, marking the
// responder as responded. Returns true if a new peer was added while the
// closest-K held fewer than K entries, or if a new peer is strictly
// closer than the current worst of the closest-K. Lookup termination
// does not use this result; it is decided by roundComplete.
func (l *Lookup) merge(responder peer.ID, advertised []peer.Info) (improved bool) {
	if fp, ok := l.frontier[responder]; ok {
		fp.status = statusResponded
	}

	before := l.closestK()
	var worst [peer.IDSize]byte
	if len(before) > 0 {
		worst = peer.Distance(before[len(before)-1].info.ID.Bytes, l.target.Bytes)
	}

	for _, p := range advertised {
		if _, known := l.frontier[p.ID]; known {
			continue
		}

		l.frontier[p.ID] = &frontierPeer{info: p, status: statusUnqueried}

		d := peer.Distance(p.ID.Bytes, l.target.Bytes)
		if len(before) < l.k || peer.Less(d, worst) {
			improved = true
		}
	}

	return improved
}

// roundComplete reports whether every peer in the current closest-K has
// left the unqueried/queried state (i.e. each has responded or failed).
func (l *Lookup) roundComplete() bool {
	for _, fp := range l.closestK() {
		if fp.status == statusUnqueried || fp.status == statusQueried {
			return false
		}
	}
	return true
}

// Results returns the current closest-K peers, for callers that want the
// lookup's outcome after termination.
func (l *Lookup) Results() []peer.Info {
	l.mu.Lock()
	defer l.mu.Unlock()

	closest := l.closestK()
	out := make([]peer.Info, len(closest))
	for i, fp := range closest {
		out[i] = fp.info
	}
	return out
}

// Wait blocks until the lookup terminates or timeout elapses, and
// reports whether the lookup terminated.
func (l *Lookup) Wait(timeout time.Duration) bool {
	select {
	case <-l.doneCh:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (l *Lookup) finish() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.done {
		l.done = true
		close(l.doneCh)
	}
}

// lookupManager tracks in-flight lookups and routes inbound NODES
// responses back to the lookup awaiting that sender's reply.
type lookupManager struct {
	mu sync.Mutex

	byCorrelator map[string]*Lookup
	byOutstanding map[peer.ID]*Lookup // peer currently queried -> its lookup
}

func newLookupManager() *lookupManager {
	return &lookupManager{
		byCorrelator:  make(map[string]*Lookup),
		byOutstanding: make(map[peer.ID]*Lookup),
	}
}

func (m *lookupManager) register(l *Lookup) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byCorrelator[l.correlator] = l
}

func (m *lookupManager) trackOutstanding(id peer.ID, l *Lookup) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byOutstanding[id] = l
}

func (m *lookupManager) untrackOutstanding(id peer.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byOutstanding, id)
}

func (m *lookupManager) lookupFor(responder peer.ID) (*Lookup, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.byOutstanding[responder]
	return l, ok
}

func (m *lookupManager) remove(l *Lookup) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byCorrelator, l.correlator)
}
