// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package kadcast

import (
	"bytes"
	"fmt"
	"math/rand"

	"github.com/dusk-network/kadcast/encoding"
	"github.com/dusk-network/kadcast/fec"
	"github.com/dusk-network/kadcast/peer"
	"github.com/sirupsen/logrus"
)

var writerLog = logrus.WithField("process", "kadcast-writer")

// Writer builds and sends wire frames. It owns no network state beyond
// the socket: header fields are derived fresh from the routing table's
// self peer on every call so a rotated identity (not currently
// supported, but kept structurally possible) would be picked up.
type Writer struct {
	socket *Socket
	table  *RoutingTable
	cfg    Config
}

// NewWriter builds a Writer bound to socket and table.
func NewWriter(socket *Socket, table *RoutingTable, cfg Config) *Writer {
	return &Writer{socket: socket, table: table, cfg: cfg}
}

func (w *Writer) header() encoding.Header {
	self := w.table.Self()
	return encoding.Header{
		ID:         self.ID.Bytes,
		Nonce:      self.ID.Nonce,
		SenderPort: self.Port,
		NetworkID:  w.cfg.NetworkID,
		Version:    w.cfg.Version,
	}
}

func (w *Writer) send(dst peer.Info, msgType encoding.MsgType, payload interface{}) error {
	var buf bytes.Buffer
	if err := encoding.MarshalBinary(msgType, w.header(), payload, &buf); err != nil {
		return fmt.Errorf("%w: marshal: %v", ErrTransport, err)
	}

	if buf.Len() > w.cfg.Network.MTU {
		return fmt.Errorf("%w: frame of %d bytes exceeds mtu %d", ErrTransport, buf.Len(), w.cfg.Network.MTU)
	}

	if !w.socket.Enqueue(dst.UDPAddr(), buf.Bytes()) {
		return ErrTransport
	}
	return nil
}

// Ping sends a liveness probe to dst.
func (w *Writer) Ping(dst peer.Info) error {
	return w.send(dst, encoding.PingMsg, nil)
}

// Pong answers a PING.
func (w *Writer) Pong(dst peer.Info) error {
	return w.send(dst, encoding.PongMsg, nil)
}

// FindNodes requests the peers dst knows closest to target.
func (w *Writer) FindNodes(dst peer.Info, target peer.ID) error {
	return w.send(dst, encoding.FindNodesMsg, encoding.FindNodesPayload{Target: target.Bytes})
}

// Nodes answers a FIND_NODES with the given peer set.
func (w *Writer) Nodes(dst peer.Info, peers []peer.Info) error {
	return w.send(dst, encoding.NodesMsg, encoding.NodesPayload{Peers: peers})
}

func (w *Writer) sendChunk(dst peer.Info, height byte, chunk encoding.ChunkedPayload) error {
	return w.send(dst, encoding.BroadcastMsg, encoding.BroadcastPayload{
		Height:      height,
		GossipFrame: chunk.Encode(),
	})
}

// WriteToPoint sends gossipFrame to a single peer at height 0: it is
// never re-forwarded by the recipient. Used for direct, non-broadcast
// delivery (e.g. answering a request with a large payload) while still
// going through the FEC pipeline so oversized frames survive one UDP
// hop.
func (w *Writer) WriteToPoint(dst peer.Info, gossipFrame []byte) error {
	return w.broadcastTo(gossipFrame, []delegateAt{{height: 0, peer: dst}})
}

// Broadcast disseminates gossipFrame starting at height, selecting
// β-delegates per bucket below height (bucket 0 gets a single neighbor)
// so the flood narrows as it recurses outward.
func (w *Writer) Broadcast(gossipFrame []byte, height byte) error {
	delegates := w.fetchDelegates(height)
	if len(delegates) == 0 {
		writerLog.Debug("broadcast has no delegates, nothing sent")
		return nil
	}
	return w.broadcastTo(gossipFrame, delegates)
}

type delegateAt struct {
	height byte
	peer   peer.Info
}

// forwardChunk re-sends a single already-encoded chunk (received from a
// peer) to the given delegates at their respective forwarding heights,
// without re-running FEC encoding. Used by the handler when relaying a
// chunk it did not originate.
func (w *Writer) forwardChunk(chunk encoding.ChunkedPayload, delegates []delegateAt) error {
	var firstErr error
	for _, d := range delegates {
		if err := w.sendChunk(d.peer, d.height, chunk); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// broadcastTo FEC-encodes gossipFrame and sends every resulting chunk to
// every delegate, each at its own forwarding height. With FEC disabled,
// it instead sends gossipFrame as a single, unchunked BroadcastPayload.
func (w *Writer) broadcastTo(gossipFrame []byte, delegates []delegateAt) error {
	if !w.cfg.Fec.Enabled {
		return w.sendRaw(gossipFrame, delegates)
	}

	chunks, err := fec.Encode(gossipFrame, fec.EncodeConfig{
		MaxUDPLen:           w.cfg.Network.MTU,
		FrameHeaderOverhead: w.header().EncodedLen() + 1 /* msg_type */ + 1 /* height */ + 4, /* gossip_frame length */
		RedundancyFactor:    w.cfg.Fec.RedundancyFactor,
		MinRepairPackets:    w.cfg.Fec.MinRepairPacketsPerBlock,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFecError, err)
	}

	var firstErr error
	for _, d := range delegates {
		for _, c := range chunks {
			if err := w.sendChunk(d.peer, d.height, c); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// sendRaw sends gossipFrame directly as a BroadcastPayload, with no FEC
// chunking, to every delegate at its own forwarding height. Used for both
// origination and forwarding on the non-FEC broadcast path; the frame
// must fit within a single datagram since there is no fragmentation to
// fall back on.
func (w *Writer) sendRaw(gossipFrame []byte, delegates []delegateAt) error {
	var firstErr error
	for _, d := range delegates {
		err := w.send(d.peer, encoding.BroadcastMsg, encoding.BroadcastPayload{
			Height:      d.height,
			GossipFrame: gossipFrame,
		})
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// fetchDelegates picks, for every bucket index below height, the set of
// peers this node forwards the broadcast to: bucket 0 contributes at
// most one neighbor (it holds the closest possible peers, so wider
// fan-out there only duplicates traffic), every other populated bucket
// contributes up to Beta peers chosen at random from its members. Each
// delegate is tagged with the bucket index it came from: the recipient
// continues forwarding at that height, shrinking the flood as it gets
// closer to the network's edge.
func (w *Writer) fetchDelegates(height byte) []delegateAt {
	max := int(height)
	if max > peer.NumBuckets {
		max = peer.NumBuckets
	}

	var out []delegateAt
	for i := 0; i < max; i++ {
		members := w.table.BucketPeers(i)
		if len(members) == 0 {
			continue
		}

		fanout := Beta
		if i == 0 {
			fanout = 1
		}

		for _, p := range sampleN(members, fanout) {
			out = append(out, delegateAt{height: byte(i), peer: p})
		}
	}
	return out
}

// sampleN returns up to n distinct elements of peers in random order.
func sampleN(peers []peer.Info, n int) []peer.Info {
	if n >= len(peers) {
		shuffled := make([]peer.Info, len(peers))
		copy(shuffled, peers)
		rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		return shuffled
	}

	idx := rand.Perm(len(peers))[:n]
	out := make([]peer.Info, n)
	for i, j := range idx {
		out[i] = peers[j]
	}
	return out
}
