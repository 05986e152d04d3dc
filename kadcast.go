// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package kadcast implements the Kadcast structured-broadcast overlay: a
// Kademlia-derived routing table, recursive peer lookup, and a
// RaptorQ-coded, height-bounded broadcast pipeline over UDP.
package kadcast

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/dusk-network/kadcast/encoding"
	"github.com/dusk-network/kadcast/fec"
	"github.com/dusk-network/kadcast/peer"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("process", "kadcast")

// Peer is the public façade: one UDP socket, one routing table, and the
// goroutines that keep both alive.
type Peer struct {
	cfg Config

	self peer.Info

	socket     *Socket
	table      *RoutingTable
	writer     *Writer
	handler    *Handler
	maintainer *Maintainer
	notifier   *Notifier

	inbound chan inboundDatagram
}

// New validates cfg, binds the UDP socket, and mints the local node
// identity. It does not start any goroutines; call Start to join the
// network.
func New(cfg Config) (*Peer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	socket, err := NewSocket(cfg.ListenAddress, cfg.Network, cfg.Channel.OutboundCapacity)
	if err != nil {
		return nil, err
	}

	// Identity is minted from the bound socket's actual local address
	// rather than the configured listen_address directly: this lets
	// listen_address use an ephemeral port (":0") and still produce a
	// consistent id/port pairing.
	publicAddr := socket.LocalAddr()
	if cfg.PublicAddress != "" {
		publicAddr, err = net.ResolveUDPAddr("udp", cfg.PublicAddress)
		if err != nil {
			socket.Close()
			return nil, fmt.Errorf("%w: resolve public_address: %v", ErrFatal, err)
		}
	}

	id, err := peer.Mint(uint16(publicAddr.Port), publicAddr.IP, cfg.PoWDifficulty)
	if err != nil {
		socket.Close()
		return nil, fmt.Errorf("%w: mint identity: %v", ErrFatal, err)
	}

	self := peer.Info{IP: publicAddr.IP, Port: uint16(publicAddr.Port), ID: id}

	table := NewRoutingTable(self, cfg.Bucket.K)
	writer := NewWriter(socket, table, cfg)
	cache := fec.NewChunkCache(fec.CacheConfig{
		PendingTTL:    cfg.RaptorCache.PendingTTL,
		ProcessedTTL:  cfg.RaptorCache.ProcessedTTL,
		PruneInterval: cfg.RaptorCache.PruneInterval,
	})
	notifier := NewNotifier(cfg.Channel)
	handler := NewHandler(table, writer, cache, notifier, cfg)

	p := &Peer{
		cfg:      cfg,
		self:     self,
		socket:   socket,
		table:    table,
		writer:   writer,
		handler:  handler,
		notifier: notifier,
		inbound:  make(chan inboundDatagram, cfg.Channel.InboundCapacity),
	}
	p.maintainer = NewMaintainer(table, writer, handler, cache, cfg, p.bootstrap)

	log.WithField("self", self.String()).WithField("id", fmt.Sprintf("%x", id.Bytes)).Info("kadcast identity minted")

	return p, nil
}

// Start launches the socket reader/sender, the dispatch loop, and the
// maintainer, and performs the initial bootstrap. It returns
// immediately; all work runs until ctx is cancelled.
func (p *Peer) Start(ctx context.Context) {
	go p.socket.RunReceiver(ctx, p.inbound)
	go p.socket.RunSender(ctx)
	go p.dispatchLoop(ctx)
	go p.maintainer.Run(ctx)

	p.bootstrap(ctx)
}

func (p *Peer) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-p.inbound:
			p.handler.Handle(d.addr, d.payload, time.Now())
		}
	}
}

// bootstrap PINGs every configured bootstrap node and starts a
// self-lookup to seed the routing table.
func (p *Peer) bootstrap(ctx context.Context) {
	for _, addr := range p.cfg.BootstrapNodes {
		bootstrapPeer, err := encoding.MakePeerFromAddr(addr)
		if err != nil {
			log.WithError(err).WithField("addr", addr).Warn("invalid bootstrap address")
			continue
		}
		if err := p.writer.Ping(bootstrapPeer); err != nil {
			log.WithError(err).WithField("addr", addr).Debug("bootstrap ping failed")
		}
	}

	p.handler.StartLookup(p.self.ID, time.Now())
}

// Broadcast disseminates payload to the whole network via the
// height-bounded recursive broadcast pipeline.
func (p *Peer) Broadcast(payload []byte) error {
	return p.writer.Broadcast(payload, KadcastInitialHeight)
}

// Ping sends a raw liveness probe to addr (host:port). A successful PONG
// causes both sides to insert each other into their routing tables; it
// is the primitive bootstrap and the maintainer build discovery on.
func (p *Peer) Ping(addr string) error {
	dst, err := encoding.MakePeerFromAddr(addr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return p.writer.Ping(dst)
}

// Send delivers payload directly to addr (host:port), bypassing
// broadcast forwarding.
func (p *Peer) Send(addr string, payload []byte) error {
	dst, err := encoding.MakePeerFromAddr(addr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return p.writer.WriteToPoint(dst, payload)
}

// AliveNodes returns up to n peers the routing table believes are
// currently reachable.
func (p *Peer) AliveNodes(n int) []peer.Info {
	return p.table.AliveNodes(n, time.Now(), p.cfg.AliveThreshold)
}

// Messages returns the channel of reassembled, deduplicated broadcasts.
func (p *Peer) Messages() <-chan Message {
	return p.notifier.Messages()
}

// PeerEvents returns the channel of routing-table membership changes.
func (p *Peer) PeerEvents() <-chan PeerEvent {
	return p.notifier.Events()
}

// Self returns the local node's own identity and advertised address.
func (p *Peer) Self() peer.Info {
	return p.self
}

// Close releases the UDP socket.
func (p *Peer) Close() error {
	return p.socket.Close()
}
