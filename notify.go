// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package kadcast

import (
	"github.com/dusk-network/kadcast/peer"
	"github.com/sirupsen/logrus"
)

var notifyLog = logrus.WithField("process", "kadcast-notify")

// PeerEventKind classifies a PeerEvent.
type PeerEventKind int

const (
	// PeerDiscovered: a new peer was inserted into the routing table.
	PeerDiscovered PeerEventKind = iota
	// PeerEvicted: a peer was dropped after failing its liveness probe.
	PeerEvicted
)

// PeerEvent is delivered on the peer-event channel whenever the routing
// table's membership changes.
type PeerEvent struct {
	Kind PeerEventKind
	Peer peer.Info
}

// Message is a fully-reassembled, deduplicated gossip frame delivered to
// the application.
type Message struct {
	Payload []byte
	Sender  peer.Info
	Height  byte
}

// Notifier fans out inbound messages and peer events to the application
// over bounded channels. A full channel drops the oldest unfetched
// notification rather than blocking the network goroutines.
type Notifier struct {
	messages chan Message
	events   chan PeerEvent
}

// NewNotifier allocates a Notifier with the given channel capacities.
func NewNotifier(cfg ChannelConfig) *Notifier {
	return &Notifier{
		messages: make(chan Message, cfg.NotificationCapacity),
		events:   make(chan PeerEvent, cfg.NotificationCapacity),
	}
}

// Messages returns the channel of reassembled, deduplicated broadcasts.
func (n *Notifier) Messages() <-chan Message {
	return n.messages
}

// Events returns the channel of routing-table membership changes.
func (n *Notifier) Events() <-chan PeerEvent {
	return n.events
}

func (n *Notifier) deliverMessage(msg Message) {
	select {
	case n.messages <- msg:
	default:
		select {
		case <-n.messages:
		default:
		}
		select {
		case n.messages <- msg:
		default:
			notifyLog.Warn("message notification channel saturated, dropping delivery")
		}
	}
}

func (n *Notifier) deliverEvent(ev PeerEvent) {
	select {
	case n.events <- ev:
	default:
		select {
		case <-n.events:
		default:
		}
		select {
		case n.events <- ev:
		default:
			notifyLog.Warn("peer event channel saturated, dropping notification")
		}
	}
}
