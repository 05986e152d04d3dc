// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package kadcast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifierDeliversMessagesInOrderUntilFull(t *testing.T) {
	n := NewNotifier(ChannelConfig{NotificationCapacity: 2})

	n.deliverMessage(Message{Payload: []byte("a")})
	n.deliverMessage(Message{Payload: []byte("b")})

	require.Len(t, n.messages, 2)

	first := <-n.Messages()
	assert.Equal(t, []byte("a"), first.Payload)
}

func TestNotifierDropsOldestOnSaturation(t *testing.T) {
	n := NewNotifier(ChannelConfig{NotificationCapacity: 1})

	n.deliverMessage(Message{Payload: []byte("old")})
	n.deliverMessage(Message{Payload: []byte("new")})

	got := <-n.Messages()
	assert.Equal(t, []byte("new"), got.Payload, "a saturated channel must drop the oldest entry, not the newest")
}

func TestNotifierEventsDropOldestOnSaturation(t *testing.T) {
	n := NewNotifier(ChannelConfig{NotificationCapacity: 1})

	n.deliverEvent(PeerEvent{Kind: PeerDiscovered})
	n.deliverEvent(PeerEvent{Kind: PeerEvicted})

	got := <-n.Events()
	assert.Equal(t, PeerEvicted, got.Kind)
}
