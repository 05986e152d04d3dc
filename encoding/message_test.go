// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package encoding_test

import (
	"bytes"
	"net"
	"testing"

	"github.com/dusk-network/kadcast/encoding"
	"github.com/dusk-network/kadcast/peer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHeader() encoding.Header {
	var h encoding.Header
	h.ID[0] = 0xAB
	h.Nonce[0] = 0xCD
	h.SenderPort = 9000
	h.NetworkID = 7
	h.Version = "0.1.0"
	return h
}

func roundTrip(t *testing.T, msgType encoding.MsgType, header encoding.Header, payload interface{}) encoding.Frame {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, encoding.MarshalBinary(msgType, header, payload, &buf))

	frame, err := encoding.Unmarshal(buf.Bytes())
	require.NoError(t, err)

	return frame
}

func TestRoundTripPing(t *testing.T) {
	header := testHeader()
	frame := roundTrip(t, encoding.PingMsg, header, nil)

	assert.Equal(t, encoding.PingMsg, frame.Type)
	assert.Equal(t, header, frame.Header)
	assert.Nil(t, frame.Payload)
}

func TestRoundTripFindNodes(t *testing.T) {
	header := testHeader()

	var target [encoding.IDSize]byte
	target[5] = 0x42

	frame := roundTrip(t, encoding.FindNodesMsg, header, encoding.FindNodesPayload{Target: target})

	assert.Equal(t, encoding.FindNodesMsg, frame.Type)
	payload, ok := frame.Payload.(encoding.FindNodesPayload)
	require.True(t, ok)
	assert.Equal(t, target, payload.Target)
}

func TestRoundTripNodes(t *testing.T) {
	header := testHeader()

	p1 := peer.Info{IP: net.ParseIP("192.168.1.1").To4(), Port: 1111}
	p1.ID.Bytes[0] = 1
	p2 := peer.Info{IP: net.ParseIP("::1"), Port: 2222}
	p2.ID.Bytes[0] = 2

	frame := roundTrip(t, encoding.NodesMsg, header, encoding.NodesPayload{Peers: []peer.Info{p1, p2}})

	payload, ok := frame.Payload.(encoding.NodesPayload)
	require.True(t, ok)
	require.Len(t, payload.Peers, 2)

	assert.True(t, payload.Peers[0].IP.Equal(p1.IP))
	assert.Equal(t, p1.Port, payload.Peers[0].Port)
	assert.Equal(t, p1.ID.Bytes, payload.Peers[0].ID.Bytes)

	assert.True(t, payload.Peers[1].IP.Equal(p2.IP))
	assert.Equal(t, p2.Port, payload.Peers[1].Port)
}

func TestRoundTripBroadcast(t *testing.T) {
	header := testHeader()
	frame := roundTrip(t, encoding.BroadcastMsg, header, encoding.BroadcastPayload{
		Height:      5,
		GossipFrame: []byte("hello kadcast"),
	})

	payload, ok := frame.Payload.(encoding.BroadcastPayload)
	require.True(t, ok)
	assert.Equal(t, byte(5), payload.Height)
	assert.Equal(t, []byte("hello kadcast"), payload.GossipFrame)
}

func TestUnmarshalUnknownType(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, encoding.MarshalBinary(encoding.MsgType(99), testHeader(), nil, &buf))

	_, err := encoding.Unmarshal(buf.Bytes())
	assert.ErrorIs(t, err, encoding.ErrUnknownMessageType)
}

func TestUnmarshalTruncated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, encoding.MarshalBinary(encoding.PingMsg, testHeader(), nil, &buf))

	truncated := buf.Bytes()[:buf.Len()-3]
	_, err := encoding.Unmarshal(truncated)
	assert.ErrorIs(t, err, encoding.ErrInvalidFormat)
}

func TestUnmarshalNodesOverclaimedCount(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, encoding.MarshalBinary(encoding.NodesMsg, testHeader(), encoding.NodesPayload{}, &buf))

	raw := buf.Bytes()
	// Patch the count field (immediately after header) to claim more
	// peers than the buffer actually holds.
	countOffset := 1 + testHeader().EncodedLen()
	raw[countOffset] = 0xFF
	raw[countOffset+1] = 0xFF

	_, err := encoding.Unmarshal(raw)
	assert.ErrorIs(t, err, encoding.ErrInvalidFormat)
}

func TestMakePeerFromAddr(t *testing.T) {
	p, err := encoding.MakePeerFromAddr("127.0.0.1:9000")
	require.NoError(t, err)
	assert.True(t, p.IP.Equal(net.ParseIP("127.0.0.1")))
	assert.Equal(t, uint16(9000), p.Port)

	_, err = encoding.MakePeerFromAddr("not-an-addr")
	assert.Error(t, err)
}
