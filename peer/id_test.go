// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package peer_test

import (
	"net"
	"testing"

	"github.com/dusk-network/kadcast/peer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMintAndVerify(t *testing.T) {
	ip := net.ParseIP("127.0.0.1")
	port := uint16(9000)

	id, err := peer.Mint(port, ip, 4)
	require.NoError(t, err)

	assert.True(t, peer.Verify(id, port, ip, 4))
}

func TestVerifyRejectsAddressMismatch(t *testing.T) {
	ip := net.ParseIP("127.0.0.1")
	port := uint16(9000)

	id, err := peer.Mint(port, ip, 4)
	require.NoError(t, err)

	otherIP := net.ParseIP("127.0.0.2")
	assert.False(t, peer.Verify(id, port, otherIP, 4))
	assert.False(t, peer.Verify(id, port+1, ip, 4))
}

func TestVerifyRejectsBadPoW(t *testing.T) {
	ip := net.ParseIP("127.0.0.1")
	port := uint16(9000)

	id, err := peer.Mint(port, ip, 4)
	require.NoError(t, err)

	id.Nonce[0] ^= 0xFF

	// A flipped nonce byte will almost never still satisfy the PoW
	// difficulty used here; this test accepts the overwhelming-odds case.
	assert.False(t, peer.Verify(id, port, ip, 20))
}

func TestDeriveDeterministic(t *testing.T) {
	ip := net.ParseIP("10.0.0.5")
	a := peer.Derive(1234, ip)
	b := peer.Derive(1234, ip)
	assert.Equal(t, a, b)

	c := peer.Derive(1235, ip)
	assert.NotEqual(t, a, c)
}

func TestIDEqualIgnoresNonce(t *testing.T) {
	ip := net.ParseIP("127.0.0.1")
	id1, err := peer.Mint(9000, ip, 2)
	require.NoError(t, err)

	id2 := id1
	id2.Nonce[0] ^= 0xFF

	assert.True(t, id1.Equal(id2))
}
