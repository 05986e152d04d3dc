// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package peer defines the Kadcast node identity: the 128-bit binary ID
// derived from a peer's network address, the proof-of-work nonce that
// guards identity minting, and the XOR distance metric used throughout
// routing and bucket indexing.
package peer

import (
	"encoding/binary"
	"net"

	"github.com/pkg/errors"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/blake2s"
)

const (
	// IDSize is the length in bytes of a binary node ID.
	IDSize = 16

	// NonceSize is the length in bytes of the identity PoW nonce.
	NonceSize = 8

	// DefaultDifficulty is the default minimum number of leading zero
	// bits required of BLAKE2b(id || nonce).
	DefaultDifficulty = 8
)

// ID is the 128-bit binary node identifier plus its proof-of-work nonce.
// It is derived deterministically from the owning peer's UDP port and IP
// address: id = BLAKE2s(port_le || ip_octets)[0:16].
type ID struct {
	Bytes [IDSize]byte
	Nonce [NonceSize]byte
}

// Derive computes the identity hash for a given UDP port and IP address,
// without solving the PoW nonce. Used both to mint a local identity and
// to verify a claimed remote one.
func Derive(port uint16, ip net.IP) [IDSize]byte {
	h, err := blake2s.New256(nil)
	if err != nil {
		// blake2s.New256 only errors on bad key length; we pass none.
		panic(err)
	}

	var portLE [2]byte
	binary.LittleEndian.PutUint16(portLE[:], port)

	h.Write(portLE[:])
	h.Write(normalizeIP(ip))

	sum := h.Sum(nil)

	var out [IDSize]byte
	copy(out[:], sum[:IDSize])
	return out
}

func normalizeIP(ip net.IP) []byte {
	if v4 := ip.To4(); v4 != nil {
		return v4
	}
	return ip.To16()
}

// Mint derives the identity hash for (port, ip) and solves a PoW nonce
// satisfying difficulty leading zero bits of BLAKE2b(id || nonce). This is
// an unbounded local proof-of-work search and should only be called when
// minting the local node's own identity.
func Mint(port uint16, ip net.IP, difficulty uint) (ID, error) {
	idBytes := Derive(port, ip)

	var id ID
	id.Bytes = idBytes

	nonce, err := solveNonce(idBytes, difficulty)
	if err != nil {
		return ID{}, err
	}
	id.Nonce = nonce

	return id, nil
}

func solveNonce(idBytes [IDSize]byte, difficulty uint) ([NonceSize]byte, error) {
	var nonce [NonceSize]byte

	var counter uint64
	for {
		binary.LittleEndian.PutUint64(nonce[:], counter)

		if powSatisfied(idBytes, nonce, difficulty) {
			return nonce, nil
		}

		counter++
		if counter == 0 {
			return nonce, errors.New("peer: exhausted nonce space without solving PoW")
		}
	}
}

// Verify reports whether id is a well-formed identity for (port, ip): its
// hash matches the claimed address and its nonce satisfies the configured
// PoW difficulty.
func Verify(id ID, port uint16, ip net.IP, difficulty uint) bool {
	want := Derive(port, ip)
	if want != id.Bytes {
		return false
	}

	return powSatisfied(id.Bytes, id.Nonce, difficulty)
}

func powSatisfied(idBytes [IDSize]byte, nonce [NonceSize]byte, difficulty uint) bool {
	h, err := blake2b.New256(nil)
	if err != nil {
		panic(err)
	}

	h.Write(idBytes[:])
	h.Write(nonce[:])
	sum := h.Sum(nil)

	return leadingZeroBits(sum) >= difficulty
}

func leadingZeroBits(b []byte) uint {
	var n uint
	for _, by := range b {
		if by == 0 {
			n += 8
			continue
		}

		for mask := byte(0x80); mask > 0; mask >>= 1 {
			if by&mask != 0 {
				return n
			}
			n++
		}
	}
	return n
}

// IsZero reports whether id is the zero-value identity.
func (id ID) IsZero() bool {
	return id.Bytes == [IDSize]byte{}
}

// Equal reports whether two IDs have the same identity hash. The nonce is
// not part of identity equality: it is PoW evidence, not a distinguishing
// field.
func (id ID) Equal(other ID) bool {
	return id.Bytes == other.Bytes
}
