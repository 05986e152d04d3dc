// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package encoding implements the Kadcast bit-exact wire codec: the
// common message header, peer-info/NodesPayload/BroadcastPayload
// structures, and the ChunkedPayload FEC envelope. All integers are
// little-endian. Decode fails closed with ErrInvalidFormat on any
// truncated or malformed input.
package encoding

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/dusk-network/kadcast/peer"
)

// IDSize and NonceSize mirror peer.IDSize/peer.NonceSize so this package
// does not need to import peer's full surface for wire-layout constants.
const (
	IDSize    = peer.IDSize
	NonceSize = peer.NonceSize

	// ReservedSize is the length of the always-zero reserved header field.
	ReservedSize = 2
)

// Header is the common envelope prepended to every Kadcast message.
type Header struct {
	ID         [IDSize]byte
	Nonce      [NonceSize]byte
	SenderPort uint16
	NetworkID  byte
	Version    string
}

// EncodedLen returns the number of bytes Header.Encode will write, which
// varies with the length of Version.
func (h Header) EncodedLen() int {
	return IDSize + NonceSize + 2 + 1 + 1 + len(h.Version) + ReservedSize
}

// Encode writes the header per the wire layout:
//
//	id(16) || nonce(8) || sender_port(2,LE) || network_id(1) ||
//	version_len(1) || version || reserved(2, zero)
func (h Header) Encode(buf *bytes.Buffer) error {
	if len(h.Version) > 255 {
		return ErrInvalidFormat
	}

	buf.Write(h.ID[:])
	buf.Write(h.Nonce[:])

	var portLE [2]byte
	binary.LittleEndian.PutUint16(portLE[:], h.SenderPort)
	buf.Write(portLE[:])

	buf.WriteByte(h.NetworkID)
	buf.WriteByte(byte(len(h.Version)))
	buf.WriteString(h.Version)

	var reserved [ReservedSize]byte
	buf.Write(reserved[:])

	return nil
}

// DecodeHeader reads a Header from r.
func DecodeHeader(r *bytes.Reader) (Header, error) {
	var h Header

	if r.Len() < IDSize+NonceSize+2+1+1 {
		return h, ErrInvalidFormat
	}

	if _, err := io.ReadFull(r, h.ID[:]); err != nil {
		return h, ErrInvalidFormat
	}

	if _, err := io.ReadFull(r, h.Nonce[:]); err != nil {
		return h, ErrInvalidFormat
	}

	var portLE [2]byte
	if _, err := io.ReadFull(r, portLE[:]); err != nil {
		return h, ErrInvalidFormat
	}
	h.SenderPort = binary.LittleEndian.Uint16(portLE[:])

	networkID, err := r.ReadByte()
	if err != nil {
		return h, ErrInvalidFormat
	}
	h.NetworkID = networkID

	versionLen, err := r.ReadByte()
	if err != nil {
		return h, ErrInvalidFormat
	}

	if r.Len() < int(versionLen)+ReservedSize {
		return h, ErrInvalidFormat
	}

	version := make([]byte, versionLen)
	if _, err := io.ReadFull(r, version); err != nil {
		return h, ErrInvalidFormat
	}
	h.Version = string(version)

	var reserved [ReservedSize]byte
	if _, err := io.ReadFull(r, reserved[:]); err != nil {
		return h, ErrInvalidFormat
	}

	return h, nil
}
